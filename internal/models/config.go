// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every gatekeeper component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, gatekeeper, logging, etc.)
// - Defaults that work out of the box for a local development stack
// - Validation that catches misconfigurations before the listener starts
// - Rate-limit rule limits are compiled in; only lifecycle knobs are configurable
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stats recorder type constants
const (
	StatsTypeNone   = "none"
	StatsTypeMemory = "memory"
	StatsTypeRedis  = "redis"
)

// Trace exporter constants
const (
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP listener and network settings
// - Gatekeeper: sweep schedules, CSRF allow-list and header options
// - Logging: structured logging output
// - Metrics: Prometheus endpoint
// - Observability: tracing exporters
// - Stats: decision statistics sink
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Gatekeeper    GatekeeperConfig    `yaml:"gatekeeper" json:"gatekeeper"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Stats         StatsConfig         `yaml:"stats" json:"stats"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// GatekeeperConfig holds the tunables of the request gatekeeping pipeline.
type GatekeeperConfig struct {
	CounterSweepInterval   time.Duration `yaml:"counter_sweep_interval" json:"counter_sweep_interval"`
	TokenSweepInterval     time.Duration `yaml:"token_sweep_interval" json:"token_sweep_interval"`
	TokenTTL               time.Duration `yaml:"token_ttl" json:"token_ttl"`
	DevOrigins             []string      `yaml:"dev_origins" json:"dev_origins"`
	DevPorts               []int         `yaml:"dev_ports" json:"dev_ports"`
	HSTSPreload            bool          `yaml:"hsts_preload" json:"hsts_preload"`
	TrustProxyHeaders      bool          `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
	EnforceJSONContentType bool          `yaml:"enforce_json_content_type" json:"enforce_json_content_type"`

	// TokenProtectedPaths are path prefixes whose state-changing requests
	// must also present a one-time CSRF token.
	TokenProtectedPaths []string `yaml:"token_protected_paths" json:"token_protected_paths"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// StatsConfig selects where gatekeeper decisions are counted.
type StatsConfig struct {
	Type       string      `yaml:"type" json:"type"`
	BufferSize int         `yaml:"buffer_size" json:"buffer_size"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values:
// - Port 8080, 30-second read/write timeouts
// - Counter sweep hourly, token sweep every 30 minutes, tokens live one hour
// - Local Next.js dev server origins allowed for CSRF origin checks
// - Proxy headers trusted (the service is expected to sit behind a load balancer)
// - Decision stats kept in memory
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Gatekeeper: GatekeeperConfig{
			CounterSweepInterval:   time.Hour,
			TokenSweepInterval:     30 * time.Minute,
			TokenTTL:               time.Hour,
			DevOrigins:             []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			DevPorts:               []int{},
			HSTSPreload:            false,
			TrustProxyHeaders:      true,
			EnforceJSONContentType: true,
			TokenProtectedPaths:    []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "gatekeeper",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   TraceExporterStdout,
				SampleRate: 1.0,
			},
		},
		Stats: StatsConfig{
			Type:       StatsTypeMemory,
			BufferSize: 1024,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "gatekeeper:stats",
				TTL:    24 * time.Hour,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Gatekeeper.Validate(); err != nil {
		return fmt.Errorf("invalid gatekeeper config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (gc *GatekeeperConfig) Validate() error {
	if gc.CounterSweepInterval <= 0 {
		return errors.New("counter sweep interval must be positive")
	}

	if gc.TokenSweepInterval <= 0 {
		return errors.New("token sweep interval must be positive")
	}

	if gc.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}

	for _, p := range gc.DevPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("dev port out of range: %d", p)
		}
	}

	for _, o := range gc.DevOrigins {
		if o == "" {
			return errors.New("dev origin cannot be empty")
		}
	}

	for _, p := range gc.TokenProtectedPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("token protected path must start with /: %q", p)
		}
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validOutputs, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	if oc.ServiceName == "" {
		return errors.New("service name is required when tracing is enabled")
	}

	switch oc.Tracing.Exporter {
	case TraceExporterStdout:
	case TraceExporterOTLP:
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}

func (sc *StatsConfig) Validate() error {
	validTypes := []string{StatsTypeNone, StatsTypeMemory, StatsTypeRedis}
	if !contains(validTypes, sc.Type) {
		return fmt.Errorf("invalid stats type: %s", sc.Type)
	}

	if sc.BufferSize < 0 {
		return errors.New("stats buffer size cannot be negative")
	}

	if sc.Type == StatsTypeRedis && sc.Redis.Addr == "" {
		return errors.New("Redis address is required when stats type is redis")
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
