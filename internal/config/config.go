package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "GATEKEEPER_"

// Load builds the configuration from defaults, an optional YAML file, an
// optional dotenv file and the process environment, in that order of
// increasing precedence. Variables already set in the process environment
// win over the dotenv file.
func Load(configPath, envFile string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
		dotenv = values
	}

	loadFromEnvironment(config, lookup(dotenv))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// deprecatedConfig mirrors keys that used to tune the pipeline but are now
// compiled in or derived at runtime.
type deprecatedConfig struct {
	Gatekeeper struct {
		RateLimits interface{} `yaml:"rate_limits"`
		CSRFSecret string      `yaml:"csrf_secret"`
	} `yaml:"gatekeeper"`
	Observability struct {
		ServiceVersion string `yaml:"service_version"`
	} `yaml:"observability"`
}

// warnDeprecatedKeys logs a warning for each unsupported key found in the YAML data.
// Startup continues; the main decoder ignores these keys.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Gatekeeper.RateLimits != nil {
		slog.Warn("Config key is no longer supported; rate limit rules are compiled in.", "config_key", "gatekeeper.rate_limits")
	}
	if dep.Gatekeeper.CSRFSecret != "" {
		slog.Warn("Config key is no longer used; CSRF tokens are random per process and can be removed.", "config_key", "gatekeeper.csrf_secret")
	}
	if dep.Observability.ServiceVersion != "" {
		slog.Warn("Config key is no longer supported; version is set at build time via ldflags.", "config_key", "observability.service_version")
	}
}

func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

type lookupFunc func(key string) string

// lookup resolves a variable from the process environment first, then from
// the dotenv values.
func lookup(dotenv map[string]string) lookupFunc {
	return func(key string) string {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			return v
		}
		return dotenv[EnvPrefix+key]
	}
}

// loadFromEnvironment applies GATEKEEPER_* overrides. Values that fail to
// parse are logged and skipped so the file or default value stays in effect.
func loadFromEnvironment(config *models.Config, env lookupFunc) {
	// Server
	setString(env, "HOST", &config.Server.Host)
	setInt(env, "PORT", &config.Server.Port)
	setDuration(env, "READ_TIMEOUT", &config.Server.ReadTimeout)
	setDuration(env, "WRITE_TIMEOUT", &config.Server.WriteTimeout)
	setDuration(env, "IDLE_TIMEOUT", &config.Server.IdleTimeout)
	setBool(env, "TLS_ENABLED", &config.Server.TLSEnabled)
	setString(env, "TLS_CERT_FILE", &config.Server.TLSCertFile)
	setString(env, "TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Gatekeeper pipeline
	gk := &config.Gatekeeper
	setDuration(env, "COUNTER_SWEEP_INTERVAL", &gk.CounterSweepInterval)
	setDuration(env, "TOKEN_SWEEP_INTERVAL", &gk.TokenSweepInterval)
	setDuration(env, "TOKEN_TTL", &gk.TokenTTL)
	setList(env, "DEV_ORIGINS", &gk.DevOrigins)
	setIntList(env, "DEV_PORTS", &gk.DevPorts)
	setBool(env, "HSTS_PRELOAD", &gk.HSTSPreload)
	setBool(env, "TRUST_PROXY_HEADERS", &gk.TrustProxyHeaders)
	setBool(env, "ENFORCE_JSON_CONTENT_TYPE", &gk.EnforceJSONContentType)
	setList(env, "TOKEN_PROTECTED_PATHS", &gk.TokenProtectedPaths)

	// Logging
	setString(env, "LOG_LEVEL", &config.Logging.Level)
	setString(env, "LOG_FORMAT", &config.Logging.Format)
	setString(env, "LOG_OUTPUT", &config.Logging.Output)
	setString(env, "LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics
	setBool(env, "METRICS_ENABLED", &config.Metrics.Enabled)
	setString(env, "METRICS_PATH", &config.Metrics.Path)
	setInt(env, "METRICS_PORT", &config.Metrics.Port)

	// Tracing
	setString(env, "SERVICE_NAME", &config.Observability.ServiceName)
	setBool(env, "TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	setString(env, "TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	setString(env, "OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	setFloat(env, "TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)

	// Decision stats
	setString(env, "STATS_TYPE", &config.Stats.Type)
	setInt(env, "STATS_BUFFER_SIZE", &config.Stats.BufferSize)
	setString(env, "REDIS_ADDR", &config.Stats.Redis.Addr)
	setString(env, "REDIS_PASSWORD", &config.Stats.Redis.Password)
	setInt(env, "REDIS_DB", &config.Stats.Redis.DB)
	setString(env, "REDIS_PREFIX", &config.Stats.Redis.Prefix)
	setDuration(env, "REDIS_TTL", &config.Stats.Redis.TTL)
}

func setString(env lookupFunc, key string, dst *string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(env lookupFunc, key string, dst *int) {
	v := env(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = n
}

func setFloat(env lookupFunc, key string, dst *float64) {
	v := env(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = f
}

func setBool(env lookupFunc, key string, dst *bool) {
	v := env(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = b
}

func setDuration(env lookupFunc, key string, dst *time.Duration) {
	v := env(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnInvalid(key, v, err)
		return
	}
	*dst = d
}

// setList splits a comma separated value, dropping blank entries.
func setList(env lookupFunc, key string, dst *[]string) {
	v := env(key)
	if v == "" {
		return
	}
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setIntList(env lookupFunc, key string, dst *[]int) {
	var parts []string
	setList(env, key, &parts)
	if parts == nil {
		return
	}
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			warnInvalid(key, env(key), err)
			return
		}
		out = append(out, n)
	}
	*dst = out
}

func warnInvalid(key, value string, err error) {
	slog.Warn("Ignoring invalid environment value", "variable", EnvPrefix+key, "value", value, "error", err)
}

// SaveExample writes the default configuration, with placeholder TLS paths,
// as YAML.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"
	config.Gatekeeper.TokenProtectedPaths = []string{"/auth/register"}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
