package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeeper/internal/api"
	"gatekeeper/internal/config"
	"gatekeeper/internal/gatekeeper"
	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/stats"
	"gatekeeper/internal/version"

	"github.com/redis/go-redis/v9"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	envFile       = flag.String("env-file", "", "Path to a dotenv file with GATEKEEPER_* overrides")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, cfg.Observability.ServiceName, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	gkOpts := []gatekeeper.Option{gatekeeper.WithStatsBuffer(cfg.Stats.BufferSize)}

	// Wrap the counter store with instrumentation if metrics are enabled
	if cfg.Metrics.Enabled {
		store := ratelimit.NewMemoryStore(cfg.Gatekeeper.CounterSweepInterval)
		instrumented, err := observability.NewInstrumentedStore(store,
			observability.WithMeterProvider(otelProvider.MeterProvider()),
			observability.WithTracerProvider(otelProvider.TracerProvider()),
		)
		if err != nil {
			store.Close()
			slog.Error("Failed to create instrumented counter store", "error", err)
			os.Exit(1)
		}
		gkOpts = append(gkOpts, gatekeeper.WithStore(instrumented))

		decisions, err := observability.NewDecisionRecorder(observability.WithMeterProvider(otelProvider.MeterProvider()))
		if err != nil {
			slog.Error("Failed to create decision metrics", "error", err)
			os.Exit(1)
		}
		gkOpts = append(gkOpts, gatekeeper.WithRecorders(decisions))
	}

	// Initialize decision stats
	recorder, err := initializeStats(cfg.Stats)
	if err != nil {
		slog.Error("Failed to initialize decision stats", "error", err)
		os.Exit(1)
	}
	if recorder != nil {
		gkOpts = append(gkOpts, gatekeeper.WithRecorders(recorder))
	}

	gk := gatekeeper.New(cfg.Gatekeeper, gkOpts...)

	session := gatekeeper.CookieSession()
	var handlerOpts []api.HandlerOption
	if reader, ok := recorder.(api.StatsReader); ok {
		handlerOpts = append(handlerOpts, api.WithStats(reader))
	}
	handlers := api.NewHandlers(gk, session, ver, handlerOpts...)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	routeOpts = append(routeOpts, api.WithGatekeeper(gk.Middleware(session)))

	router := api.SetupRoutes(handlers, cfg, nil, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server", append([]any{"addr", server.Addr, "tls", cfg.Server.TLSEnabled}, ver.LogAttrs()...)...)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Flushes queued decisions before the stats sink goes away.
	gk.Close()
	if closer, ok := recorder.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("Failed to close decision stats", "error", err)
		}
	}

	slog.Info("Server shutdown complete")
}

// initializeStats returns the decision recorder selected by configuration,
// or nil when stats are disabled.
func initializeStats(cfg models.StatsConfig) (stats.Recorder, error) {
	switch cfg.Type {
	case models.StatsTypeNone:
		return nil, nil
	case models.StatsTypeMemory:
		return stats.NewMemoryRecorder(), nil
	case models.StatsTypeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		recorder := stats.NewRedisRecorder(rdb, cfg.Redis.Prefix, cfg.Redis.TTL)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Ping(ctx); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("Decision stats stored in redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		return recorder, nil
	default:
		return nil, fmt.Errorf("unsupported stats type: %s", cfg.Type)
	}
}
