// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the chat gateway server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatgateway/config"
	"chatgateway/internal/gateway"
	"chatgateway/internal/observability"
	"chatgateway/internal/pkg/httpclient"
	"chatgateway/internal/pkg/llmclient"
	"chatgateway/internal/providers"
	"chatgateway/internal/server"
	"chatgateway/internal/usage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	registry *providers.Registry
	gateway  *gateway.Gateway
	usage    *usage.Result
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	AppConfig *config.Config
	Logger    *slog.Logger

	// Registerer receives the gateway metrics when metrics are enabled.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Gatherer is served on the metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	appCfg := cfg.AppConfig

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		config: appCfg,
		logger: logger,
	}

	registry, err := providers.NewRegistry(appCfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	app.registry = registry

	if _, err := registry.Resolve(appCfg.Gateway.DefaultProvider); err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}

	usageResult, err := usage.New(ctx, appCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}
	app.usage = usageResult

	var clientHooks llmclient.Hooks
	var gatewayHooks gateway.Hooks
	var metricsHandler http.Handler
	if appCfg.Metrics.Enabled {
		reg := cfg.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		metrics := observability.NewMetrics(reg)
		clientHooks = metrics.ClientHooks()
		gatewayHooks = metrics.GatewayHooks()
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	gw, err := gateway.New(gateway.Options{
		Registry:        registry,
		Client:          llmclient.NewWithHTTPClient(httpclient.NewUpstreamClient(appCfg.Gateway.Timeout), clientHooks),
		DefaultProvider: appCfg.Gateway.DefaultProvider,
		DefaultModel:    appCfg.Gateway.DefaultModel,
		Timeout:         appCfg.Gateway.Timeout,
		Logger:          logger,
		Usage:           usageResult.Logger,
		Hooks:           gatewayHooks,
	})
	if err != nil {
		closeErr := app.usage.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to create gateway: %w (also: usage close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	app.gateway = gw

	app.logStartupInfo()

	app.server = server.New(gw, registry, &server.Config{
		AccessCodes:     appCfg.Server.AccessCodes,
		DefaultProvider: appCfg.Gateway.DefaultProvider,
		DefaultModel:    appCfg.Gateway.DefaultModel,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		MetricsHandler:  metricsHandler,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		Usage:           usageResult.Reader,
		Logger:          logger,
	})

	return app, nil
}

// Gateway returns the chat gateway.
func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

// Handler returns the HTTP handler of the server.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, so no new calls start, then the usage ledger,
// which flushes pending entries.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			a.logger.Error("usage ledger close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if len(cfg.Server.AccessCodes) == 0 {
		a.logger.Warn("ACCESS_CODE_LIST not set, API is open to unauthenticated clients")
	} else {
		a.logger.Info("authentication enabled", "access_codes", len(cfg.Server.AccessCodes))
	}

	for _, p := range a.registry.ListProviders() {
		a.logger.Info("provider registered",
			"provider", p.ID,
			"shape", p.Shape,
			"configured", p.Configured(),
			"models", len(p.Models),
		)
	}
	a.logger.Info("gateway defaults",
		"provider", cfg.Gateway.DefaultProvider,
		"model", cfg.Gateway.DefaultModel,
		"timeout", cfg.Gateway.Timeout,
	)

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	if cfg.Usage.Enabled {
		a.logger.Info("usage tracking enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.Usage.BufferSize,
			"flush_interval", cfg.Usage.FlushInterval,
			"retention_days", cfg.Usage.RetentionDays,
		)
	} else {
		a.logger.Info("usage tracking disabled")
	}
}
