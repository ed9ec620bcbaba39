package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chatgateway/internal/core"
	"chatgateway/internal/usage"
)

// DefaultBodySizeLimit applies when Config.BodySizeLimit is empty.
const DefaultBodySizeLimit = "10M"

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	AccessCodes     []string     // Bearer tokens accepted by the API; empty disables auth
	DefaultProvider string       // Reported by /ai/config and /ai/health
	DefaultModel    string       // Reported by /ai/config and /ai/health
	MetricsEnabled  bool         // Whether to expose the Prometheus metrics endpoint
	MetricsEndpoint string       // HTTP path for metrics endpoint (default: /metrics)
	MetricsHandler  http.Handler // Serves the metrics endpoint
	BodySizeLimit   string       // Max request body size, e.g. "10M"
	Usage           usage.Reader // Backs /ai/usage; nil when the ledger is disabled
	Logger          *slog.Logger
}

// New creates a new HTTP server
func New(gw ChatGateway, catalog Catalog, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := &Handler{
		gateway:         gw,
		catalog:         catalog,
		usage:           cfg.Usage,
		defaultProvider: cfg.DefaultProvider,
		defaultModel:    cfg.DefaultModel,
		logger:          logger,
	}

	authSkipPaths := []string{"/health", "/ai/health"}

	metricsPath := "/metrics"
	metricsEnabled := cfg.MetricsEnabled && cfg.MetricsHandler != nil
	if metricsEnabled {
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean("/" + cfg.MetricsEndpoint)
		}
		// the metrics route must not shadow the API
		if strings.HasPrefix(metricsPath, "/ai/") || metricsPath == "/ai" {
			metricsPath = "/metrics"
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, requestID string) {
			ctx := core.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg.BodySizeLimit != "" {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(bodySizeLimit))

	e.Use(AuthMiddleware(cfg.AccessCodes, authSkipPaths))

	// Public routes
	e.GET("/health", handler.Health)
	e.GET("/ai/health", handler.AIHealth)
	if metricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(cfg.MetricsHandler))
	}

	// API routes
	ai := e.Group("/ai")
	ai.GET("/config", handler.Config)
	ai.GET("/models/:provider", handler.ListModels)
	ai.GET("/usage", handler.Usage)
	ai.POST("/chat/completions", handler.ChatCompletion)
	ai.POST("/chat/completions/simple", handler.SimpleChatCompletion)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	})
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
