// Package server provides the HTTP surface of the chat gateway.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"chatgateway/internal/core"
	"chatgateway/internal/gateway"
	"chatgateway/internal/streaming"
	"chatgateway/internal/usage"
)

// ChatGateway runs chat-completion calls.
type ChatGateway interface {
	Complete(ctx context.Context, env *core.RequestEnvelope) (*core.CompletionResult, error)
	OpenStream(ctx context.Context, env *core.RequestEnvelope) (*gateway.Stream, error)
}

// Catalog lists the registered providers and their models.
type Catalog interface {
	ListProviders() []*core.ProviderProfile
	ListModels(id string) []core.ModelInfo
}

// Handler holds the HTTP handlers
type Handler struct {
	gateway         ChatGateway
	catalog         Catalog
	usage           usage.Reader
	defaultProvider string
	defaultModel    string
	logger          *slog.Logger
}

// chatRequest is the wire form of a chat-completion request. Pointer fields
// distinguish an omitted value from an explicit zero.
type chatRequest struct {
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Messages    []core.ChatMessage `json:"messages"`
	Tools       []core.ToolSpec    `json:"tools"`
	Temperature *float64           `json:"temperature"`
	MaxTokens   *int               `json:"max_tokens"`
	Stream      *bool              `json:"stream"`
}

func (r *chatRequest) envelope() *core.RequestEnvelope {
	env := &core.RequestEnvelope{
		Provider:    r.Provider,
		Model:       r.Model,
		Messages:    r.Messages,
		Tools:       r.Tools,
		Temperature: core.DefaultTemperature,
		MaxTokens:   core.DefaultMaxTokens,
		Stream:      true,
	}
	if r.Temperature != nil {
		env.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		env.MaxTokens = *r.MaxTokens
	}
	if r.Stream != nil {
		env.Stream = *r.Stream
	}
	return env
}

type providerStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
}

type configResponse struct {
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Providers []providerStatus `json:"providers"`
	Models    []core.ModelInfo `json:"models"`
}

func (h *Handler) bindEnvelope(c echo.Context) (*core.RequestEnvelope, error) {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return nil, core.NewInvalidRequestError("invalid request body", err)
	}
	return req.envelope(), nil
}

// ChatCompletion handles POST /ai/chat/completions. Requests stream unless
// "stream" is false.
func (h *Handler) ChatCompletion(c echo.Context) error {
	env, err := h.bindEnvelope(c)
	if err != nil {
		return handleError(c, err)
	}
	if !env.Stream {
		return h.complete(c, env)
	}

	stream, err := h.gateway.OpenStream(c.Request().Context(), env)
	if err != nil {
		return handleError(c, err)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// the status line is already sent, so failures end up in the event stream
	if err := stream.Relay(streaming.NewEventWriter(c.Response(), false)); err != nil {
		h.logger.Warn("stream relay ended early",
			"request_id", stream.RequestID(),
			"provider", stream.Provider(),
			"error", err,
		)
	}
	return nil
}

// SimpleChatCompletion handles POST /ai/chat/completions/simple, which is
// always buffered.
func (h *Handler) SimpleChatCompletion(c echo.Context) error {
	env, err := h.bindEnvelope(c)
	if err != nil {
		return handleError(c, err)
	}
	env.Stream = false
	return h.complete(c, env)
}

// complete returns the upstream body as received.
func (h *Handler) complete(c echo.Context, env *core.RequestEnvelope) error {
	result, err := h.gateway.Complete(c.Request().Context(), env)
	if err != nil {
		return handleError(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, result.Raw)
}

// Config handles GET /ai/config
func (h *Handler) Config(c echo.Context) error {
	profiles := h.catalog.ListProviders()
	providers := make([]providerStatus, 0, len(profiles))
	for _, p := range profiles {
		providers = append(providers, providerStatus{
			ID:         p.ID,
			Name:       p.Name,
			Configured: p.Configured(),
			Active:     p.ID == h.defaultProvider,
		})
	}

	return c.JSON(http.StatusOK, configResponse{
		Provider:  h.defaultProvider,
		Model:     h.defaultModel,
		Providers: providers,
		Models:    h.catalog.ListModels(h.defaultProvider),
	})
}

// ListModels handles GET /ai/models/:provider
func (h *Handler) ListModels(c echo.Context) error {
	provider := c.Param("provider")
	models := h.catalog.ListModels(provider)
	if len(models) == 0 {
		return handleError(c, core.NewNotFoundError("unknown provider: "+provider))
	}
	return c.JSON(http.StatusOK, map[string]any{"models": models})
}

// Usage handles GET /ai/usage with optional RFC 3339 since/until bounds.
func (h *Handler) Usage(c echo.Context) error {
	if h.usage == nil {
		return handleError(c, core.NewNotFoundError("usage tracking is disabled"))
	}

	var q usage.Query
	for name, dst := range map[string]*time.Time{"since": &q.Since, "until": &q.Until} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return handleError(c, core.NewInvalidRequestError(name+" must be an RFC 3339 timestamp", err))
		}
		*dst = t
	}

	summary, err := h.usage.Summary(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("usage summary failed", "error", err)
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"providers": summary})
}

// AIHealth handles GET /ai/health
func (h *Handler) AIHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "healthy",
		"provider": h.defaultProvider,
		"model":    h.defaultModel,
	})
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "service": "chatgateway"})
}

// handleError converts gateway errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
