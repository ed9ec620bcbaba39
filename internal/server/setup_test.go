package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"chatgateway/internal/core"
	"chatgateway/internal/gateway"
	"chatgateway/internal/pkg/llmclient"
	"chatgateway/internal/providers"
	"chatgateway/internal/usage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubUpstream answers every provider request with handler and records the
// decoded request body.
type stubUpstream struct {
	*httptest.Server
	calls    atomic.Int32
	lastBody atomic.Value // map[string]any
}

func newStubUpstream(t *testing.T, handler http.HandlerFunc) *stubUpstream {
	t.Helper()
	s := &stubUpstream{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.lastBody.Store(body)
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *stubUpstream) body() map[string]any {
	v, _ := s.lastBody.Load().(map[string]any)
	return v
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func sseHandler(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, e := range events {
			_, _ = w.Write([]byte(e + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

type stubReader struct {
	summary []usage.ProviderSummary
	query   usage.Query
}

func (s *stubReader) Summary(_ context.Context, q usage.Query) ([]usage.ProviderSummary, error) {
	s.query = q
	return s.summary, nil
}

func newTestRegistry(baseURL string) *providers.Registry {
	return providers.NewRegistryFromProfiles(
		core.ProviderProfile{
			ID: "openai", Name: "OpenAI", BaseURL: baseURL, APIKey: "sk-test",
			DefaultModel: "gpt-4o-mini", Shape: core.ShapeOpenAI,
			Models: []core.ModelInfo{{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextWindow: 128000}},
		},
		core.ProviderProfile{
			ID: "anthropic", Name: "Anthropic", BaseURL: baseURL, APIKey: "sk-ant",
			DefaultModel: "claude-3-haiku-20240307", Shape: core.ShapeAnthropic, HeaderMode: core.HeaderModeCustom,
			Models: []core.ModelInfo{{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextWindow: 200000}},
		},
		core.ProviderProfile{
			ID: "siliconflow", Name: "SiliconFlow", BaseURL: baseURL,
			DefaultModel: "Qwen/Qwen2.5-7B-Instruct", Shape: core.ShapeOpenAI,
		},
	)
}

// newTestServer builds a server backed by a real gateway that talks to baseURL.
func newTestServer(t *testing.T, baseURL string, cfg *Config) *Server {
	t.Helper()
	registry := newTestRegistry(baseURL)
	gw, err := gateway.New(gateway.Options{
		Registry:        registry,
		Client:          llmclient.NewWithHTTPClient(http.DefaultClient, llmclient.Hooks{}),
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4o-mini",
		Logger:          discardLogger(),
	})
	require.NoError(t, err)

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.DefaultProvider = "openai"
	cfg.DefaultModel = "gpt-4o-mini"
	cfg.Logger = discardLogger()
	return New(gw, registry, cfg)
}

func doRequest(srv http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
