package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgateway/internal/core"
	"chatgateway/internal/pkg/llmclient"
	"chatgateway/internal/providers"
	"chatgateway/internal/usage"
)

func strPtr(s string) *string { return &s }

type recordingUsage struct {
	mu      sync.Mutex
	entries []*usage.Entry
}

func (r *recordingUsage) Write(entry *usage.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingUsage) Entries() []*usage.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*usage.Entry(nil), r.entries...)
}

// upstream is a stub provider that counts every request it receives.
type upstream struct {
	*httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	lastPath string
	lastBody map[string]any
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(body, &decoded)
		u.mu.Lock()
		u.lastPath = r.URL.Path
		u.lastBody = decoded
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) request() (string, map[string]any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastPath, u.lastBody
}

type testGateway struct {
	*Gateway
	usage *recordingUsage
}

func newTestGateway(t *testing.T, baseURL string, opts ...func(*Options)) *testGateway {
	t.Helper()
	registry := providers.NewRegistryFromProfiles(
		core.ProviderProfile{ID: "openai", Name: "OpenAI", BaseURL: baseURL, APIKey: "sk-openai", DefaultModel: "gpt-4o-mini", Shape: core.ShapeOpenAI},
		core.ProviderProfile{ID: "deepseek", Name: "DeepSeek", BaseURL: baseURL, APIKey: "sk-deepseek", DefaultModel: "deepseek-chat", Shape: core.ShapeOpenAI},
		core.ProviderProfile{ID: "anthropic", Name: "Anthropic", BaseURL: baseURL, APIKey: "sk-ant", DefaultModel: "claude-3-haiku-20240307", Shape: core.ShapeAnthropic},
		core.ProviderProfile{ID: "siliconflow", Name: "SiliconFlow", BaseURL: baseURL, DefaultModel: "Qwen/Qwen2.5-7B-Instruct", Shape: core.ShapeOpenAI},
	)
	rec := &recordingUsage{}
	o := Options{
		Registry:        registry,
		Client:          llmclient.NewWithHTTPClient(http.DefaultClient, llmclient.Hooks{}),
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4o",
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Usage:           rec,
	}
	for _, opt := range opts {
		opt(&o)
	}
	g, err := New(o)
	require.NoError(t, err)
	return &testGateway{Gateway: g, usage: rec}
}

func userEnvelope(provider, content string) *core.RequestEnvelope {
	return &core.RequestEnvelope{
		Provider:    provider,
		Messages:    []core.ChatMessage{{Role: "user", Content: strPtr(content)}},
		Temperature: 0.7,
		MaxTokens:   256,
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{Client: llmclient.New(llmclient.Hooks{})})
	require.Error(t, err)

	_, err = New(Options{Registry: providers.NewRegistryFromProfiles()})
	require.Error(t, err)
}

func TestComplete_OpenAIEndToEnd(t *testing.T) {
	const body = `{"choices":[{"message":{"content":"4"}}]}`
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-openai", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	gw := newTestGateway(t, up.URL)

	result, err := gw.Complete(context.Background(), &core.RequestEnvelope{
		Provider:  "openai",
		Messages:  []core.ChatMessage{{Role: "user", Content: strPtr("2+2?")}},
		MaxTokens: 512,
		Stream:    false,
	})
	require.NoError(t, err)
	assert.Equal(t, "4", result.Content)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.Equal(t, body, string(result.Raw))

	path, sent := up.request()
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, false, sent["stream"])
	assert.Equal(t, float64(512), sent["max_tokens"])
	assert.Equal(t, int32(1), up.calls.Load())

	entries := gw.usage.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, usage.StatusDone, entries[0].Status)
	assert.False(t, entries[0].Stream)
}

func TestComplete_UnknownProviderMakesNoCall(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gw := newTestGateway(t, up.URL)

	_, err := gw.Complete(context.Background(), userEnvelope("nonexistent", "hi"))
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeUnknownProvider))

	_, err = gw.OpenStream(context.Background(), userEnvelope("nonexistent", "hi"))
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeUnknownProvider))

	assert.Equal(t, int32(0), up.calls.Load())

	entries := gw.usage.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, usage.StatusErrored, entries[0].Status)
	assert.Equal(t, string(core.ErrorTypeUnknownProvider), entries[0].ErrorType)
}

func TestComplete_MissingCredentialMakesNoCall(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gw := newTestGateway(t, up.URL)

	_, err := gw.Complete(context.Background(), userEnvelope("siliconflow", "hi"))
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeMissingCredential))
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestComplete_ZeroMaxTokensRejected(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	gw := newTestGateway(t, up.URL)

	env := userEnvelope("openai", "hi")
	env.MaxTokens = 0
	_, err := gw.Complete(context.Background(), env)
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeInvalidRequest))

	_, err = gw.OpenStream(context.Background(), env)
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeInvalidRequest))

	assert.Equal(t, int32(0), up.calls.Load())
}

func TestComplete_InvalidRequest(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	gw := newTestGateway(t, up.URL)

	env := userEnvelope("openai", "hi")
	env.Temperature = 3
	_, err := gw.Complete(context.Background(), env)
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeInvalidRequest))

	_, err = gw.Complete(context.Background(), &core.RequestEnvelope{Provider: "openai"})
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeInvalidRequest))

	assert.Equal(t, int32(0), up.calls.Load())
}

func TestComplete_UpstreamError(t *testing.T) {
	const body = `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(body))
	})
	gw := newTestGateway(t, up.URL)

	_, err := gw.Complete(context.Background(), userEnvelope("openai", "hi"))
	require.Error(t, err)

	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, core.ErrorTypeUpstream, gwErr.Type)
	assert.Equal(t, http.StatusTooManyRequests, gwErr.UpstreamStatus)
	assert.Equal(t, http.StatusTooManyRequests, gwErr.HTTPStatusCode())
	assert.Equal(t, body, string(gwErr.UpstreamBody))
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestComplete_Anthropic(t *testing.T) {
	const body = `{
		"id": "msg_1",
		"type": "message",
		"model": "claude-3-haiku-20240307",
		"content": [
			{"type": "text", "text": "Checking "},
			{"type": "text", "text": "now."},
			{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Oslo"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 12, "output_tokens": 30}
	}`
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(body))
	})
	gw := newTestGateway(t, up.URL)

	result, err := gw.Complete(context.Background(), &core.RequestEnvelope{
		Provider: "anthropic",
		Messages: []core.ChatMessage{
			{Role: "system", Content: strPtr("be brief")},
			{Role: "user", Content: strPtr("weather in Oslo?")},
		},
		MaxTokens: 100,
	})
	require.NoError(t, err)

	path, sent := up.request()
	assert.Equal(t, "/messages", path)
	assert.Equal(t, "be brief", sent["system"])

	assert.Equal(t, "Checking now.", result.Content)
	assert.Equal(t, "tool_use", result.FinishReason)
	assert.Equal(t, "claude-3-haiku-20240307", result.Model)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "toolu_1", result.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"Oslo"}`, result.ToolCalls[0].Function.Arguments)
	require.NotNil(t, result.Usage)
	assert.Equal(t, core.Usage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42}, *result.Usage)
	assert.JSONEq(t, body, string(result.Raw))
}

func TestComplete_OpenAIToolCallsAndUsage(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-2024-08-06",
			"choices": [{"message": {"content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"go\"}"}}
			]}, "finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
		}`))
	})
	gw := newTestGateway(t, up.URL)

	result, err := gw.Complete(context.Background(), userEnvelope("openai", "search"))
	require.NoError(t, err)
	assert.Equal(t, "", result.Content)
	assert.Equal(t, "tool_calls", result.FinishReason)
	assert.Equal(t, "gpt-4o-2024-08-06", result.Model)
	assert.Equal(t, []core.ToolCall{{ID: "call_1", Type: "function", Function: core.ToolCallFunction{Name: "lookup", Arguments: `{"q":"go"}`}}}, result.ToolCalls)
	assert.Equal(t, &core.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12}, result.Usage)

	entries := gw.usage.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].ToolCalls)
	assert.Equal(t, 12, entries[0].TotalTokens)
	assert.Equal(t, "tool_calls", entries[0].FinishReason)
}

func TestComplete_NonJSONBodyPassesThrough(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	})
	gw := newTestGateway(t, up.URL)

	result, err := gw.Complete(context.Background(), userEnvelope("openai", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(result.Raw))
	assert.Empty(t, result.Content)
}

func TestComplete_ModelResolution(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		model     string
		wantModel string
	}{
		{name: "configured defaults", wantModel: "gpt-4o"},
		{name: "explicit provider uses its default model", provider: "deepseek", wantModel: "deepseek-chat"},
		{name: "explicit model with default provider", model: "gpt-4.1", wantModel: "gpt-4.1"},
		{name: "explicit provider and model", provider: "deepseek", model: "deepseek-reasoner", wantModel: "deepseek-reasoner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			})
			gw := newTestGateway(t, up.URL)

			env := userEnvelope(tt.provider, "hi")
			env.Model = tt.model
			result, err := gw.Complete(context.Background(), env)
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, result.Model)

			_, sent := up.request()
			assert.Equal(t, tt.wantModel, sent["model"])
		})
	}
}

func TestComplete_EnvelopeNotMutated(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	gw := newTestGateway(t, up.URL)

	env := &core.RequestEnvelope{Messages: []core.ChatMessage{{Role: "user", Content: strPtr("hi")}}, MaxTokens: 64, Stream: true}
	_, err := gw.Complete(context.Background(), env)
	require.NoError(t, err)
	assert.Empty(t, env.Provider)
	assert.Empty(t, env.Model)
	assert.Equal(t, 64, env.MaxTokens)
	assert.True(t, env.Stream)
}

func TestComplete_Timeout(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	gw := newTestGateway(t, up.URL, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := gw.Complete(context.Background(), userEnvelope("openai", "hi"))
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeTransport))
	assert.Less(t, time.Since(start), time.Second)
}

func TestComplete_PropagatesRequestID(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{}`))
	})
	gw := newTestGateway(t, up.URL)

	ctx := core.WithRequestID(context.Background(), "req-42")
	_, err := gw.Complete(ctx, userEnvelope("openai", "hi"))
	require.NoError(t, err)

	entries := gw.usage.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].RequestID)
}

func TestComplete_Hooks(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	})

	var infos []CallInfo
	gw := newTestGateway(t, up.URL, func(o *Options) {
		o.Hooks.OnCallEnd = func(info CallInfo) { infos = append(infos, info) }
	})

	_, err := gw.Complete(context.Background(), userEnvelope("deepseek", "hi"))
	require.NoError(t, err)

	require.Len(t, infos, 1)
	assert.Equal(t, "deepseek", infos[0].Provider)
	assert.Equal(t, StateDone, infos[0].State)
	assert.Equal(t, "stop", infos[0].FinishReason)
	assert.False(t, infos[0].Stream)
}
