// Package gateway runs chat-completion calls against upstream providers.
// Each call resolves a provider profile, translates the request, dispatches
// it once and either returns the buffered answer or relays a normalized
// event stream.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"chatgateway/internal/core"
	"chatgateway/internal/pkg/llmclient"
	"chatgateway/internal/streaming"
	"chatgateway/internal/translator"
	"chatgateway/internal/usage"
)

// DefaultTimeout bounds a buffered exchange and the idle time between
// stream reads.
const DefaultTimeout = 120 * time.Second

// Resolver looks up provider profiles.
type Resolver interface {
	Resolve(id string) (*core.ProviderProfile, error)
}

// Upstream performs the HTTP exchange with a provider.
type Upstream interface {
	Do(ctx context.Context, req llmclient.Request) (*llmclient.Response, error)
	DoStream(ctx context.Context, req llmclient.Request) (io.ReadCloser, error)
}

// UsageRecorder receives one ledger entry per finished call.
type UsageRecorder interface {
	Write(entry *usage.Entry)
}

// CallInfo summarizes a finished call for hooks.
type CallInfo struct {
	RequestID       string
	Provider        string
	Model           string
	Stream          bool
	State           State
	ErrorType       core.ErrorType
	FinishReason    string
	Usage           core.Usage
	ToolCalls       int
	MalformedChunks int
	Duration        time.Duration
	// History lists every state the call passed through, starting at idle.
	History []State
}

// Opened reports whether the call reached the streaming state.
func (i CallInfo) Opened() bool {
	return slices.Contains(i.History, StateStreaming)
}

// Hooks observe calls. Nil functions are skipped.
type Hooks struct {
	OnStreamOpen func(provider string)
	OnChunk      func(provider string, kind core.ChunkKind)
	OnMalformed  func(provider string)
	OnCallEnd    func(info CallInfo)
}

// Options configures a Gateway.
type Options struct {
	Registry Resolver
	Client   Upstream

	// DefaultProvider and DefaultModel apply when a request names neither.
	DefaultProvider string
	DefaultModel    string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
	Usage  UsageRecorder
	Hooks  Hooks
}

// Gateway holds only immutable dependencies; all per-request state lives
// in the call it creates, so one Gateway serves concurrent requests.
type Gateway struct {
	registry        Resolver
	client          Upstream
	defaultProvider string
	defaultModel    string
	timeout         time.Duration
	logger          *slog.Logger
	usage           UsageRecorder
	hooks           Hooks
}

// New creates a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("gateway: registry is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("gateway: upstream client is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gateway{
		registry:        opts.Registry,
		client:          opts.Client,
		defaultProvider: opts.DefaultProvider,
		defaultModel:    opts.DefaultModel,
		timeout:         opts.Timeout,
		logger:          opts.Logger,
		usage:           opts.Usage,
		hooks:           opts.Hooks,
	}, nil
}

// Complete runs a buffered call. The returned result carries the upstream
// body unchanged in Raw.
func (g *Gateway) Complete(ctx context.Context, env *core.RequestEnvelope) (*core.CompletionResult, error) {
	ctx, c := g.begin(ctx, false)
	defer g.end(c)

	profile, req, err := g.prepare(c, env, false)
	if err != nil {
		return nil, c.fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	c.transition(StateDispatched)
	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return nil, c.fail(err)
	}

	c.transition(StateBuffered)
	result := extractResult(profile, resp.Body)
	if result.Model == "" {
		result.Model = c.model
	}
	c.finishReason = result.FinishReason
	c.toolCalls = len(result.ToolCalls)
	if result.Usage != nil {
		c.usage = *result.Usage
	}
	c.transition(StateDone)
	return result, nil
}

// OpenStream dispatches a streaming call and returns once the upstream has
// answered with a success status. Errors returned here precede any output.
// The caller must Relay or Close the stream.
func (g *Gateway) OpenStream(ctx context.Context, env *core.RequestEnvelope) (*Stream, error) {
	ctx, c := g.begin(ctx, true)

	profile, req, err := g.prepare(c, env, true)
	if err != nil {
		err = c.fail(err)
		g.end(c)
		return nil, err
	}

	normalizer, err := g.newNormalizer(c, profile)
	if err != nil {
		err = c.fail(core.NewInvalidRequestError(err.Error(), err))
		g.end(c)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	watchdog := newWatchdog(g.timeout, cancel)

	c.transition(StateDispatched)
	body, err := g.client.DoStream(ctx, req)
	if err != nil {
		watchdog.Stop()
		cancel()
		if watchdog.Expired() {
			err = idleTimeoutError(c.provider, g.timeout)
		}
		err = c.fail(err)
		g.end(c)
		return nil, err
	}

	c.transition(StateStreaming)
	if g.hooks.OnStreamOpen != nil {
		g.hooks.OnStreamOpen(c.provider)
	}

	return &Stream{
		gateway:    g,
		call:       c,
		ctx:        ctx,
		body:       body,
		reader:     &watchedReader{r: body, watchdog: watchdog},
		watchdog:   watchdog,
		cancel:     cancel,
		normalizer: normalizer,
		tools:      streaming.NewToolCallAccumulator(),
	}, nil
}

// begin creates the call and makes sure the context carries a request id.
func (g *Gateway) begin(ctx context.Context, stream bool) (context.Context, *call) {
	requestID := core.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = core.WithRequestID(ctx, requestID)
	}
	return ctx, newCall(requestID, stream, g.logger)
}

// prepare covers Idle → Translating: provider and model resolution,
// validation and translation. Nothing here touches the network.
func (g *Gateway) prepare(c *call, env *core.RequestEnvelope, stream bool) (*core.ProviderProfile, llmclient.Request, error) {
	c.transition(StateTranslating)

	if env == nil {
		return nil, llmclient.Request{}, core.NewInvalidRequestError("request is required", nil)
	}

	resolved := *env
	resolved.Stream = stream

	explicitProvider := resolved.Provider != ""
	if !explicitProvider {
		resolved.Provider = g.defaultProvider
	}
	c.provider = resolved.Provider

	profile, err := g.registry.Resolve(resolved.Provider)
	if err != nil {
		return nil, llmclient.Request{}, err
	}

	if resolved.Model == "" {
		if !explicitProvider {
			resolved.Model = g.defaultModel
		}
		if resolved.Model == "" {
			resolved.Model = profile.DefaultModel
		}
	}
	if resolved.Model == "" {
		return nil, llmclient.Request{}, core.NewInvalidRequestError("model is required", nil)
	}
	c.model = resolved.Model

	if err := resolved.Validate(); err != nil {
		return nil, llmclient.Request{}, err
	}

	out, err := translator.Translate(&resolved, profile)
	if err != nil {
		return nil, llmclient.Request{}, err
	}

	return profile, llmclient.Request{
		Info: llmclient.RequestInfo{
			Provider: profile.ID,
			Model:    resolved.Model,
			Stream:   stream,
		},
		Method:  http.MethodPost,
		URL:     out.URL,
		Headers: out.Headers,
		Body:    out.Body,
	}, nil
}

// end reports a finished call to hooks and the usage ledger.
func (g *Gateway) end(c *call) {
	info := c.info()

	if info.State == StateErrored {
		c.logger.Warn("chat completion failed",
			"provider", info.Provider,
			"model", info.Model,
			"stream", info.Stream,
			"error_type", info.ErrorType,
			"duration", info.Duration,
		)
	} else {
		c.logger.Info("chat completion finished",
			"provider", info.Provider,
			"model", info.Model,
			"stream", info.Stream,
			"finish_reason", info.FinishReason,
			"duration", info.Duration,
		)
	}

	if g.hooks.OnCallEnd != nil {
		g.hooks.OnCallEnd(info)
	}
	if g.usage != nil {
		g.usage.Write(newUsageEntry(info))
	}
}

func newUsageEntry(info CallInfo) *usage.Entry {
	status := usage.StatusDone
	if info.State != StateDone {
		status = usage.StatusErrored
	}
	return &usage.Entry{
		ID:              uuid.NewString(),
		RequestID:       info.RequestID,
		Timestamp:       time.Now().UTC(),
		Provider:        info.Provider,
		Model:           info.Model,
		Stream:          info.Stream,
		Status:          status,
		ErrorType:       string(info.ErrorType),
		FinishReason:    info.FinishReason,
		InputTokens:     info.Usage.PromptTokens,
		OutputTokens:    info.Usage.CompletionTokens,
		TotalTokens:     info.Usage.TotalTokens,
		ToolCalls:       info.ToolCalls,
		MalformedChunks: info.MalformedChunks,
		DurationMs:      info.Duration.Milliseconds(),
	}
}
