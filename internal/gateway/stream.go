package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"chatgateway/internal/core"
	"chatgateway/internal/streaming"
)

// Sink receives relayed chunks in order. streaming.EventWriter is the
// HTTP implementation.
type Sink interface {
	Send(chunk core.NormalizedChunk) error
}

// Stream is an open upstream event stream. It is owned by the goroutine
// that relays it.
type Stream struct {
	gateway    *Gateway
	call       *call
	ctx        context.Context
	body       io.ReadCloser
	reader     io.Reader
	watchdog   *watchdog
	cancel     context.CancelFunc
	normalizer *streaming.Normalizer
	tools      *streaming.ToolCallAccumulator

	relayed   bool
	sent      int // chunks handed to the sink, terminal chunk excluded
	closeOnce sync.Once
}

// Provider returns the resolved provider id.
func (s *Stream) Provider() string { return s.call.provider }

// Model returns the resolved model.
func (s *Stream) Model() string { return s.call.model }

// RequestID returns the id the call is logged under.
func (s *Stream) RequestID() string { return s.call.requestID }

// State returns the current call state.
func (s *Stream) State() State { return s.call.state }

// ToolCalls returns the tool calls assembled from the fragments relayed so far.
func (s *Stream) ToolCalls() []core.ToolCall { return s.tools.ToolCalls() }

// Relay reads the upstream stream line by line and hands every normalized
// chunk to sink before reading the next line. It always ends the stream
// with exactly one done or error chunk, unless the sink itself fails.
// The upstream connection is released before Relay returns.
func (s *Stream) Relay(sink Sink) error {
	defer s.Close()

	if s.relayed {
		return fmt.Errorf("stream already relayed")
	}
	s.relayed = true

	lines := streaming.NewLineReader(s.reader)
	finished := false

	for {
		line, err := lines.Next()
		if err == io.EOF {
			return s.complete(sink)
		}
		if err != nil {
			return s.abort(sink, s.readError(err))
		}

		for _, chunk := range s.normalizer.Normalize(line) {
			if chunk.Kind == core.ChunkDone {
				return s.complete(sink)
			}
			// nothing meaningful follows a finish chunk
			if finished {
				continue
			}
			if chunk.Kind == core.ChunkFinish {
				finished = true
				s.call.finishReason = chunk.FinishReason
			}
			s.tools.Add(chunk)
			if err := s.send(sink, chunk); err != nil {
				return s.call.fail(err)
			}
			s.sent++
		}
	}
}

// Close releases the upstream connection. A stream closed before reaching
// a terminal state is recorded as errored. Close is idempotent.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.watchdog.Stop()
		s.cancel()
		err = s.body.Close()

		if !s.call.state.Terminal() {
			_ = s.call.fail(core.NewTransportError(s.call.provider, "stream closed before completion", nil))
		}
		if u, ok := s.normalizer.Usage(); ok {
			s.call.usage = u
		}
		s.call.toolCalls = s.tools.Len()
		s.call.malformed = s.normalizer.Malformed()
		s.gateway.end(s.call)
	})
	return err
}

func (s *Stream) complete(sink Sink) error {
	// a stream made only of undecodable payloads delivered nothing
	if s.sent == 0 && s.normalizer.Malformed() > 0 {
		return s.abort(sink, &core.GatewayError{
			Type:     core.ErrorTypeMalformedChunk,
			Message:  fmt.Sprintf("upstream sent %d undecodable payloads and no content", s.normalizer.Malformed()),
			Provider: s.call.provider,
		})
	}
	if err := s.send(sink, core.NormalizedChunk{Kind: core.ChunkDone}); err != nil {
		return s.call.fail(err)
	}
	s.call.transition(StateDone)
	return nil
}

// abort relays a single error chunk carrying the failure text.
func (s *Stream) abort(sink Sink, gwErr *core.GatewayError) error {
	_ = s.call.fail(gwErr)
	if err := s.send(sink, core.NormalizedChunk{Kind: core.ChunkError, Error: gwErr.Message}); err != nil {
		s.call.logger.Debug("failed to relay error chunk", "error", err)
	}
	return gwErr
}

func (s *Stream) send(sink Sink, chunk core.NormalizedChunk) error {
	if err := sink.Send(chunk); err != nil {
		return fmt.Errorf("relay failed: %w", err)
	}
	if s.gateway.hooks.OnChunk != nil {
		s.gateway.hooks.OnChunk(s.call.provider, chunk.Kind)
	}
	return nil
}

func (s *Stream) readError(err error) *core.GatewayError {
	switch {
	case s.watchdog.Expired():
		return idleTimeoutError(s.call.provider, s.watchdog.timeout)
	case errors.Is(s.ctx.Err(), context.Canceled):
		return core.NewTransportError(s.call.provider, "request cancelled", s.ctx.Err())
	default:
		return core.NewTransportError(s.call.provider, "upstream stream interrupted", err)
	}
}

func (g *Gateway) newNormalizer(c *call, profile *core.ProviderProfile) (*streaming.Normalizer, error) {
	n, err := streaming.NewNormalizer(profile, c.logger)
	if err != nil {
		return nil, err
	}
	if g.hooks.OnMalformed != nil {
		n.OnMalformed = func(*core.GatewayError) {
			g.hooks.OnMalformed(profile.ID)
		}
	}
	return n, nil
}

func idleTimeoutError(provider string, timeout time.Duration) *core.GatewayError {
	return core.NewTransportError(provider, fmt.Sprintf("no data from upstream for %s", timeout), nil)
}

// watchdog cancels a call when no bytes arrive within timeout. Every
// successful read re-arms it.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newWatchdog(timeout time.Duration, onExpire func()) *watchdog {
	w := &watchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.expired.Store(true)
		onExpire()
	})
	return w
}

func (w *watchdog) Reset() {
	if !w.expired.Load() {
		w.timer.Reset(w.timeout)
	}
}

func (w *watchdog) Stop() {
	w.timer.Stop()
}

func (w *watchdog) Expired() bool {
	return w.expired.Load()
}

type watchedReader struct {
	r        io.Reader
	watchdog *watchdog
}

func (r *watchedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.watchdog.Reset()
	}
	return n, err
}
