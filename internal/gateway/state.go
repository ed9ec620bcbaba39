package gateway

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"chatgateway/internal/core"
)

// State is a point in the lifecycle of one call.
type State string

const (
	StateIdle        State = "idle"
	StateTranslating State = "translating"
	StateDispatched  State = "dispatched"
	StateStreaming   State = "streaming"
	StateBuffered    State = "buffered"
	StateDone        State = "done"
	StateErrored     State = "errored"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateErrored
}

// transitions lists the forward edges. Errored is reachable from every
// non-terminal state and is not listed.
var transitions = map[State][]State{
	StateIdle:        {StateTranslating},
	StateTranslating: {StateDispatched},
	StateDispatched:  {StateStreaming, StateBuffered},
	StateStreaming:   {StateDone},
	StateBuffered:    {StateDone},
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateErrored {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// call holds the mutable state of a single request. It is owned by one
// goroutine at a time and never shared between requests.
type call struct {
	requestID string
	provider  string
	model     string
	stream    bool
	started   time.Time
	logger    *slog.Logger

	state   State
	history []State
	errType core.ErrorType

	finishReason string
	usage        core.Usage
	toolCalls    int
	malformed    int
}

func newCall(requestID string, stream bool, logger *slog.Logger) *call {
	return &call{
		requestID: requestID,
		stream:    stream,
		started:   time.Now(),
		logger:    logger.With("request_id", requestID),
		state:     StateIdle,
		history:   []State{StateIdle},
	}
}

// transition moves the call to next. Illegal moves are logged and ignored.
func (c *call) transition(next State) {
	if !canTransition(c.state, next) {
		c.logger.Error("illegal call state transition", "from", c.state, "to", next)
		return
	}
	c.logger.Debug("call state", "from", c.state, "to", next, "provider", c.provider)
	c.state = next
	c.history = append(c.history, next)
}

// fail moves the call to Errored and returns err unchanged.
func (c *call) fail(err error) error {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		c.errType = gwErr.Type
	} else if c.errType == "" {
		c.errType = core.ErrorTypeTransport
	}
	c.transition(StateErrored)
	return err
}

func (c *call) info() CallInfo {
	return CallInfo{
		RequestID:       c.requestID,
		Provider:        c.provider,
		Model:           c.model,
		Stream:          c.stream,
		State:           c.state,
		ErrorType:       c.errType,
		FinishReason:    c.finishReason,
		Usage:           c.usage,
		ToolCalls:       c.toolCalls,
		MalformedChunks: c.malformed,
		Duration:        time.Since(c.started),
		History:         slices.Clone(c.history),
	}
}
