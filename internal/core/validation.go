package core

import "fmt"

// Sampling bounds and defaults for RequestEnvelope.
const (
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	MinMaxTokens       = 1
	MaxMaxTokens       = 128000
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

var validRoles = map[string]struct{}{
	"system":    {},
	"user":      {},
	"assistant": {},
	"tool":      {},
}

// Validate checks the envelope before dispatch. Values outside the declared
// ranges are rejected, never clamped.
func (e *RequestEnvelope) Validate() error {
	if len(e.Messages) == 0 {
		return NewInvalidRequestError("messages must not be empty", nil)
	}
	for i, m := range e.Messages {
		if _, ok := validRoles[m.Role]; !ok {
			return NewInvalidRequestError(fmt.Sprintf("messages[%d]: unsupported role %q", i, m.Role), nil)
		}
	}
	if e.Temperature < MinTemperature || e.Temperature > MaxTemperature {
		return NewInvalidRequestError(fmt.Sprintf("temperature must be between %g and %g", MinTemperature, MaxTemperature), nil)
	}
	if e.MaxTokens < MinMaxTokens || e.MaxTokens > MaxMaxTokens {
		return NewInvalidRequestError(fmt.Sprintf("max_tokens must be between %d and %d", MinMaxTokens, MaxMaxTokens), nil)
	}
	for i, t := range e.Tools {
		if t.Function != nil && t.Function.Name == "" {
			return NewInvalidRequestError(fmt.Sprintf("tools[%d]: function name is required", i), nil)
		}
	}
	return nil
}
