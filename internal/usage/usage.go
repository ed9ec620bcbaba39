// Package usage keeps a ledger of chat-completion calls: one entry per call
// with its provider, outcome and token counts. Entries are buffered and
// written asynchronously to the configured storage backend.
package usage

import (
	"context"
	"time"
)

// Entry status values.
const (
	StatusDone    = "done"
	StatusErrored = "errored"
)

// Store defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*Entry) error

	// Flush forces any pending writes to complete.
	Flush(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Entry represents a single call record.
type Entry struct {
	// ID is a unique identifier for this entry (UUID)
	ID string `json:"id" bson:"_id"`

	// RequestID is the X-Request-ID the call was logged under
	RequestID string `json:"request_id" bson:"request_id"`

	// Timestamp is when the call finished
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	Provider string `json:"provider" bson:"provider"`
	Model    string `json:"model" bson:"model"`
	Stream   bool   `json:"stream" bson:"stream"`

	// Status is StatusDone or StatusErrored; ErrorType is set for the latter
	Status       string `json:"status" bson:"status"`
	ErrorType    string `json:"error_type,omitempty" bson:"error_type,omitempty"`
	FinishReason string `json:"finish_reason,omitempty" bson:"finish_reason,omitempty"`

	// Token counts as reported by the provider, zero when not reported
	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`

	ToolCalls       int   `json:"tool_calls" bson:"tool_calls"`
	MalformedChunks int   `json:"malformed_chunks" bson:"malformed_chunks"`
	DurationMs      int64 `json:"duration_ms" bson:"duration_ms"`
}

// Config holds usage tracking configuration
type Config struct {
	// Enabled controls whether usage tracking is active
	Enabled bool

	// BufferSize is the number of entries to buffer before dropping
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep entries (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
