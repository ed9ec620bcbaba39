package streaming

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chatgateway/internal/core"
)

var terminator = []byte("data: [DONE]\n\n")

// event is the outgoing JSON object: the chunk fields plus a type discriminator.
type event struct {
	Type string `json:"type"`
	core.NormalizedChunk
}

// EventWriter writes NormalizedChunks as server-sent events. A terminal
// chunk (done or error) is followed by the [DONE] terminator, after which
// further chunks are rejected.
type EventWriter struct {
	w          io.Writer
	flusher    http.Flusher
	includeRaw bool
	closed     bool
}

// NewEventWriter wraps w. When w is an http.Flusher every event is flushed
// as soon as it is written. includeRaw controls whether the upstream
// fragment is forwarded in the "raw" field.
func NewEventWriter(w io.Writer, includeRaw bool) *EventWriter {
	flusher, _ := w.(http.Flusher)
	return &EventWriter{w: w, flusher: flusher, includeRaw: includeRaw}
}

// Send writes one chunk as a data event.
func (e *EventWriter) Send(chunk core.NormalizedChunk) error {
	if e.closed {
		return fmt.Errorf("event stream already terminated")
	}
	if !e.includeRaw {
		chunk.Raw = nil
	}

	data, err := json.Marshal(event{Type: chunk.EventType(), NormalizedChunk: chunk})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')
	if chunk.Terminal() {
		buf = append(buf, terminator...)
		e.closed = true
	}

	if _, err := e.w.Write(buf); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Closed reports whether a terminal chunk has been written.
func (e *EventWriter) Closed() bool {
	return e.closed
}
