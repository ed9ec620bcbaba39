package streaming

import (
	"bufio"
	"fmt"
	"io"
)

// maxLineSize bounds a single SSE line. Tool call arguments and long
// completions can exceed bufio.Scanner's 64 KiB default.
const maxLineSize = 1024 * 1024

// LineReader yields the raw lines of an SSE body one at a time.
type LineReader struct {
	scanner *bufio.Scanner
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &LineReader{scanner: scanner}
}

// Next returns the next line without its terminator. The slice is only
// valid until the following call. It returns io.EOF once the body ends
// cleanly.
func (r *LineReader) Next() ([]byte, error) {
	if r.scanner.Scan() {
		return r.scanner.Bytes(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}
	return nil, io.EOF
}
