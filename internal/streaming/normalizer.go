// Package streaming turns provider server-sent-event streams into uniform
// chunks and writes them back out as server-sent events.
package streaming

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"chatgateway/internal/core"
)

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// decoder turns one decoded JSON payload into zero or more chunks and
// records any token usage it carries.
type decoder func(payload gjson.Result, raw []byte, usage *core.Usage) []core.NormalizedChunk

var decoders = map[core.Shape]decoder{
	core.ShapeOpenAI:    decodeOpenAI,
	core.ShapeAnthropic: decodeAnthropic,
}

// Normalizer converts raw SSE lines of one upstream stream into
// NormalizedChunks. A Normalizer belongs to a single call and is not safe
// for concurrent use.
type Normalizer struct {
	provider  string
	decode    decoder
	logger    *slog.Logger
	malformed int
	usage     core.Usage
	sawUsage  bool

	// OnMalformed, when set, is called for every undecodable payload.
	OnMalformed func(err *core.GatewayError)
}

// NewNormalizer returns a Normalizer for the profile's shape.
func NewNormalizer(profile *core.ProviderProfile, logger *slog.Logger) (*Normalizer, error) {
	d, ok := decoders[profile.Shape]
	if !ok {
		return nil, fmt.Errorf("no stream decoder for shape %q", profile.Shape)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{provider: profile.ID, decode: d, logger: logger}, nil
}

// Normalize handles one raw line. Lines without the data field prefix yield
// nothing. The [DONE] sentinel yields a single done chunk, after which the
// caller must stop reading. Payloads that are not valid JSON are logged and
// skipped.
func (n *Normalizer) Normalize(line []byte) []core.NormalizedChunk {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])

	if bytes.Equal(payload, doneSentinel) {
		return []core.NormalizedChunk{{Kind: core.ChunkDone}}
	}

	if !gjson.ValidBytes(payload) {
		n.malformed++
		gwErr := core.NewMalformedChunkError(n.provider, payload, nil)
		n.logger.Warn("skipping malformed stream chunk",
			"provider", n.provider,
			"data", truncate(payload, 200),
		)
		if n.OnMalformed != nil {
			n.OnMalformed(gwErr)
		}
		return nil
	}

	// the scanner reuses its buffer, so chunks keep their own copy
	raw := make([]byte, len(payload))
	copy(raw, payload)

	var usage core.Usage
	chunks := n.decode(gjson.ParseBytes(raw), raw, &usage)
	if usage != (core.Usage{}) {
		n.mergeUsage(usage)
	}
	return chunks
}

// Malformed returns the number of payloads skipped so far.
func (n *Normalizer) Malformed() int {
	return n.malformed
}

// Usage returns token usage reported in-band by the provider, if any.
func (n *Normalizer) Usage() (core.Usage, bool) {
	return n.usage, n.sawUsage
}

func (n *Normalizer) mergeUsage(u core.Usage) {
	n.sawUsage = true
	if u.PromptTokens > 0 {
		n.usage.PromptTokens = u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		n.usage.CompletionTokens = u.CompletionTokens
	}
	if u.TotalTokens > 0 {
		n.usage.TotalTokens = u.TotalTokens
	} else {
		n.usage.TotalTokens = n.usage.PromptTokens + n.usage.CompletionTokens
	}
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

func stringPtr(s string) *string { return &s }
