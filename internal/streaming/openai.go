package streaming

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"chatgateway/internal/core"
)

// decodeOpenAI reads choices[0] of a chat.completion.chunk. One payload can
// carry content, tool call fragments and a finish reason at once; chunks are
// emitted in that order.
func decodeOpenAI(payload gjson.Result, raw []byte, usage *core.Usage) []core.NormalizedChunk {
	if u := payload.Get("usage"); u.IsObject() {
		usage.PromptTokens = int(u.Get("prompt_tokens").Int())
		usage.CompletionTokens = int(u.Get("completion_tokens").Int())
		usage.TotalTokens = int(u.Get("total_tokens").Int())
	}

	choice := payload.Get("choices.0")
	if !choice.Exists() {
		return nil
	}

	var chunks []core.NormalizedChunk
	delta := choice.Get("delta")

	if content := delta.Get("content"); content.Type == gjson.String {
		chunks = append(chunks, core.NormalizedChunk{
			Kind:    core.ChunkContentDelta,
			Content: stringPtr(content.String()),
			Raw:     raw,
		})
	}

	if toolCalls := delta.Get("tool_calls"); toolCalls.IsArray() {
		chunks = append(chunks, core.NormalizedChunk{
			Kind:      core.ChunkToolArgumentDelta,
			ToolCalls: json.RawMessage(toolCalls.Raw),
			Raw:       raw,
		})
	}

	if reason := choice.Get("finish_reason"); reason.Type == gjson.String && reason.String() != "" {
		chunks = append(chunks, core.NormalizedChunk{
			Kind:         core.ChunkFinish,
			FinishReason: reason.String(),
			Raw:          raw,
		})
	}

	return chunks
}
