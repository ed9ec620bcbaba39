package streaming

import (
	"github.com/tidwall/gjson"

	"chatgateway/internal/core"
)

// decodeAnthropic dispatches on the event type field. Event types it does
// not know about produce nothing.
func decodeAnthropic(payload gjson.Result, raw []byte, usage *core.Usage) []core.NormalizedChunk {
	switch payload.Get("type").String() {
	case "content_block_delta":
		delta := payload.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			return []core.NormalizedChunk{{
				Kind:    core.ChunkContentDelta,
				Content: stringPtr(delta.Get("text").String()),
				Raw:     raw,
			}}
		case "input_json_delta":
			return []core.NormalizedChunk{{
				Kind:           core.ChunkToolArgumentDelta,
				ToolInputDelta: stringPtr(delta.Get("partial_json").String()),
				Raw:            raw,
			}}
		}

	case "content_block_start":
		block := payload.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			return []core.NormalizedChunk{{
				Kind: core.ChunkToolCallStart,
				ToolCallStart: &core.ToolCallStart{
					ID:   block.Get("id").String(),
					Name: block.Get("name").String(),
				},
				Raw: raw,
			}}
		}

	case "message_stop":
		return []core.NormalizedChunk{{
			Kind:         core.ChunkFinish,
			FinishReason: "stop",
			Raw:          raw,
		}}

	case "message_start":
		usage.PromptTokens = int(payload.Get("message.usage.input_tokens").Int())

	case "message_delta":
		usage.CompletionTokens = int(payload.Get("usage.output_tokens").Int())
	}

	return nil
}
