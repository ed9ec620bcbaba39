package gateway

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"chatgateway/internal/core"
)

// extractors read convenience fields out of a native response body. The
// body itself is returned unchanged.
var extractors = map[core.Shape]func(body gjson.Result, result *core.CompletionResult){
	core.ShapeOpenAI:    extractOpenAI,
	core.ShapeAnthropic: extractAnthropic,
}

func extractResult(profile *core.ProviderProfile, body []byte) *core.CompletionResult {
	result := &core.CompletionResult{
		Provider: profile.ID,
		Raw:      json.RawMessage(body),
	}
	if !gjson.ValidBytes(body) {
		return result
	}
	parsed := gjson.ParseBytes(body)
	result.Model = parsed.Get("model").String()
	if extract, ok := extractors[profile.Shape]; ok {
		extract(parsed, result)
	}
	return result
}

func extractOpenAI(body gjson.Result, result *core.CompletionResult) {
	choice := body.Get("choices.0")
	result.Content = choice.Get("message.content").String()
	result.FinishReason = choice.Get("finish_reason").String()

	if calls := choice.Get("message.tool_calls"); calls.IsArray() {
		var toolCalls []core.ToolCall
		if err := json.Unmarshal([]byte(calls.Raw), &toolCalls); err == nil {
			result.ToolCalls = toolCalls
		}
	}

	if u := body.Get("usage"); u.Exists() {
		result.Usage = &core.Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:      int(u.Get("total_tokens").Int()),
		}
	}
}

func extractAnthropic(body gjson.Result, result *core.CompletionResult) {
	var text strings.Builder
	body.Get("content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			text.WriteString(block.Get("text").String())
		case "tool_use":
			args := block.Get("input").Raw
			if args == "" {
				args = "{}"
			}
			result.ToolCalls = append(result.ToolCalls, core.ToolCall{
				ID:   block.Get("id").String(),
				Type: "function",
				Function: core.ToolCallFunction{
					Name:      block.Get("name").String(),
					Arguments: args,
				},
			})
		}
		return true
	})
	result.Content = text.String()
	result.FinishReason = body.Get("stop_reason").String()

	if u := body.Get("usage"); u.Exists() {
		input := int(u.Get("input_tokens").Int())
		output := int(u.Get("output_tokens").Int())
		result.Usage = &core.Usage{
			PromptTokens:     input,
			CompletionTokens: output,
			TotalTokens:      input + output,
		}
	}
}
