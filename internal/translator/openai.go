package translator

import "chatgateway/internal/core"

type openAIRequest struct {
	Model       string             `json:"model"`
	Messages    []core.ChatMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
	Tools       []core.ToolSpec    `json:"tools,omitempty"`
	ToolChoice  string             `json:"tool_choice,omitempty"`
}

// openAIBody passes messages and tools through unchanged, system turns included.
func openAIBody(env *core.RequestEnvelope) any {
	req := &openAIRequest{
		Model:       env.Model,
		Messages:    env.Messages,
		Temperature: env.Temperature,
		MaxTokens:   env.MaxTokens,
		Stream:      env.Stream,
	}
	if len(env.Tools) > 0 {
		req.Tools = env.Tools
		req.ToolChoice = "auto"
	}
	return req
}
