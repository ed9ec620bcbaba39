package translator

import (
	"encoding/json"

	"chatgateway/internal/core"
)

var emptyInputSchema = json.RawMessage(`{"type":"object","properties":{}}`)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// anthropicBody lifts the first system message into the top-level system
// field and drops any later ones. Other messages keep role and content only.
func anthropicBody(env *core.RequestEnvelope) any {
	req := &anthropicRequest{
		Model:       env.Model,
		Messages:    make([]anthropicMessage, 0, len(env.Messages)),
		MaxTokens:   env.MaxTokens,
		Temperature: env.Temperature,
		Stream:      env.Stream,
	}

	systemSeen := false
	for _, msg := range env.Messages {
		if msg.Role == "system" {
			if !systemSeen {
				req.System = msg.Text()
				systemSeen = true
			}
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Text(),
		})
	}

	req.Tools = convertTools(env.Tools)
	return req
}

// convertTools maps OpenAI function tools to Anthropic tools. Entries
// without a function block are skipped.
func convertTools(tools []core.ToolSpec) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	converted := make([]anthropicTool, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil || (tool.Type != "" && tool.Type != "function") {
			continue
		}
		schema := tool.Function.Parameters
		if len(schema) == 0 || string(schema) == "null" {
			schema = emptyInputSchema
		}
		converted = append(converted, anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}
	return converted
}
