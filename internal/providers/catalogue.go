package providers

import "chatgateway/internal/core"

// builtinProvider is the compiled-in default for a well-known provider.
// Environment variables and the providers file may override any field.
type builtinProvider struct {
	id           string
	name         string
	baseURL      string
	defaultModel string
	shape        core.Shape
	models       []core.ModelInfo
}

var builtinProviders = []builtinProvider{
	{
		id:           "openai",
		name:         "OpenAI",
		baseURL:      "https://api.openai.com/v1",
		defaultModel: "gpt-4o-mini",
		shape:        core.ShapeOpenAI,
		models: []core.ModelInfo{
			{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000},
			{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextWindow: 128000},
			{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000},
			{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextWindow: 16385},
		},
	},
	{
		id:           "deepseek",
		name:         "DeepSeek",
		baseURL:      "https://api.deepseek.com/v1",
		defaultModel: "deepseek-chat",
		shape:        core.ShapeOpenAI,
		models: []core.ModelInfo{
			{ID: "deepseek-chat", Name: "DeepSeek Chat", ContextWindow: 64000},
			{ID: "deepseek-coder", Name: "DeepSeek Coder", ContextWindow: 64000},
		},
	},
	{
		id:           "siliconflow",
		name:         "SiliconFlow",
		baseURL:      "https://api.siliconflow.cn/v1",
		defaultModel: "MiniMaxAI/MiniMax-M2",
		shape:        core.ShapeOpenAI,
		models: []core.ModelInfo{
			{ID: "MiniMaxAI/MiniMax-M2", Name: "MiniMax M2", ContextWindow: 128000},
			{ID: "Qwen/Qwen2.5-72B-Instruct", Name: "Qwen 2.5 72B", ContextWindow: 32000},
			{ID: "deepseek-ai/DeepSeek-V3", Name: "DeepSeek V3", ContextWindow: 64000},
		},
	},
	{
		id:           "anthropic",
		name:         "Anthropic",
		baseURL:      "https://api.anthropic.com/v1",
		defaultModel: "claude-3-5-sonnet-20241022",
		shape:        core.ShapeAnthropic,
		models: []core.ModelInfo{
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextWindow: 200000},
			{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextWindow: 200000},
			{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextWindow: 200000},
		},
	},
}

// headerModeFor maps a shape to the credential scheme its APIs expect.
var headerModeFor = map[core.Shape]core.HeaderMode{
	core.ShapeOpenAI:    core.HeaderModeBearer,
	core.ShapeAnthropic: core.HeaderModeCustom,
}
