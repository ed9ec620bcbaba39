package core

import "encoding/json"

// Shape selects the request/response dialect spoken by a provider.
type Shape string

const (
	ShapeOpenAI    Shape = "openai"
	ShapeAnthropic Shape = "anthropic"
)

// HeaderMode selects how credentials are attached to upstream requests.
type HeaderMode string

const (
	// HeaderModeBearer sends "Authorization: Bearer <key>".
	HeaderModeBearer HeaderMode = "bearer"
	// HeaderModeCustom sends "x-api-key: <key>" plus a protocol version header.
	HeaderModeCustom HeaderMode = "custom-header"
)

// ModelInfo is one entry of a provider's model catalogue.
type ModelInfo struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	ContextWindow int    `json:"context" yaml:"context"`
}

// ProviderProfile describes one upstream API. Profiles are immutable once
// the registry has been built.
type ProviderProfile struct {
	ID           string
	Name         string
	BaseURL      string
	APIKey       string
	DefaultModel string
	Shape        Shape
	HeaderMode   HeaderMode
	Models       []ModelInfo
}

// Configured reports whether the profile has a credential.
func (p *ProviderProfile) Configured() bool {
	return p.APIKey != ""
}

// ChatMessage is one conversation turn. Content is nil for assistant turns
// that carry only tool calls.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Text returns the message content or "" when it is null.
func (m ChatMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// ToolFunction is the function block of a ToolSpec.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolSpec is a callable the model may invoke, in OpenAI tool format.
type ToolSpec struct {
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function,omitempty"`
}

// ToolCallFunction holds the function name and its JSON-encoded arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a model-issued invocation.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// RequestEnvelope is the uniform request accepted by the gateway.
// Provider and Model may be empty, in which case configured defaults apply.
type RequestEnvelope struct {
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Tools       []ToolSpec    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// ChunkKind discriminates NormalizedChunk payloads.
type ChunkKind string

const (
	ChunkContentDelta      ChunkKind = "content-delta"
	ChunkToolCallStart     ChunkKind = "tool-call-start"
	ChunkToolArgumentDelta ChunkKind = "tool-call-argument-delta"
	ChunkFinish            ChunkKind = "finish"
	ChunkError             ChunkKind = "error"
	ChunkDone              ChunkKind = "done"
)

// ToolCallStart announces a tool call whose arguments follow as deltas.
type ToolCallStart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NormalizedChunk is one provider-agnostic unit of streamed output.
// Only the fields relevant to Kind are set.
type NormalizedChunk struct {
	Kind ChunkKind `json:"-"`

	Content        *string         `json:"content,omitempty"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	ToolInputDelta *string         `json:"tool_input_delta,omitempty"`
	ToolCallStart  *ToolCallStart  `json:"tool_call_start,omitempty"`
	FinishReason   string          `json:"finish_reason,omitempty"`
	Error          string          `json:"error,omitempty"`

	// Raw is the decoded upstream fragment the chunk was produced from.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// EventType returns the outgoing SSE "type" discriminator for the chunk.
func (c NormalizedChunk) EventType() string {
	switch c.Kind {
	case ChunkError:
		return "error"
	case ChunkDone:
		return "done"
	default:
		return "chunk"
	}
}

// Terminal reports whether nothing may follow this chunk.
func (c NormalizedChunk) Terminal() bool {
	return c.Kind == ChunkDone || c.Kind == ChunkError
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResult is the answer of a buffered call. Raw is the upstream
// body exactly as received; the other fields are read out of it.
type CompletionResult struct {
	Provider     string
	Model        string
	FinishReason string
	Content      string
	ToolCalls    []ToolCall
	Usage        *Usage
	Raw          json.RawMessage
}
