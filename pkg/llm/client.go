// Package llm provides the model-provider boundary: a Client interface over
// OpenAI-compatible chat completions, plus the small-model PII redaction
// endpoint in the pii subpackage.
package llm

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation entry sent to the provider.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages
	ToolCallID string     // tool result messages
	ToolName   string     // tool result messages
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage // JSON Schema
}

// ToolCall is the model's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Tool choice modes. Empty means provider default (auto).
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// Request is a single completion request.
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  string
	Temperature *float64
	// JSONResponse asks the provider for a JSON-object response format.
	JSONResponse bool
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Completion is the provider's answer: text, tool calls, or both.
// The core tolerates either shape.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

/// Client is the outbound LLM boundary: complete(messages, tools) →
// (text | tool_calls, usage).
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}
