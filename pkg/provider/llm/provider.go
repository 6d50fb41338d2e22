// Package llm defines the Provider interface for language-model backends.
//
// A provider wraps a remote or local chat-completion API (OpenAI, Anthropic,
// Gemini, a local Ollama instance, …) and exposes a uniform interface for the
// agent loop to request model decisions — with tool definitions attached —
// without coupling to any specific SDK. The same interface serves both the
// reasoning model and the smaller pruning model.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message is a single turn in a model conversation.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls holds any tool invocations an assistant message requested.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this
	// message answers.
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model. It is created by the
// model's decision and consumed exactly once by the agent loop.
type ToolCall struct {
	// ID is the provider-assigned opaque identifier for this call.
	ID string

	// Name is the tool name the model chose.
	Name string

	// Arguments is the JSON-encoded argument object as emitted by the model.
	Arguments string
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains when the model should pick this tool.
	Description string

	// Parameters is the JSON Schema for the tool's argument object.
	Parameters map[string]any
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a decision.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history replayed to the model.
	Messages []Message

	// Tools is the set of tool definitions offered for this invocation.
	// Leave empty for plain completions (e.g., the pruning pass).
	Tools []ToolDefinition

	// SystemPrompt is an optional instruction injected before Messages.
	// Providers without a dedicated system slot prepend it as a system-role
	// message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// greedy decoding on most backends.
	Temperature float64

	// MaxTokens caps completion length. Zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the model's decision for one invocation.
type CompletionResponse struct {
	// Content is the assistant's reply text. Empty when the model responds
	// exclusively with tool calls.
	Content string

	// ToolCalls lists the tool invocations the model requested, in the order
	// it emitted them. The caller executes them and appends one tool-role
	// message per call before the next invocation.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use. Complete must return as
// soon as ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full decision.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many context-window tokens messages would
	// consume. The estimate may be approximate but should not undercount;
	// the agent loop uses it when trimming conversation history.
	CountTokens(messages []Message) (int, error)

	// ModelID returns the backend model identifier (e.g., "gpt-4o",
	// "qwen3:8b"). Used for logging and metrics attributes.
	ModelID() string
}
