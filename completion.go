package workflow

import "context"

// Message roles used in the agent tool loop
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Completer is the completion service used by agent nodes. Transport and
// provider selection are the implementation's concern.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is one logical completion request. On the first turn of
// an agent node Messages is empty; later turns carry the assistant tool
// calls and tool results produced so far.
type CompletionRequest struct {
	System       string         `json:"system,omitempty"`
	Prompt       string         `json:"prompt"`
	ModelID      string         `json:"modelId,omitempty"`
	Tools        []ToolSpec     `json:"tools,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	Messages     []Message      `json:"messages,omitempty"`
}

// Message is a turn of the tool loop conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by a model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CompletionResponse is the result of a completion request.
type CompletionResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}
