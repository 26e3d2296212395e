package llm

import "context"

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool declares a function the model may call instead of answering.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is the model's request to invoke a declared tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Request is a single completion request.
type Request struct {
	SystemPrompt string
	History      []Message
	UserMessage  string
	Tools        []Tool
}

// Result carries either the assistant's text or tool calls, plus token
// counts for usage accounting.
type Result struct {
	Content          string
	ToolCalls        []ToolCall
	PromptTokens     int
	CompletionTokens int
}

// CompletionProvider interface untuk multiple AI providers
type CompletionProvider interface {
	Complete(ctx context.Context, req Request) (*Result, error)
	GetProviderName() string
}
