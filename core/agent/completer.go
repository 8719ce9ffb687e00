// Package agent runs the conversation loop: context retrieval, model
// completion, and tool dispatch.
package agent

import (
	"context"

	"github.com/embermind/engram/core/tools"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model request to run one tool.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// Message is one turn in the conversation transcript.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
	IsError    bool       // tool messages only
}

// Request is a completion request.
type Request struct {
	System    string
	Messages  []Message
	Tools     []tools.APISchema
	MaxTokens int
}

// Response is a completion result. A response with ToolCalls set asks the
// caller to execute them and continue the turn.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// Completer produces model completions.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	ModelName() string
}
