// Package llm implements C6, the LLM Operations Facade: a provider-agnostic
// ModelClient seam, typed-object extraction validated against JSON Schema,
// tool-callback decoration, and adaptive rate limiting, per spec.md §4.6.
//
// The message/request/response shape is a deliberately narrowed subset of
// the teacher's runtime/agent/model package (dropping multimodal parts,
// streaming, and citations, none of which spec.md calls for): plain text
// messages, tool definitions/calls, and token usage survive because
// generate/createObject and tool-callback accounting need them.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited is the sentinel a ModelClient should wrap (via
// fmt.Errorf("...: %w", ErrRateLimited)) when a provider signals its
// request was throttled, so AdaptiveRateLimiter.observe can distinguish a
// rate-limit signal from an ordinary failure.
var ErrRateLimited = errors.New("llm: provider rate limited the request")

// ConversationRole identifies the speaker of a Message.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role ConversationRole
	Text string
}

// ToolDefinition describes a tool exposed to the model, with its JSON
// Schema input shape.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema []byte // raw JSON Schema document
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name    string
	Payload []byte // canonical JSON arguments
	ID      string
}

// TokenUsage reports token consumption for a single model call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Request captures the inputs to a single model invocation.
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
}

// Response is the result of a non-streaming model invocation.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     TokenUsage
	StopReason string
}

// ModelClient is the provider-agnostic seam Generate/CreateObject dispatch
// through. Concrete provider SDKs (not part of this module; see DESIGN.md)
// implement it directly; llm.NewStub implements it deterministically for
// agent.ProcessOptions.Test.
type ModelClient interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ToolCallback executes a tool's real effect given the model's raw JSON
// arguments, returning a JSON-serializable result.
type ToolCallback func(ctx context.Context, args []byte) (any, error)
