// Package llms defines the chat-completion surface the agent core depends
// on. Tool calls are disabled on every request: the orchestrator only ever
// consumes plain text replies, and a model attempting a tool call is treated
// as having returned an empty response so the caller's retry path fires.
package llms

import "context"

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an immutable role-tagged text record.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant are shorthand constructors.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ReasoningEffort hints how much reasoning the model should spend on a
// request. Empty means provider default.
type ReasoningEffort string

const (
	ReasoningEffortNone   ReasoningEffort = ""
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// Provider is the LLM collaborator contract. Implementations must collapse
// any structured content blocks into a single text payload and must never
// surface tool calls.
type Provider interface {
	// Generate performs a non-streaming completion and returns the reply
	// text and total tokens used.
	Generate(ctx context.Context, messages []Message, effort ReasoningEffort) (text string, tokens int, err error)

	GetModelName() string

	Close() error
}
