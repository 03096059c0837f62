package chat

import (
	"context"
	"errors"
)

// Roles used in chat history
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrServiceUnavailable means the conversational model call failed
var ErrServiceUnavailable = errors.New("chat service unavailable")

// Responder defines the interface for conversational model providers.
// The system instruction carries the bill grounding context and is rebuilt
// by the caller on every turn.
type Responder interface {
	// Reply sends the instruction, prior history and new user message to the
	// model and returns the assistant reply text
	Reply(ctx context.Context, systemInstruction string, history []Turn, message string) (string, error)
	// Close closes the responder and releases resources
	Close() error
}
