package assistant

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a chat completion backend. Chat receives the conversation in
// oldest-first order and returns the assistant reply.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
