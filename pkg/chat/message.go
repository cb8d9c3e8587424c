// Package chat provides the internal representations of conversations,
// messages, and sessions shared by the relay and the client-side store.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single turn in a conversation.
type Message struct {
	// ID is the client-side identity, assigned at creation. The reveal
	// task uses it to make sure it only ever writes into the message it
	// was started for.
	ID string `json:"id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// CreatedAt is assigned client-side and overwritten by the server
	// value on confirmation when present.
	CreatedAt time.Time `json:"created_at"`

	// ServerID is assigned by the persistence backend. Empty until the
	// server acknowledges the message.
	ServerID string `json:"server_id,omitempty"`
}

// NewUserMessage creates a user message with the given content.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewPlaceholder creates an empty assistant message reserved to receive a
// reply once available.
func NewPlaceholder() *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// IsPlaceholder reports whether the message is a pending assistant
// placeholder that has not received any content yet.
func (m *Message) IsPlaceholder() bool {
	return m.Role == RoleAssistant && m.Content == ""
}
