package domain

import (
	"errors"
	"fmt"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered list of turns. Order is turn order.
type Conversation []Message

var (
	ErrEmptyConversation = errors.New("conversation is empty")
	ErrInvalidRole       = errors.New("invalid message role")
)

// Validate checks that every message carries a known role.
func (c Conversation) Validate() error {
	for i, m := range c {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: messages[%d].role=%q", ErrInvalidRole, i, m.Role)
		}
	}
	return nil
}

// Situation is a scenario prompt framing an AI persona conversation.
type Situation struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}
