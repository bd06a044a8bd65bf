package core

import (
	"time"

	"github.com/google/uuid"
)

// Role tags the author of a single turn.
type Role string

const (
	// RoleUser marks a turn authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the responder.
	RoleAssistant Role = "assistant"
	// RoleSystem marks an instruction turn injected by the service.
	RoleSystem Role = "system"
)

// CoerceRole normalizes a raw role tag. Unknown or garbled tags collapse to
// RoleAssistant rather than failing, so historical data with format drift
// keeps its conversational continuity. "model" is a legacy alias for
// assistant still present in old records.
func CoerceRole(raw string) Role {
	switch raw {
	case "user":
		return RoleUser
	case "system":
		return RoleSystem
	case "assistant", "model":
		return RoleAssistant
	default:
		return RoleAssistant
	}
}

// Turn is one role-tagged message inside a Conversation. Turns have no
// independent lifecycle; ordering within a conversation is significant and
// never reordered.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Status is the lifecycle state of a Conversation.
type Status string

const (
	// StatusActive means the conversation is accepting turns and its hot
	// history lives in the Registry.
	StatusActive Status = "active"
	// StatusPaused means the conversation is persisted, its history held
	// only in the durable store.
	StatusPaused Status = "paused"
	// StatusClosed is terminal; enrichment may run once, then the record is
	// immutable apart from the one-time summary attachment.
	StatusClosed Status = "closed"
)

// Conversation is one chat thread's persisted record.
type Conversation struct {
	SessionKey   string    `json:"session_key"`
	AccountID    string    `json:"account_id"`
	Status       Status    `json:"status"`
	Messages     []Turn    `json:"messages"`
	Summary      string    `json:"summary,omitempty"`
	LastAccessed time.Time `json:"last_accessed"`
}

// NewConversation creates an empty Active conversation owned by accountID.
func NewConversation(sessionKey, accountID string) *Conversation {
	return &Conversation{
		SessionKey:   sessionKey,
		AccountID:    accountID,
		Status:       StatusActive,
		Messages:     []Turn{},
		LastAccessed: time.Now().UTC(),
	}
}

// NewSessionKey allocates a fresh session key.
func NewSessionKey() string { return uuid.NewString() }

// Clone returns a deep copy safe for independent mutation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]Turn, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return &clone
}

// CoerceTurns normalizes the role tag of every turn in order.
func CoerceTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = Turn{Role: CoerceRole(string(t.Role)), Content: t.Content}
	}
	return out
}
