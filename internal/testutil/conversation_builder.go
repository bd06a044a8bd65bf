package testutil

import (
	"time"

	"github.com/parleyhq/parley/core"
)

// ConversationBuilder helps construct conversations with fluent chaining
// for tests. Example:
//
//	conv := NewConversationBuilder("sess-1", "acct-1").
//		Turn(core.RoleUser, "hi").
//		Turn(core.RoleAssistant, "hello").
//		Build()
type ConversationBuilder struct {
	sessionKey   string
	accountID    string
	status       core.Status
	turns        []core.Turn
	summary      string
	lastAccessed time.Time
}

// NewConversationBuilder creates a new builder for a conversation owned by
// the given account. Use chainable methods then call Build.
func NewConversationBuilder(sessionKey, accountID string) *ConversationBuilder {
	return &ConversationBuilder{
		sessionKey:   sessionKey,
		accountID:    accountID,
		status:       core.StatusActive,
		lastAccessed: time.Now().UTC(),
	}
}

// Status sets the conversation status (chainable).
func (b *ConversationBuilder) Status(s core.Status) *ConversationBuilder {
	b.status = s
	return b
}

// Turn appends a single turn (chainable).
func (b *ConversationBuilder) Turn(role core.Role, content string) *ConversationBuilder {
	b.turns = append(b.turns, core.Turn{Role: role, Content: content})
	return b
}

// Turns appends multiple turns (chainable).
func (b *ConversationBuilder) Turns(turns ...core.Turn) *ConversationBuilder {
	b.turns = append(b.turns, turns...)
	return b
}

// Summary sets the post-close summary text (chainable).
func (b *ConversationBuilder) Summary(text string) *ConversationBuilder {
	b.summary = text
	return b
}

// LastAccessed overrides the access timestamp (chainable).
func (b *ConversationBuilder) LastAccessed(t time.Time) *ConversationBuilder {
	b.lastAccessed = t
	return b
}

// Build returns a *core.Conversation with the configured fields.
func (b *ConversationBuilder) Build() *core.Conversation {
	conv := core.NewConversation(b.sessionKey, b.accountID)
	conv.Status = b.status
	conv.Messages = append(conv.Messages, b.turns...)
	conv.Summary = b.summary
	conv.LastAccessed = b.lastAccessed
	return conv
}
