package testutil

import (
	"time"

	"github.com/parleyhq/parley/core"
)

// AccountBuilder helps construct accounts with fluent chaining for tests.
// Example:
//
//	acct := NewAccountBuilder("acct-1").Name("Ada").ActiveSession("sess-1").Build()
type AccountBuilder struct {
	id              string
	profile         core.Profile
	insight         string
	status          core.AccountStatus
	activeSession   string
	history         []string
	recommendations []core.Recommendation
	lastActivity    time.Time
}

// NewAccountBuilder creates a new builder for an account with the given id.
// Use chainable methods then call Build.
func NewAccountBuilder(id string) *AccountBuilder {
	return &AccountBuilder{id: id, status: core.AccountIdle, lastActivity: time.Now().UTC()}
}

// Name sets the profile name (chainable).
func (b *AccountBuilder) Name(name string) *AccountBuilder {
	b.profile.Name = name
	return b
}

// Profile replaces the whole profile (chainable).
func (b *AccountBuilder) Profile(p core.Profile) *AccountBuilder {
	b.profile = p
	return b
}

// Insight sets the accumulated insight text (chainable).
func (b *AccountBuilder) Insight(text string) *AccountBuilder {
	b.insight = text
	return b
}

// Status sets the account status (chainable).
func (b *AccountBuilder) Status(s core.AccountStatus) *AccountBuilder {
	b.status = s
	return b
}

// ActiveSession sets the active session key and marks the account as
// chatting (chainable).
func (b *AccountBuilder) ActiveSession(key string) *AccountBuilder {
	b.activeSession = key
	b.status = core.AccountChatting
	return b
}

// History appends session keys to the account history (chainable).
func (b *AccountBuilder) History(keys ...string) *AccountBuilder {
	b.history = append(b.history, keys...)
	return b
}

// Recommendation appends a recommendation (chainable).
func (b *AccountBuilder) Recommendation(title, reason string) *AccountBuilder {
	b.recommendations = append(b.recommendations, core.Recommendation{
		Title:      title,
		Reason:     reason,
		RecordedAt: b.lastActivity,
	})
	return b
}

// LastActivity overrides the activity timestamp (chainable).
func (b *AccountBuilder) LastActivity(t time.Time) *AccountBuilder {
	b.lastActivity = t
	return b
}

// Build returns a *core.Account with the configured fields.
func (b *AccountBuilder) Build() *core.Account {
	acct := core.NewAccount(b.id, b.profile)
	acct.Insight = b.insight
	acct.Status = b.status
	acct.ActiveSession = b.activeSession
	acct.History = append(acct.History, b.history...)
	acct.Recommendations = append(acct.Recommendations, b.recommendations...)
	acct.LastActivity = b.lastActivity
	return acct
}
