package core

import "time"

// AccountStatus tracks where an account sits in its login/chat cycle.
type AccountStatus string

const (
	// AccountIdle is the initial state of a freshly created account.
	AccountIdle AccountStatus = "idle"
	// AccountAuthenticated means the identity has been verified recently.
	AccountAuthenticated AccountStatus = "authenticated"
	// AccountChatting means the account owns a live session.
	AccountChatting AccountStatus = "chatting"
	// AccountLoggedOut means the last session ended; the record persists.
	AccountLoggedOut AccountStatus = "logged_out"
)

// Profile holds the user-visible attributes of an account.
type Profile struct {
	Name   string `json:"name"`
	Gender string `json:"gender,omitempty"`
	Age    int    `json:"age,omitempty"`
	Region string `json:"region,omitempty"`
	City   string `json:"city,omitempty"`
}

// Recommendation is one logged suggestion made to the user during a chat.
type Recommendation struct {
	Title      string    `json:"title"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Account is the persistent identity record for one user. Accounts are
// created once per identity and never deleted; ending a session only logs
// the account out.
//
// Invariant: ActiveSessionKey, when set, references a Conversation whose
// status is Active or Paused, never Closed.
type Account struct {
	ID              string           `json:"id"`
	Profile         Profile          `json:"profile"`
	Insight         string           `json:"insight,omitempty"`
	Status          AccountStatus    `json:"status"`
	ActiveSession   string           `json:"active_session,omitempty"`
	History         []string         `json:"history,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	LastActivity    time.Time        `json:"last_activity"`
}

// NewAccount creates an account record for a verified identity.
func NewAccount(id string, profile Profile) *Account {
	return &Account{
		ID:           id,
		Profile:      profile,
		Status:       AccountIdle,
		LastActivity: time.Now().UTC(),
	}
}

// Touch records activity now. Called at turn start, not turn completion, so
// an in-flight responder call counts as evidence of non-idleness.
func (a *Account) Touch() { a.LastActivity = time.Now().UTC() }

// PromoteSession makes sessionKey the account's active session. Any prior
// active key is demoted into History; its conversation keeps whatever status
// it had, only the pointer moves.
func (a *Account) PromoteSession(sessionKey string) {
	if a.ActiveSession != "" && a.ActiveSession != sessionKey {
		a.demote(a.ActiveSession)
	}
	a.ActiveSession = sessionKey
	a.Status = AccountChatting
	a.Touch()
}

// ReleaseSession clears the active pointer if it currently references
// sessionKey, moving the key into History. Releasing a key that is not the
// active session is a no-op.
func (a *Account) ReleaseSession(sessionKey string) {
	if a.ActiveSession != sessionKey {
		return
	}
	a.demote(sessionKey)
	a.ActiveSession = ""
}

func (a *Account) demote(sessionKey string) {
	for _, k := range a.History {
		if k == sessionKey {
			return
		}
	}
	a.History = append(a.History, sessionKey)
}

// Owns reports whether sessionKey belongs to this account, active or
// historical.
func (a *Account) Owns(sessionKey string) bool {
	if a.ActiveSession == sessionKey {
		return true
	}
	for _, k := range a.History {
		if k == sessionKey {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe for independent mutation.
func (a *Account) Clone() *Account {
	clone := *a
	clone.History = make([]string, len(a.History))
	copy(clone.History, a.History)
	clone.Recommendations = make([]Recommendation, len(a.Recommendations))
	copy(clone.Recommendations, a.Recommendations)
	return &clone
}
