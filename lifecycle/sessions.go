package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/responder"
)

// Create begins a fresh session for the account and returns its key. The new
// conversation starts Active with empty turns, registered in the Registry. If
// the account already has an active session, that key is demoted into history;
// its conversation keeps whatever status it was in. Nothing is written to the
// store here; persistence happens at the pause/close checkpoints.
func (c *Controller) Create(ctx context.Context, accountID string) (string, error) {
	c.accountLocks.Lock(accountID)
	defer c.accountLocks.Unlock(accountID)

	a, err := c.accountLocked(ctx, accountID)
	if err != nil {
		return "", err
	}

	key := core.NewSessionKey()
	conv := core.NewConversation(key, accountID)
	c.cacheConversation(conv)
	c.registry.Put(key, nil)

	a.PromoteSession(key)

	c.logger.Info("session created account_id=%s session_key=%s", accountID, key)
	return key, nil
}

// AppendTurn adds one turn to the session's hot history. A Paused session is
// resumed first; a Closed session rejects the append. The conversation's last
// access lands in the store as a cheap field update rather than a full
// history write.
func (c *Controller) AppendTurn(ctx context.Context, sessionKey string, turn core.Turn) error {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return err
	}
	switch conv.Status {
	case core.StatusClosed:
		return fmt.Errorf("append to closed session %s: %w", sessionKey, core.ErrInvalidTransition)
	case core.StatusPaused:
		c.resumeLocked(ctx, conv)
	}

	turn.Role = core.CoerceRole(string(turn.Role))
	if !c.registry.Append(sessionKey, turn) {
		c.registry.Put(sessionKey, append(conv.Messages, turn))
	}

	conv.LastAccessed = time.Now().UTC()
	c.touchConversation(ctx, conv)
	c.touchOwner(ctx, conv.AccountID)
	return nil
}

// History returns the session's ordered turns. Addressing a Paused session
// resumes it; a Closed session serves its immutable record.
func (c *Controller) History(ctx context.Context, sessionKey string) ([]core.Turn, error) {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if conv.Status == core.StatusPaused {
		c.resumeLocked(ctx, conv)
	}
	if turns, ok := c.registry.Get(sessionKey); ok {
		return turns, nil
	}
	return conv.Clone().Messages, nil
}

// Conversation returns a snapshot of the session record. For an Active
// session the hot history is folded into the snapshot's Messages.
func (c *Controller) Conversation(ctx context.Context, sessionKey string) (*core.Conversation, error) {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	snap := conv.Clone()
	if turns, ok := c.registry.Get(sessionKey); ok {
		snap.Messages = turns
	}
	return snap, nil
}

// Pause checkpoints an Active session: the hot history is serialized into the
// persisted record, the Registry entry dropped, status set Paused. Used at
// orderly shutdown for every still-open session. Pausing is not ending; it
// never triggers enrichment.
func (c *Controller) Pause(ctx context.Context, sessionKey string) error {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return err
	}
	if conv.Status != core.StatusActive {
		return fmt.Errorf("pause session %s while %s: %w", sessionKey, conv.Status, core.ErrInvalidTransition)
	}

	if turns, ok := c.registry.Get(sessionKey); ok {
		conv.Messages = core.CoerceTurns(turns)
	}
	conv.Status = core.StatusPaused
	conv.LastAccessed = time.Now().UTC()
	c.registry.Remove(sessionKey)

	if err := c.persistConversation(ctx, conv); err != nil {
		return err
	}
	c.persistOwner(ctx, conv.AccountID)
	c.logger.Info("session paused session_key=%s turns=%d", sessionKey, len(conv.Messages))
	return nil
}

// Resume reactivates a Paused session, loading its history back into the
// Registry. Any other state is an invalid transition.
func (c *Controller) Resume(ctx context.Context, sessionKey string) error {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return err
	}
	if conv.Status != core.StatusPaused {
		return fmt.Errorf("resume session %s while %s: %w", sessionKey, conv.Status, core.ErrInvalidTransition)
	}
	c.resumeLocked(ctx, conv)
	return nil
}

// resumeLocked applies the Paused -> Active transition. Caller must hold the
// session lock and have verified the precondition (or be recovering a crash
// leftover it has just demoted to Paused).
func (c *Controller) resumeLocked(ctx context.Context, conv *core.Conversation) {
	c.registry.Put(conv.SessionKey, conv.Messages)
	conv.Status = core.StatusActive
	conv.LastAccessed = time.Now().UTC()

	fields := core.Document{"status": conv.Status, "last_accessed": conv.LastAccessed}
	if _, err := c.store.UpdateFields(ctx, core.CollectionConversations, conv.SessionKey, fields); err != nil && !errors.Is(err, core.ErrNotFound) {
		c.logger.Warn("error persisting resume of session %s: %v", conv.SessionKey, err)
	}
	c.logger.Info("session resumed session_key=%s turns=%d", conv.SessionKey, len(conv.Messages))
}

// Close ends a session from Active or Paused: final history persisted, status
// Closed, Registry entry dropped, account pointer released and the account
// logged out. Closing an already-Closed session is a no-op returning success,
// so an explicit close racing the sweeper stays harmless. Returns before
// enrichment begins.
func (c *Controller) Close(ctx context.Context, sessionKey string) error {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return err
	}
	return c.closeLocked(ctx, conv)
}

func (c *Controller) closeLocked(ctx context.Context, conv *core.Conversation) error {
	if conv.Status == core.StatusClosed {
		return nil
	}

	if turns, ok := c.registry.Get(conv.SessionKey); ok {
		conv.Messages = core.CoerceTurns(turns)
	}
	conv.Status = core.StatusClosed
	conv.LastAccessed = time.Now().UTC()
	c.registry.Remove(conv.SessionKey)

	if conv.AccountID != "" {
		c.accountLocks.Lock(conv.AccountID)
		if a, err := c.accountLocked(ctx, conv.AccountID); err == nil {
			a.ReleaseSession(conv.SessionKey)
			a.Status = core.AccountLoggedOut
			if err := c.persistAccount(ctx, a); err != nil {
				c.accountLocks.Unlock(conv.AccountID)
				return err
			}
		}
		c.accountLocks.Unlock(conv.AccountID)
	}

	if err := c.persistConversation(ctx, conv); err != nil {
		return err
	}

	c.logger.Info("session closed session_key=%s turns=%d", conv.SessionKey, len(conv.Messages))
	if c.enricher != nil {
		if !c.enricher.Enqueue(conv.SessionKey) {
			c.logger.Warn("enrichment queue full, skipping session_key=%s", conv.SessionKey)
		}
	}
	return nil
}

// AttachSummary records the enrichment-generated summary on a Closed
// conversation. The record is otherwise immutable once Closed; re-attaching
// (an enrichment retry for the same close) simply overwrites the field.
func (c *Controller) AttachSummary(ctx context.Context, sessionKey, summary string) error {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return err
	}
	if conv.Status != core.StatusClosed {
		return fmt.Errorf("attach summary to %s session %s: %w", conv.Status, sessionKey, core.ErrInvalidTransition)
	}
	conv.Summary = summary
	if _, err := c.store.UpdateFields(ctx, core.CollectionConversations, sessionKey, core.Document{"summary": summary}); err != nil {
		return fmt.Errorf("attach summary %s: %w", sessionKey, err)
	}
	return nil
}

// PauseAll checkpoints every Registry-resident session. Called on orderly
// shutdown so a later start finds only Paused records.
func (c *Controller) PauseAll(ctx context.Context) error {
	var errs []error
	for _, key := range c.registry.Keys() {
		if err := c.Pause(ctx, key); err != nil && !errors.Is(err, core.ErrInvalidTransition) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseIdle closes the active session of every account idle past threshold,
// returning the closed session keys. Accounts are re-checked under their lock
// right before closing so concurrent activity racing the scan wins.
func (c *Controller) CloseIdle(ctx context.Context, threshold time.Duration) ([]string, error) {
	ids, err := c.accountIDs(ctx)
	if err != nil {
		return nil, err
	}

	var closed []string
	for _, id := range ids {
		key, ok := c.idleSessionKey(ctx, id, threshold)
		if !ok {
			continue
		}
		done, err := c.closeIfIdle(ctx, key, id, threshold)
		if err != nil {
			c.logger.Error("error closing idle session %s for account %s: %v", key, id, err)
			continue
		}
		if done {
			c.logger.Info("idle session closed account_id=%s session_key=%s", id, key)
			closed = append(closed, key)
		}
	}
	return closed, nil
}

// accountIDs merges store keys with cached accounts, whose pending state may
// not have been checkpointed yet.
func (c *Controller) accountIDs(ctx context.Context) ([]string, error) {
	ids, err := c.store.Keys(ctx, core.CollectionAccounts)
	if err != nil {
		return nil, fmt.Errorf("scan accounts: %w", err)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	c.cacheMu.RLock()
	for id := range c.accounts {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	c.cacheMu.RUnlock()
	return ids, nil
}

func (c *Controller) idleSessionKey(ctx context.Context, accountID string, threshold time.Duration) (string, bool) {
	c.accountLocks.Lock(accountID)
	defer c.accountLocks.Unlock(accountID)

	a, err := c.accountLocked(ctx, accountID)
	if err != nil || a.ActiveSession == "" {
		return "", false
	}
	if time.Since(a.LastActivity) <= threshold {
		return "", false
	}
	return a.ActiveSession, true
}

// closeIfIdle re-validates idleness under the session lock. An in-flight turn
// holds the session lock and bumps activity at turn start, so by the time the
// sweeper gets the lock the account no longer looks idle and the close aborts.
func (c *Controller) closeIfIdle(ctx context.Context, sessionKey, accountID string, threshold time.Duration) (bool, error) {
	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return false, err
	}
	if conv.Status == core.StatusClosed {
		return false, nil
	}

	c.accountLocks.Lock(accountID)
	a, err := c.accountLocked(ctx, accountID)
	stillIdle := err == nil && a.ActiveSession == sessionKey && time.Since(a.LastActivity) > threshold
	c.accountLocks.Unlock(accountID)
	if !stillIdle {
		return false, nil
	}

	if err := c.closeLocked(ctx, conv); err != nil {
		return false, err
	}
	return true, nil
}

// touchOwner records account activity at turn start so an in-flight exchange
// counts as evidence of non-idleness.
func (c *Controller) touchOwner(ctx context.Context, accountID string) {
	if accountID == "" {
		return
	}
	c.accountLocks.Lock(accountID)
	defer c.accountLocks.Unlock(accountID)
	if a, err := c.accountLocked(ctx, accountID); err == nil {
		a.Touch()
	}
}

// persistOwner checkpoints the owning account alongside a conversation
// checkpoint, best-effort.
func (c *Controller) persistOwner(ctx context.Context, accountID string) {
	if accountID == "" {
		return
	}
	c.accountLocks.Lock(accountID)
	defer c.accountLocks.Unlock(accountID)
	a, err := c.accountLocked(ctx, accountID)
	if err != nil {
		return
	}
	if err := c.persistAccount(ctx, a); err != nil {
		c.logger.Warn("error checkpointing account %s: %v", accountID, err)
	}
}

// PostMessage is the request-path convenience operation: it resolves (or
// creates) a session for the account, hands the message plus profile context
// to the responder, and stores the updated history. It returns the session
// key (fresh when sessionKey was empty) and the reply text. Activity is
// recorded at turn start, before the potentially slow responder call.
func (c *Controller) PostMessage(ctx context.Context, accountID, sessionKey, message string) (string, string, error) {
	if c.resp == nil {
		return "", "", fmt.Errorf("no responder configured")
	}

	if sessionKey == "" {
		key, err := c.Create(ctx, accountID)
		if err != nil {
			return "", "", err
		}
		sessionKey = key
	} else {
		owned, err := c.Owns(ctx, accountID, sessionKey)
		if err != nil {
			return "", "", err
		}
		if !owned {
			return "", "", fmt.Errorf("session %s: %w", sessionKey, core.ErrForbidden)
		}
	}

	c.sessionLocks.Lock(sessionKey)
	defer c.sessionLocks.Unlock(sessionKey)

	conv, err := c.resolveLocked(ctx, sessionKey)
	if err != nil {
		return "", "", err
	}
	switch conv.Status {
	case core.StatusClosed:
		return "", "", fmt.Errorf("post to closed session %s: %w", sessionKey, core.ErrInvalidTransition)
	case core.StatusPaused:
		c.resumeLocked(ctx, conv)
	}

	c.touchOwner(ctx, accountID)
	conv.LastAccessed = time.Now().UTC()
	c.touchConversation(ctx, conv)

	full, _ := c.registry.Get(sessionKey)
	history := full
	if len(history) > c.historyLimit {
		history = history[len(history)-c.historyLimit:]
	}

	contextBlock := ""
	c.accountLocks.Lock(accountID)
	if a, err := c.accountLocked(ctx, accountID); err == nil {
		contextBlock = renderContext(a)
	}
	c.accountLocks.Unlock(accountID)

	start := time.Now()
	reply, _, err := c.resp.GenerateReply(ctx, c.systemPrompt, message, history, contextBlock)
	if err != nil {
		c.logger.Error("responder call failed session_key=%s duration=%s: %v", sessionKey, time.Since(start), err)
		return "", "", fmt.Errorf("generate reply: %w", err)
	}
	c.logger.Info("responder call completed session_key=%s duration=%s", sessionKey, time.Since(start))

	// The exchange extends the full retained history; the cap above bounds
	// only what the responder sees.
	c.registry.Put(sessionKey, core.CoerceTurns(responder.AppendExchange(full, message, reply)))
	conv.LastAccessed = time.Now().UTC()
	c.touchConversation(ctx, conv)

	return sessionKey, reply, nil
}

// renderContext builds the per-user context block handed to the responder:
// profile lines plus accumulated insight.
func renderContext(a *core.Account) string {
	var b strings.Builder
	if a.Profile.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", a.Profile.Name)
	}
	if a.Profile.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", a.Profile.Gender)
	}
	if a.Profile.Age > 0 {
		fmt.Fprintf(&b, "Age: %d\n", a.Profile.Age)
	}
	if a.Profile.Region != "" {
		fmt.Fprintf(&b, "Region: %s\n", a.Profile.Region)
	}
	if a.Profile.City != "" {
		fmt.Fprintf(&b, "City: %s\n", a.Profile.City)
	}
	profile := b.String()

	var out strings.Builder
	if profile != "" {
		out.WriteString("## User profile\n")
		out.WriteString(profile)
	}
	if a.Insight != "" {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("## Insights from past conversations\n")
		out.WriteString(a.Insight)
	}
	return out.String()
}
