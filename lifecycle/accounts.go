package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/parleyhq/parley/core"
)

// CreateAccount registers a verified identity, or reactivates it if the
// record already exists. Idempotent per identity; accounts are never deleted.
func (c *Controller) CreateAccount(ctx context.Context, id string, profile core.Profile) (*core.Account, error) {
	c.accountLocks.Lock(id)
	defer c.accountLocks.Unlock(id)

	a, err := c.accountLocked(ctx, id)
	switch {
	case err == nil:
		a.Status = core.AccountAuthenticated
		a.Touch()
	case errors.Is(err, core.ErrAccountNotFound):
		a = core.NewAccount(id, profile)
		a.Status = core.AccountAuthenticated
		c.cacheAccount(a)
	default:
		return nil, err
	}
	if err := c.persistAccount(ctx, a); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// GetAccount returns the account record and records activity (a fetch is a
// login in practice; the original flow fetched the profile on every visit).
func (c *Controller) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	c.accountLocks.Lock(id)
	defer c.accountLocks.Unlock(id)

	a, err := c.accountLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Touch()
	c.touchAccount(ctx, a)
	return a.Clone(), nil
}

// UpdateProfile replaces the account's profile fields.
func (c *Controller) UpdateProfile(ctx context.Context, id string, profile core.Profile) error {
	c.accountLocks.Lock(id)
	defer c.accountLocks.Unlock(id)

	a, err := c.accountLocked(ctx, id)
	if err != nil {
		return err
	}
	a.Profile = profile
	a.Touch()
	return c.persistAccount(ctx, a)
}

// UpdateInsight replaces the account's accumulated insight text.
func (c *Controller) UpdateInsight(ctx context.Context, id, insight string) error {
	c.accountLocks.Lock(id)
	defer c.accountLocks.Unlock(id)

	a, err := c.accountLocked(ctx, id)
	if err != nil {
		return err
	}
	a.Insight = insight
	return c.persistAccount(ctx, a)
}

// AddRecommendation appends one suggestion to the account's log.
func (c *Controller) AddRecommendation(ctx context.Context, id, title, reason string) error {
	c.accountLocks.Lock(id)
	defer c.accountLocks.Unlock(id)

	a, err := c.accountLocked(ctx, id)
	if err != nil {
		return err
	}
	a.Recommendations = append(a.Recommendations, core.Recommendation{
		Title:      title,
		Reason:     reason,
		RecordedAt: time.Now().UTC(),
	})
	return c.persistAccount(ctx, a)
}

// Owns reports whether sessionKey belongs to accountID, active or historical.
// The thin request layer uses this for its Forbidden check; the controller
// itself stays identity-agnostic in the transition operations.
func (c *Controller) Owns(ctx context.Context, accountID, sessionKey string) (bool, error) {
	c.accountLocks.Lock(accountID)
	defer c.accountLocks.Unlock(accountID)

	a, err := c.accountLocked(ctx, accountID)
	if err != nil {
		return false, err
	}
	return a.Owns(sessionKey), nil
}

// touchAccount mirrors the in-memory activity bump into the store as a cheap
// field update, best-effort.
func (c *Controller) touchAccount(ctx context.Context, a *core.Account) {
	fields := core.Document{"last_activity": a.LastActivity}
	if _, err := c.store.UpdateFields(ctx, core.CollectionAccounts, a.ID, fields); err != nil && !errors.Is(err, core.ErrNotFound) {
		c.logger.Warn("error updating activity of account %s: %v", a.ID, err)
	}
}
