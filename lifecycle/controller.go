package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/responder"
)

// DefaultHistoryLimit caps the number of prior turns handed to the responder.
const DefaultHistoryLimit = 100

// Enricher schedules post-close enrichment for a session. Enqueue must not
// block the caller; it reports whether the task was accepted.
type Enricher interface {
	Enqueue(sessionKey string) bool
}

// Options configures a Controller.
type Options struct {
	// Responder produces replies for PostMessage. Optional; controllers
	// used purely for lifecycle bookkeeping may omit it.
	Responder responder.Responder

	// Enricher receives session keys after Close. Optional; without it
	// closes simply skip enrichment.
	Enricher Enricher

	// SystemPrompt is the base instruction handed to the responder.
	SystemPrompt string

	// HistoryLimit caps turns sent to the responder. Defaults to
	// DefaultHistoryLimit.
	HistoryLimit int

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Controller owns every in-progress and recently-ended conversation. All
// reads and writes crossing the Registry/Store boundary go through it.
type Controller struct {
	store    core.DocumentStore
	registry core.Registry
	resp     responder.Responder
	enricher Enricher
	logger   logging.Logger

	systemPrompt string
	historyLimit int

	sessionLocks *keyedMutex
	accountLocks *keyedMutex

	// cacheMu guards the cache maps themselves; the cached records are
	// mutated only under the matching keyed lock.
	cacheMu  sync.RWMutex
	accounts map[string]*core.Account
	convs    map[string]*core.Conversation
}

// New constructs a Controller over the given store and registry. Call
// Recover afterwards to warm-restart sessions left in the store.
func New(store core.DocumentStore, reg core.Registry, optFns ...func(o *Options)) *Controller {
	opts := Options{HistoryLimit: DefaultHistoryLimit}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Controller{
		store:        store,
		registry:     reg,
		resp:         opts.Responder,
		enricher:     opts.Enricher,
		logger:       opts.Logger,
		systemPrompt: opts.SystemPrompt,
		historyLimit: opts.HistoryLimit,
		sessionLocks: newKeyedMutex(),
		accountLocks: newKeyedMutex(),
		accounts:     make(map[string]*core.Account),
		convs:        make(map[string]*core.Conversation),
	}
}

// Recover scans the store on process start. Paused conversations are resumed
// into the Registry; conversations found Active are crash leftovers (the
// orderly shutdown path pauses everything) and are recovered the same way.
// Owning accounts are hydrated with fresh activity so the sweeper does not
// reap a just-recovered session.
func (c *Controller) Recover(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, core.CollectionConversations)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	restored := 0
	for _, key := range keys {
		c.sessionLocks.Lock(key)
		conv, err := c.resolveLocked(ctx, key)
		if err != nil {
			c.sessionLocks.Unlock(key)
			c.logger.Warn("skipping unreadable conversation %s during recovery: %v", key, err)
			continue
		}
		switch conv.Status {
		case core.StatusClosed:
			c.sessionLocks.Unlock(key)
			continue
		case core.StatusActive:
			// No orderly shutdown left this Active in the store: crash
			// leftover. Demote to Paused so the normal resume transition
			// applies.
			c.logger.Warn("conversation %s found active at startup, recovering", key)
			conv.Status = core.StatusPaused
			c.resumeLocked(ctx, conv)
		case core.StatusPaused:
			c.resumeLocked(ctx, conv)
		}
		accountID := conv.AccountID
		c.sessionLocks.Unlock(key)
		restored++

		if accountID != "" {
			c.accountLocks.Lock(accountID)
			if a, err := c.accountLocked(ctx, accountID); err == nil {
				a.Touch()
			}
			c.accountLocks.Unlock(accountID)
		}
	}
	if restored > 0 {
		c.logger.Info("restored %d sessions from store", restored)
	}
	return nil
}

// accountLocked returns the live account record, hydrating the cache from
// the store on a miss. Caller must hold the account's keyed lock.
func (c *Controller) accountLocked(ctx context.Context, id string) (*core.Account, error) {
	c.cacheMu.RLock()
	a, ok := c.accounts[id]
	c.cacheMu.RUnlock()
	if ok {
		return a, nil
	}

	doc, err := c.store.Get(ctx, core.CollectionAccounts, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, core.ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	a = &core.Account{}
	if err := core.FromDocument(doc, a); err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	c.cacheMu.Lock()
	c.accounts[id] = a
	c.cacheMu.Unlock()
	return a, nil
}

// resolveLocked returns the live conversation record, hydrating the cache
// from the store on a miss. Caller must hold the session's keyed lock.
func (c *Controller) resolveLocked(ctx context.Context, sessionKey string) (*core.Conversation, error) {
	c.cacheMu.RLock()
	conv, ok := c.convs[sessionKey]
	c.cacheMu.RUnlock()
	if ok {
		return conv, nil
	}

	doc, err := c.store.Get(ctx, core.CollectionConversations, sessionKey)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", sessionKey, core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	conv = &core.Conversation{}
	if err := core.FromDocument(doc, conv); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", sessionKey, err)
	}
	conv.Messages = core.CoerceTurns(conv.Messages)
	c.cacheMu.Lock()
	c.convs[sessionKey] = conv
	c.cacheMu.Unlock()
	return conv, nil
}

func (c *Controller) cacheAccount(a *core.Account) {
	c.cacheMu.Lock()
	c.accounts[a.ID] = a
	c.cacheMu.Unlock()
}

func (c *Controller) cacheConversation(conv *core.Conversation) {
	c.cacheMu.Lock()
	c.convs[conv.SessionKey] = conv
	c.cacheMu.Unlock()
}

func (c *Controller) persistAccount(ctx context.Context, a *core.Account) error {
	doc, err := core.ToDocument(a)
	if err != nil {
		return err
	}
	if err := c.store.Upsert(ctx, core.CollectionAccounts, a.ID, doc); err != nil {
		return fmt.Errorf("persist account %s: %w", a.ID, err)
	}
	return nil
}

func (c *Controller) persistConversation(ctx context.Context, conv *core.Conversation) error {
	doc, err := core.ToDocument(conv)
	if err != nil {
		return err
	}
	if err := c.store.Upsert(ctx, core.CollectionConversations, conv.SessionKey, doc); err != nil {
		return fmt.Errorf("persist conversation %s: %w", conv.SessionKey, err)
	}
	return nil
}

// touchConversation records last access in the store as a cheap field update
// rather than a full history write, bounding data loss on crash. The write is
// best-effort: a conversation not yet checkpointed has no store record.
func (c *Controller) touchConversation(ctx context.Context, conv *core.Conversation) {
	fields := core.Document{"last_accessed": conv.LastAccessed}
	if _, err := c.store.UpdateFields(ctx, core.CollectionConversations, conv.SessionKey, fields); err != nil && !errors.Is(err, core.ErrNotFound) {
		c.logger.Warn("error updating last access of session %s: %v", conv.SessionKey, err)
	}
}
