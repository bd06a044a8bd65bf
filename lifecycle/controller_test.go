package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/internal/testutil"
	"github.com/parleyhq/parley/registry"
	"github.com/parleyhq/parley/responder"
	"github.com/parleyhq/parley/store/memory"
)

// fakeEnricher records enqueued session keys; Full simulates backpressure.
type fakeEnricher struct {
	mu   sync.Mutex
	keys []string
	full bool
}

func (f *fakeEnricher) Enqueue(sessionKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.keys = append(f.keys, sessionKey)
	return true
}

func (f *fakeEnricher) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type fixture struct {
	ctrl     *Controller
	store    *memory.Store
	registry *registry.InMemory
	resp     *responder.Mock
	enricher *fakeEnricher
}

func newFixture() *fixture {
	f := &fixture{
		store:    memory.New(),
		registry: registry.NewInMemory(),
		resp:     responder.NewMock(),
		enricher: &fakeEnricher{},
	}
	f.ctrl = New(f.store, f.registry, func(o *Options) {
		o.Responder = f.resp
		o.Enricher = f.enricher
	})
	return f
}

// backdate rewinds the cached account's activity clock.
func (f *fixture) backdate(accountID string, by time.Duration) {
	f.ctrl.cacheMu.Lock()
	defer f.ctrl.cacheMu.Unlock()
	f.ctrl.accounts[accountID].LastActivity = time.Now().UTC().Add(-by)
}

func seedAccount(t *testing.T, f *fixture, id string) *core.Account {
	t.Helper()
	a, err := f.ctrl.CreateAccount(context.Background(), id, core.Profile{Name: "Ada"})
	require.NoError(t, err)
	return a
}

func TestCreateAccount_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.ctrl.CreateAccount(ctx, "acct-1", core.Profile{Name: "Ada", City: "Munich"})
	require.NoError(t, err)
	assert.Equal(t, core.AccountAuthenticated, first.Status)
	assert.Equal(t, "Munich", first.Profile.City)

	// second create with a different profile reactivates, it does not reset
	again, err := f.ctrl.CreateAccount(ctx, "acct-1", core.Profile{Name: "Other"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Profile.Name)
	assert.Equal(t, core.AccountAuthenticated, again.Status)

	// the record is durable immediately
	ok, err := f.store.Exists(ctx, core.CollectionAccounts, "acct-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate_NewSessionIsActiveAndHot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")

	key, err := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	_, hot := f.registry.Get(key)
	assert.True(t, hot, "new session should be registry-resident")

	// creation defers the conversation write to the pause/close checkpoint
	ok, err := f.store.Exists(ctx, core.CollectionConversations, key)
	require.NoError(t, err)
	assert.False(t, ok)

	a, err := f.ctrl.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, key, a.ActiveSession)
	assert.Equal(t, core.AccountChatting, a.Status)
}

func TestCreate_DemotesPriorActiveSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")

	first, err := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, err)
	second, err := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, err)

	a, err := f.ctrl.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, second, a.ActiveSession)
	assert.Contains(t, a.History, first)

	// the demoted session is not closed, merely no longer the active pointer
	conv, err := f.ctrl.Conversation(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, conv.Status)
	assert.Empty(t, f.enricher.enqueued())
}

func TestAppendTurn_And_History(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")

	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "hi"}))
	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: "model", Content: "hello"}))

	turns, err := f.ctrl.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, core.RoleAssistant, turns[1].Role, "legacy role tag should be coerced")
}

func TestAppendTurn_UnknownSession(t *testing.T) {
	f := newFixture()
	err := f.ctrl.AppendTurn(context.Background(), "nope", core.Turn{Role: core.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestPauseResume_RoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "hi"}))

	require.NoError(t, f.ctrl.Pause(ctx, key))

	_, hot := f.registry.Get(key)
	assert.False(t, hot, "paused session should leave the registry")

	doc, err := f.store.Get(ctx, core.CollectionConversations, key)
	require.NoError(t, err)
	assert.Equal(t, string(core.StatusPaused), doc["status"])

	// pausing twice is an invalid transition
	assert.ErrorIs(t, f.ctrl.Pause(ctx, key), core.ErrInvalidTransition)

	require.NoError(t, f.ctrl.Resume(ctx, key))
	turns, err := f.ctrl.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hi", turns[0].Content)

	// resuming an already-active session is an invalid transition
	assert.ErrorIs(t, f.ctrl.Resume(ctx, key), core.ErrInvalidTransition)
}

func TestHistory_ResumesPausedSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "hi"}))
	require.NoError(t, f.ctrl.Pause(ctx, key))

	turns, err := f.ctrl.History(ctx, key)
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	conv, err := f.ctrl.Conversation(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, conv.Status, "history access should resume the session")
	_, hot := f.registry.Get(key)
	assert.True(t, hot)
}

func TestClose_FullTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "hi"}))

	require.NoError(t, f.ctrl.Close(ctx, key))

	_, hot := f.registry.Get(key)
	assert.False(t, hot)

	conv, err := f.ctrl.Conversation(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, conv.Status)
	require.Len(t, conv.Messages, 1)

	a, err := f.ctrl.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, a.ActiveSession)
	assert.Equal(t, core.AccountLoggedOut, a.Status)
	assert.Contains(t, a.History, key)

	assert.Equal(t, []string{key}, f.enricher.enqueued())
}

func TestClose_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")

	require.NoError(t, f.ctrl.Close(ctx, key))
	require.NoError(t, f.ctrl.Close(ctx, key), "closing a closed session is a no-op")

	assert.Len(t, f.enricher.enqueued(), 1, "enrichment fires once per close")
}

func TestClose_FromPaused(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "hi"}))
	require.NoError(t, f.ctrl.Pause(ctx, key))

	require.NoError(t, f.ctrl.Close(ctx, key))

	conv, err := f.ctrl.Conversation(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, conv.Status)
	assert.Len(t, conv.Messages, 1, "paused history survives the close")
}

func TestClosedSession_RejectsAppends(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")
	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "hi"}))
	require.NoError(t, f.ctrl.Close(ctx, key))

	err := f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "more"})
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	// the closed record still serves reads
	turns, err := f.ctrl.History(ctx, key)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestAttachSummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")

	// attaching to a non-closed session is invalid
	assert.ErrorIs(t, f.ctrl.AttachSummary(ctx, key, "sum"), core.ErrInvalidTransition)

	require.NoError(t, f.ctrl.Close(ctx, key))
	require.NoError(t, f.ctrl.AttachSummary(ctx, key, "we talked"))

	conv, err := f.ctrl.Conversation(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "we talked", conv.Summary)

	doc, err := f.store.Get(ctx, core.CollectionConversations, key)
	require.NoError(t, err)
	assert.Equal(t, "we talked", doc["summary"])
}

func TestPauseAll(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	seedAccount(t, f, "acct-2")
	k1, _ := f.ctrl.Create(ctx, "acct-1")
	k2, _ := f.ctrl.Create(ctx, "acct-2")

	require.NoError(t, f.ctrl.PauseAll(ctx))

	assert.Empty(t, f.registry.Keys())
	for _, key := range []string{k1, k2} {
		doc, err := f.store.Get(ctx, core.CollectionConversations, key)
		require.NoError(t, err)
		assert.Equal(t, string(core.StatusPaused), doc["status"])
	}
}

func TestRecover_WarmRestart(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// first process: account with a session paused at shutdown
	first := newFixture()
	first.store = store
	first.ctrl = New(store, first.registry, func(o *Options) { o.Enricher = first.enricher })
	_, err := first.ctrl.CreateAccount(ctx, "acct-1", core.Profile{Name: "Ada"})
	require.NoError(t, err)
	key, err := first.ctrl.Create(ctx, "acct-1")
	require.NoError(t, err)
	require.NoError(t, first.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "hi"}))
	require.NoError(t, first.ctrl.PauseAll(ctx))

	// second process over the same store
	reg := registry.NewInMemory()
	ctrl := New(store, reg)
	require.NoError(t, ctrl.Recover(ctx))

	turns, ok := reg.Get(key)
	require.True(t, ok, "recovered session should be registry-resident")
	assert.Len(t, turns, 1)

	conv, err := ctrl.Conversation(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, conv.Status)
}

func TestRecover_CrashLeftoverActive(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// simulate a crash: an Active conversation checkpointed mid-flight
	conv := testutil.NewConversationBuilder("sess-crash", "acct-1").
		Turn(core.RoleUser, "hi").
		Build()
	doc, err := core.ToDocument(conv)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, core.CollectionConversations, "sess-crash", doc))

	acct := testutil.NewAccountBuilder("acct-1").ActiveSession("sess-crash").Build()
	adoc, err := core.ToDocument(acct)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, core.CollectionAccounts, "acct-1", adoc))

	reg := registry.NewInMemory()
	ctrl := New(store, reg)
	require.NoError(t, ctrl.Recover(ctx))

	turns, ok := reg.Get("sess-crash")
	require.True(t, ok)
	assert.Len(t, turns, 1)

	got, err := ctrl.Conversation(ctx, "sess-crash")
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, got.Status)
}

func TestRecover_SkipsClosed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	conv := testutil.NewConversationBuilder("sess-done", "acct-1").
		Status(core.StatusClosed).
		Build()
	doc, err := core.ToDocument(conv)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, core.CollectionConversations, "sess-done", doc))

	reg := registry.NewInMemory()
	ctrl := New(store, reg)
	require.NoError(t, ctrl.Recover(ctx))

	_, ok := reg.Get("sess-done")
	assert.False(t, ok, "closed sessions stay cold")
}

func TestCloseIdle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-idle")
	seedAccount(t, f, "acct-busy")
	idleKey, _ := f.ctrl.Create(ctx, "acct-idle")
	busyKey, _ := f.ctrl.Create(ctx, "acct-busy")

	f.backdate("acct-idle", time.Hour)

	closed, err := f.ctrl.CloseIdle(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{idleKey}, closed)

	conv, err := f.ctrl.Conversation(ctx, idleKey)
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, conv.Status)
	assert.Equal(t, []string{idleKey}, f.enricher.enqueued())

	busy, err := f.ctrl.Conversation(ctx, busyKey)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, busy.Status)
}

func TestCloseIdle_ActivityWinsTheRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	key, _ := f.ctrl.Create(ctx, "acct-1")

	f.backdate("acct-1", time.Hour)
	// a turn lands after the scan would have flagged the account
	require.NoError(t, f.ctrl.AppendTurn(ctx, key, core.Turn{Role: core.RoleUser, Content: "still here"}))

	closed, err := f.ctrl.CloseIdle(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, closed, "fresh activity should abort the reap")
}

func TestOwns(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")
	seedAccount(t, f, "acct-2")
	key, _ := f.ctrl.Create(ctx, "acct-1")

	owned, err := f.ctrl.Owns(ctx, "acct-1", key)
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = f.ctrl.Owns(ctx, "acct-2", key)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestProfileInsightRecommendations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedAccount(t, f, "acct-1")

	require.NoError(t, f.ctrl.UpdateProfile(ctx, "acct-1", core.Profile{Name: "Ada", Age: 31}))
	require.NoError(t, f.ctrl.UpdateInsight(ctx, "acct-1", "prefers short replies"))
	require.NoError(t, f.ctrl.AddRecommendation(ctx, "acct-1", "tea", "mentioned feeling cold"))

	a, err := f.ctrl.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 31, a.Profile.Age)
	assert.Equal(t, "prefers short replies", a.Insight)
	require.Len(t, a.Recommendations, 1)
	assert.Equal(t, "tea", a.Recommendations[0].Title)

	// durable immediately, not deferred to a session checkpoint
	doc, err := f.store.Get(ctx, core.CollectionAccounts, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "prefers short replies", doc["insight"])
}
