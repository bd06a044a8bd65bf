package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/internal/testutil"
	"github.com/parleyhq/parley/responder"
	"github.com/parleyhq/parley/store/memory"
)

func seedClosedConversation(t *testing.T, store *memory.Store, sessionKey, accountID string) {
	t.Helper()
	conv := testutil.NewConversationBuilder(sessionKey, accountID).
		Status(core.StatusClosed).
		Turn(core.RoleUser, "I loved that novel you suggested").
		Turn(core.RoleAssistant, "Glad to hear it").
		Build()
	doc, err := core.ToDocument(conv)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), core.CollectionConversations, sessionKey, doc))
}

func seedAccount(t *testing.T, store *memory.Store, id, insight string) {
	t.Helper()
	a := testutil.NewAccountBuilder(id).Name("Ada").Insight(insight).Build()
	doc, err := core.ToDocument(a)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), core.CollectionAccounts, id, doc))
}

func TestEnrich_SummaryAndInsightLand(t *testing.T) {
	store := memory.New()
	resp := responder.NewMock()
	resp.SetSummary("summary of the chat")
	seedAccount(t, store, "acct-1", "old insight")
	seedClosedConversation(t, store, "sess-1", "acct-1")

	s := New(store, resp)
	require.NoError(t, s.Enrich(context.Background(), "sess-1"))

	doc, err := store.Get(context.Background(), core.CollectionConversations, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "summary of the chat", doc["summary"])

	adoc, err := store.Get(context.Background(), core.CollectionAccounts, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "summary of the chat", adoc["insight"], "mock returns the same text for both steps")

	assert.Equal(t, 2, resp.SummarizeCalls(), "one call for the summary, one for the insight")
}

func TestEnrich_SkipsNonClosed(t *testing.T) {
	store := memory.New()
	resp := responder.NewMock()

	conv := core.NewConversation("sess-1", "acct-1")
	doc, err := core.ToDocument(conv)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), core.CollectionConversations, "sess-1", doc))

	s := New(store, resp)
	require.NoError(t, s.Enrich(context.Background(), "sess-1"))
	assert.Zero(t, resp.SummarizeCalls(), "active sessions are never summarized")
}

func TestEnrich_MissingConversation(t *testing.T) {
	s := New(memory.New(), responder.NewMock())
	err := s.Enrich(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEnrich_SummarizeFailureIsIsolated(t *testing.T) {
	store := memory.New()
	resp := responder.NewMock()
	resp.FailSummarize(errors.New("provider down"))
	seedAccount(t, store, "acct-1", "old insight")
	seedClosedConversation(t, store, "sess-1", "acct-1")

	s := New(store, resp)
	err := s.Enrich(context.Background(), "sess-1")
	require.Error(t, err)

	// the conversation record is untouched and the old insight survives
	doc, _ := store.Get(context.Background(), core.CollectionConversations, "sess-1")
	_, hasSummary := doc["summary"]
	assert.False(t, hasSummary)
	adoc, _ := store.Get(context.Background(), core.CollectionAccounts, "acct-1")
	assert.Equal(t, "old insight", adoc["insight"])
}

func TestEnrich_NoAccountSkipsInsight(t *testing.T) {
	store := memory.New()
	resp := responder.NewMock()
	resp.SetSummary("sum")
	seedClosedConversation(t, store, "sess-1", "")

	s := New(store, resp)
	require.NoError(t, s.Enrich(context.Background(), "sess-1"))
	assert.Equal(t, 1, resp.SummarizeCalls(), "no insight step without an owning account")
}

func TestEnqueue_Backpressure(t *testing.T) {
	s := New(memory.New(), responder.NewMock(), func(o *Options) { o.QueueSize = 2 })

	assert.True(t, s.Enqueue("a"))
	assert.True(t, s.Enqueue("b"))
	assert.False(t, s.Enqueue("c"), "full queue must reject, not block")
}

func TestScheduler_WorkersDrainQueue(t *testing.T) {
	store := memory.New()
	resp := responder.NewMock()
	resp.SetSummary("s")
	seedClosedConversation(t, store, "sess-1", "")
	seedClosedConversation(t, store, "sess-2", "")

	s := New(store, resp)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop()

	require.True(t, s.Enqueue("sess-1"))
	require.True(t, s.Enqueue("sess-2"))

	deadline := time.After(2 * time.Second)
	for {
		d1, err1 := store.Get(ctx, core.CollectionConversations, "sess-1")
		d2, err2 := store.Get(ctx, core.CollectionConversations, "sess-2")
		if err1 == nil && err2 == nil && d1["summary"] == "s" && d2["summary"] == "s" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("workers did not drain the queue in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnrich_Rerunnable(t *testing.T) {
	store := memory.New()
	resp := responder.NewMock()
	resp.SetSummary("first")
	seedClosedConversation(t, store, "sess-1", "")

	s := New(store, resp)
	ctx := context.Background()
	require.NoError(t, s.Enrich(ctx, "sess-1"))

	resp.SetSummary("second")
	require.NoError(t, s.Enrich(ctx, "sess-1"))

	doc, _ := store.Get(ctx, core.CollectionConversations, "sess-1")
	assert.Equal(t, "second", doc["summary"], "a rerun overwrites the summary")
}

func TestRenderTranscript(t *testing.T) {
	got := RenderTranscript([]core.Turn{
		{Role: core.RoleUser, Content: "hi"},
		{Role: core.RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, "user: hi\n\nassistant: hello\n\n", got)
}
