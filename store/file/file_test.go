package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parleyhq/parley/core"
)

func TestStore_UpsertGetAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	doc := core.Document{"session_key": "sess-1", "status": "paused", "messages": []any{
		map[string]any{"role": "user", "content": "hi"},
	}}
	if err := s.Upsert(ctx, core.CollectionConversations, "sess-1", doc); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// a fresh store over the same dir must see the record
	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := reopened.Get(ctx, core.CollectionConversations, "sess-1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got["status"] != "paused" {
		t.Errorf("unexpected document after reopen: %v", got)
	}
	msgs, ok := got["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Errorf("turns not persisted: %v", got["messages"])
	}
}

func TestStore_GetMissing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = s.Get(context.Background(), core.CollectionAccounts, "nope")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateFieldsPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, _ := New(dir)
	seed := core.Document{"session_key": "sess-1", "status": "active"}
	if err := s.Upsert(ctx, core.CollectionConversations, "sess-1", seed); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	updated, err := s.UpdateFields(ctx, core.CollectionConversations, "sess-1", core.Document{"status": "closed", "summary": "done"})
	if err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}
	if updated["status"] != "closed" || updated["summary"] != "done" {
		t.Errorf("merge incomplete: %v", updated)
	}

	reopened, _ := New(dir)
	got, err := reopened.Get(ctx, core.CollectionConversations, "sess-1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got["status"] != "closed" {
		t.Errorf("field update not durable: %v", got)
	}
}

func TestStore_KeysAndExists(t *testing.T) {
	s, _ := New(t.TempDir())
	ctx := context.Background()

	keys, err := s.Keys(ctx, core.CollectionAccounts)
	if err != nil || len(keys) != 0 {
		t.Fatalf("empty collection Keys = %v, %v", keys, err)
	}

	_ = s.Upsert(ctx, core.CollectionAccounts, "acct-1", core.Document{"id": "acct-1"})
	_ = s.Upsert(ctx, core.CollectionAccounts, "acct-2", core.Document{"id": "acct-2"})

	keys, _ = s.Keys(ctx, core.CollectionAccounts)
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %v", keys)
	}
	ok, _ := s.Exists(ctx, core.CollectionAccounts, "acct-2")
	if !ok {
		t.Error("Exists should report stored keys")
	}
}

func TestStore_CorruptFileReportsUnavailable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "accounts.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s, _ := New(dir)
	_, err := s.Get(context.Background(), core.CollectionAccounts, "acct-1")
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
