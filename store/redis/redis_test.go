package redis

import (
	"testing"

	"github.com/parleyhq/parley/core"
)

// Interface compliance (compile-time assertion)
var _ core.DocumentStore = (*Store)(nil)

func TestStore_InterfaceOnly(t *testing.T) {
	// Behavioral coverage requires a live Redis; the shared DocumentStore
	// semantics are exercised against the memory and file backends.
}

func TestKeyPrefixing(t *testing.T) {
	s := &Store{prefix: "parley:"}
	if got := s.key(core.CollectionAccounts, "acct-1"); got != "parley:accounts:acct-1" {
		t.Errorf("unexpected key %q", got)
	}
}
