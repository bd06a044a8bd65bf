package core

import "testing"

func TestCoerceRole(t *testing.T) {
	cases := map[string]Role{
		"user":      RoleUser,
		"system":    RoleSystem,
		"assistant": RoleAssistant,
		"model":     RoleAssistant,
		"gibberish": RoleAssistant,
		"":          RoleAssistant,
	}
	for raw, want := range cases {
		if got := CoerceRole(raw); got != want {
			t.Errorf("CoerceRole(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestCoerceTurns_PreservesOrderAndContent(t *testing.T) {
	in := []Turn{
		{Role: "user", Content: "hi"},
		{Role: "model", Content: "hello"},
		{Role: "???", Content: "noise"},
	}
	out := CoerceTurns(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(out))
	}
	if out[1].Role != RoleAssistant || out[1].Content != "hello" {
		t.Errorf("legacy model turn not coerced: %+v", out[1])
	}
	if out[2].Role != RoleAssistant {
		t.Errorf("unknown role should collapse to assistant, got %q", out[2].Role)
	}
	if in[1].Role != "model" {
		t.Error("CoerceTurns should not mutate its input")
	}
}

func TestNewConversation(t *testing.T) {
	conv := NewConversation("sess-1", "acct-1")
	if conv.Status != StatusActive {
		t.Errorf("new conversation should be active, got %q", conv.Status)
	}
	if conv.AccountID != "acct-1" || conv.SessionKey != "sess-1" {
		t.Errorf("ownership fields not set: %+v", conv)
	}
	if conv.Messages == nil || len(conv.Messages) != 0 {
		t.Errorf("expected empty non-nil message slice, got %v", conv.Messages)
	}
	if conv.LastAccessed.IsZero() {
		t.Error("LastAccessed should be initialized")
	}
}

func TestNewSessionKey_Unique(t *testing.T) {
	a, b := NewSessionKey(), NewSessionKey()
	if a == "" || a == b {
		t.Errorf("session keys should be unique and non-empty: %q vs %q", a, b)
	}
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation("sess-1", "acct-1")
	conv.Messages = append(conv.Messages, Turn{Role: RoleUser, Content: "hi"})

	clone := conv.Clone()
	if clone == conv {
		t.Fatal("Clone should be a different pointer")
	}

	clone.Messages[0].Content = "changed"
	clone.Messages = append(clone.Messages, Turn{Role: RoleAssistant, Content: "extra"})
	if conv.Messages[0].Content != "hi" || len(conv.Messages) != 1 {
		t.Errorf("original mutated through clone: %+v", conv.Messages)
	}
}
