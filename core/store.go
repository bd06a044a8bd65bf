package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names understood by every DocumentStore backend. No other
// cross-collection index is required.
const (
	CollectionAccounts      = "accounts"
	CollectionConversations = "conversations"
)

// Document is one stored record in schemaless form. Values are restricted to
// what encoding/json produces (strings, float64, bool, nil, []any,
// map[string]any) so backends can persist them without type registries.
type Document map[string]any

// DocumentStore is the durable persistence contract. Only the store is
// authoritative for record existence; in-memory caches layered above it are
// performance optimizations. Every operation must be atomic per key: a reader
// never observes a partially applied write for a single record.
//
// Implementations must be safe for concurrent use. For a single-process
// deployment the caller's per-key serialization is sufficient coordination;
// multi-writer backends (e.g. Redis shared between processes) additionally
// need their own per-key write atomicity.
type DocumentStore interface {
	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)

	// Upsert stores the full record under key, replacing any prior value.
	Upsert(ctx context.Context, collection, key string, doc Document) error

	// UpdateFields merges the given top-level fields into an existing record
	// and returns the updated document, or ErrNotFound when the key is
	// absent. Cheaper than Upsert for backends that support partial writes.
	UpdateFields(ctx context.Context, collection, key string, fields Document) (Document, error)

	// Exists reports whether a record is stored under key.
	Exists(ctx context.Context, collection, key string) (bool, error)

	// Keys lists every key in the collection. Used by warm-restart recovery
	// and the idle sweep scan.
	Keys(ctx context.Context, collection string) ([]string, error)
}

// ToDocument converts a typed record into its schemaless store form.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// FromDocument decodes a schemaless record into the typed value pointed to by v.
func FromDocument(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
