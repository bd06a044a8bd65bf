// Package memory provides a volatile core.DocumentStore keeping collections
// in process-local maps. It is the default backend for tests and ephemeral
// demo deployments; swap in the file or redis backend for durability.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/core"
)

// Store is an in-memory DocumentStore. Safe for concurrent access. Documents
// are deep-copied on the way in and out so callers never share state with the
// store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]core.Document
}

var _ core.DocumentStore = (*Store)(nil)

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]core.Document)}
}

// Get returns the record stored under key, or core.ErrNotFound.
func (s *Store) Get(_ context.Context, collection, key string) (core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	return copyDocument(doc), nil
}

// Upsert stores the full record under key, replacing any prior value.
func (s *Store) Upsert(_ context.Context, collection, key string, doc core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[string]core.Document)
	}
	s.collections[collection][key] = copyDocument(doc)
	return nil
}

// UpdateFields merges top-level fields into an existing record.
func (s *Store) UpdateFields(_ context.Context, collection, key string, fields core.Document) (core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = copyValue(v)
	}
	return copyDocument(doc), nil
}

// Exists reports whether a record is stored under key.
func (s *Store) Exists(_ context.Context, collection, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection][key]
	return ok, nil
}

// Keys lists every key in the collection in unspecified order.
func (s *Store) Keys(_ context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.collections[collection]))
	for k := range s.collections[collection] {
		keys = append(keys, k)
	}
	return keys, nil
}

func copyDocument(doc core.Document) core.Document {
	out := make(core.Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies the JSON-shaped value space (maps, slices, scalars).
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case core.Document:
		return map[string]any(copyDocument(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
