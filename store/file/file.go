// Package file provides a flat-file core.DocumentStore: one JSON file per
// collection under a data directory. It targets single-process deployments;
// atomicity per key comes from holding collections in memory and rewriting a
// collection file atomically (temp file + rename) on every write.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parleyhq/parley/core"
)

// Store is a flat-file DocumentStore. Collections load lazily on first
// access and stay resident; every mutation persists the whole collection.
type Store struct {
	dir string

	mu          sync.Mutex
	collections map[string]map[string]core.Document
}

var _ core.DocumentStore = (*Store)(nil)

// New creates a file store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w: %w", err, core.ErrStoreUnavailable)
	}
	return &Store{dir: dir, collections: make(map[string]map[string]core.Document)}, nil
}

// Get returns the record stored under key, or core.ErrNotFound.
func (s *Store) Get(_ context.Context, collection, key string) (core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadLocked(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := coll[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	return cloneDoc(doc)
}

// Upsert stores the full record under key and persists the collection.
func (s *Store) Upsert(_ context.Context, collection, key string, doc core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadLocked(collection)
	if err != nil {
		return err
	}
	cp, err := cloneDoc(doc)
	if err != nil {
		return err
	}
	coll[key] = cp
	return s.persistLocked(collection)
}

// UpdateFields merges top-level fields into an existing record and persists.
func (s *Store) UpdateFields(_ context.Context, collection, key string, fields core.Document) (core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadLocked(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := coll[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = v
	}
	if err := s.persistLocked(collection); err != nil {
		return nil, err
	}
	return cloneDoc(doc)
}

// Exists reports whether a record is stored under key.
func (s *Store) Exists(_ context.Context, collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadLocked(collection)
	if err != nil {
		return false, err
	}
	_, ok := coll[key]
	return ok, nil
}

// Keys lists every key in the collection in unspecified order.
func (s *Store) Keys(_ context.Context, collection string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadLocked(collection)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *Store) loadLocked(collection string) (map[string]core.Document, error) {
	if coll, ok := s.collections[collection]; ok {
		return coll, nil
	}
	coll := make(map[string]core.Document)
	raw, err := os.ReadFile(s.path(collection))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first use of this collection
	case err != nil:
		return nil, fmt.Errorf("read %s: %w: %w", collection, err, core.ErrStoreUnavailable)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, &coll); err != nil {
			return nil, fmt.Errorf("parse %s: %w: %w", collection, err, core.ErrStoreUnavailable)
		}
	}
	s.collections[collection] = coll
	return coll, nil
}

func (s *Store) persistLocked(collection string) error {
	raw, err := json.MarshalIndent(s.collections[collection], "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	tmp := s.path(collection) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w: %w", collection, err, core.ErrStoreUnavailable)
	}
	if err := os.Rename(tmp, s.path(collection)); err != nil {
		return fmt.Errorf("replace %s: %w: %w", collection, err, core.ErrStoreUnavailable)
	}
	return nil
}

// cloneDoc round-trips through JSON, which both deep-copies and normalizes
// values into the store's JSON-shaped value space.
func cloneDoc(doc core.Document) (core.Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out core.Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
