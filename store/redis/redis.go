// Package redis provides a core.DocumentStore backed by Redis, storing each
// record as a JSON string under "<prefix><collection>:<key>". Suited to
// multi-process deployments where the flat-file backend cannot be shared.
//
// UpdateFields is implemented as read-merge-write; when several processes
// mutate the same key concurrently the caller's per-key serialization must
// span all writers (e.g. by partitioning accounts across processes).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/core"
)

// Store is a Redis-backed DocumentStore.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ core.DocumentStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Default "parley:".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL sets a TTL applied to every record. Zero (default) means records
// never expire; conversations are history, not cache.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New wraps an existing go-redis client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: "parley:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL connects using a redis URL (redis://host:port/db) and verifies
// connectivity with a short ping.
func NewFromURL(url string, opts ...Option) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w: %w", err, core.ErrStoreUnavailable)
	}
	return New(client, opts...), nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(collection, key string) string {
	return s.prefix + collection + ":" + key
}

// Get returns the record stored under key, or core.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, key string) (core.Document, error) {
	raw, err := s.client.Get(ctx, s.key(collection, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w: %w", err, core.ErrStoreUnavailable)
	}
	var doc core.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

// Upsert stores the full record under key.
func (s *Store) Upsert(ctx context.Context, collection, key string, doc core.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	if err := s.client.Set(ctx, s.key(collection, key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w: %w", err, core.ErrStoreUnavailable)
	}
	return nil
}

// UpdateFields merges top-level fields into an existing record.
func (s *Store) UpdateFields(ctx context.Context, collection, key string, fields core.Document) (core.Document, error) {
	doc, err := s.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	if err := s.Upsert(ctx, collection, key, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Exists reports whether a record is stored under key.
func (s *Store) Exists(ctx context.Context, collection, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(collection, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w: %w", err, core.ErrStoreUnavailable)
	}
	return n > 0, nil
}

// Keys lists every key in the collection.
func (s *Store) Keys(ctx context.Context, collection string) ([]string, error) {
	pattern := s.prefix + collection + ":*"
	strip := s.prefix + collection + ":"

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), strip))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w: %w", err, core.ErrStoreUnavailable)
	}
	return keys, nil
}
