package registry

import (
	"sync"

	"github.com/parleyhq/parley/core"
)

// InMemory is a process-local core.Registry storing hot histories in a map.
// It is safe for concurrent access. Turn slices are copied on the way in and
// out to prevent external mutation of cached state; per-session write
// ordering is the caller's responsibility (the lifecycle controller
// serializes mutations per key).
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string][]core.Turn
}

// NewInMemory constructs an empty in-memory registry.
func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string][]core.Turn)}
}

// Get returns a copy of the hot history for sessionKey, if resident.
func (r *InMemory) Get(sessionKey string) ([]core.Turn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	turns, ok := r.sessions[sessionKey]
	if !ok {
		return nil, false
	}
	out := make([]core.Turn, len(turns))
	copy(out, turns)
	return out, true
}

// Put replaces the hot history for sessionKey with a copy of turns.
func (r *InMemory) Put(sessionKey string, turns []core.Turn) {
	cp := make([]core.Turn, len(turns))
	copy(cp, turns)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionKey] = cp
}

// Append adds turns to an existing entry, reporting false on a miss.
func (r *InMemory) Append(sessionKey string, turns ...core.Turn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.sessions[sessionKey]
	if !ok {
		return false
	}
	r.sessions[sessionKey] = append(existing, turns...)
	return true
}

// Remove drops the entry for sessionKey.
func (r *InMemory) Remove(sessionKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey)
}

// Len reports the number of resident sessions.
func (r *InMemory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Keys lists every resident session key in unspecified order.
func (r *InMemory) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	return keys
}
