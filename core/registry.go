package core

// Registry is the in-memory hot-history cache holding the ordered turn list
// of every session currently being actively chatted. Presence or absence of a
// key says nothing about whether the session exists; only the DocumentStore
// is authoritative for existence.
//
// Implementations must be safe for concurrent use and must hand out
// defensive copies so callers cannot mutate cached state.
type Registry interface {
	// Get returns a copy of the hot history for sessionKey, if resident.
	Get(sessionKey string) ([]Turn, bool)

	// Put replaces the hot history for sessionKey.
	Put(sessionKey string, turns []Turn)

	// Append adds turns to the end of an existing entry. It reports false
	// when the session is not resident.
	Append(sessionKey string, turns ...Turn) bool

	// Remove drops the entry for sessionKey, if any.
	Remove(sessionKey string)

	// Keys lists every resident session key.
	Keys() []string

	// Len reports the number of resident sessions.
	Len() int
}
