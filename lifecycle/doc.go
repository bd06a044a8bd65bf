// Package lifecycle implements the session lifecycle controller, the single
// mediator between the in-memory hot Registry and the durable DocumentStore.
//
// The controller enforces the session state machine (Active, Paused, Closed),
// the one-active-session-per-account invariant, and the write-deferral policy:
// every mutation lands in memory immediately while durable persistence happens
// at natural checkpoints (pause, close) to avoid write amplification on every
// turn. Mutations are serialized per key, so operations on different sessions
// and accounts proceed independently.
//
// A "session ends" through exactly one code path (Close), whether driven by
// the user, the idle sweeper, or shutdown. Close schedules enrichment through
// an injected Enricher and never waits for it.
package lifecycle
