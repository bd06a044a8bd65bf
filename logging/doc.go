// Package logging provides a minimal logging interface and adapters for parley.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the lifecycle controller, enrichment scheduler and sweeper
// use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - ParleyLogger with contextual helpers (component, account, session) and
//     domain specific helpers for responder calls, enrichment runs and sweeps
//
// The design intentionally keeps the interface minimal so any structured
// logger can be plugged in; all constructors default to NoOp when nil.
package logging
