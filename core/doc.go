// Package core centralizes the domain contracts of parley: the Account and
// Conversation records, the Turn unit, the DocumentStore persistence contract,
// the Registry hot-history contract and the shared error taxonomy. Higher
// level packages (lifecycle, enrich, sweep) depend only on these contracts so
// storage backends and responder providers stay interchangeable.
package core
