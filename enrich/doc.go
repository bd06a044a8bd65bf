// Package enrich runs post-close conversation enrichment off the request
// path: it renders the closed conversation into a flat transcript, asks the
// responder for a summary, attaches it to the conversation, and regenerates
// the account's accumulated insight from the old insight plus the new
// summary.
//
// Work is message-passed to a bounded worker pool so backpressure under a
// burst of closes is an explicit policy, not unbounded concurrency. The two
// enrichment steps are independent and best-effort: a summarization failure
// is logged and never surfaces to the request that triggered the close, and
// re-running enrichment against the same Closed conversation is harmless.
package enrich
