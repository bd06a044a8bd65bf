// Package responder defines the contract for the external capability that
// produces chat replies and summaries, plus a scripted mock for tests and
// examples. Provider adapters live in sub-packages (anthropic, openai) so the
// lifecycle controller never depends on a concrete vendor SDK.
package responder
