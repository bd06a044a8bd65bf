// Package registry houses the concrete implementation of core.Registry, the
// volatile hot-history cache for actively chatted sessions. The contract
// lives in core so higher level packages (lifecycle, sweep) never depend on a
// concrete cache; only the wiring layer decides which implementation to
// instantiate.
package registry
