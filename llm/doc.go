// Package llm defines the model client abstraction: request dispatch,
// streaming, request-level caching, token and cost accounting, and
// failover across a chain of backends.
//
// A ModelClient owns two running usage totals: "actual" counts only real
// network calls, "total" additionally counts cache hits. A cache hit has
// no network cost but still represents logically consumed tokens, so the
// two counters deliberately diverge.
package llm
