package llm

import (
	"sync"

	"github.com/microsoft/autogen-sub008/types"
)

// UsageTracker keeps the two running totals of a model client: actual
// (real network calls only) and total (including cache hits). Both are
// monotonically non-decreasing.
//
// A tracker is exclusively owned by the client that embeds it; the mutex
// only guards against concurrent reads while a turn is in flight.
type UsageTracker struct {
	mu     sync.Mutex
	actual types.RequestUsage
	total  types.RequestUsage
}

// RecordActual accumulates usage from a real network call into both
// counters.
func (t *UsageTracker) RecordActual(u types.RequestUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actual.Add(u)
	t.total.Add(u)
}

// RecordCached accumulates usage from a cache hit into the total counter
// only: no network cost, but the tokens were still logically consumed.
func (t *UsageTracker) RecordCached(u types.RequestUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Add(u)
}

// Actual returns the network-call-only running total.
func (t *UsageTracker) Actual() types.RequestUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actual
}

// Total returns the running total including cache hits.
func (t *UsageTracker) Total() types.RequestUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
