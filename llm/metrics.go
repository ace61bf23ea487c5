package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/microsoft/autogen-sub008/types"
)

// Metrics collects model client counters. A nil *Metrics is valid and
// records nothing, so instrumentation stays optional.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	costTotal     *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
}

// NewMetrics registers client metrics on the given registerer (nil uses
// the default registerer).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model requests by model and outcome.",
		}, []string{"model", "outcome"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		costTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Accumulated request cost in USD by model.",
		}, []string{"model"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cache_hits_total",
			Help:      "Request cache hits by model.",
		}, []string{"model"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cache_misses_total",
			Help:      "Request cache misses by model.",
		}, []string{"model"}),
	}
}

// Request records a completed or failed request.
func (m *Metrics) Request(model, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(model, outcome).Inc()
}

// Tokens records token consumption and cost for a request.
func (m *Metrics) Tokens(model string, usage types.RequestUsage) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	m.tokensTotal.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	m.costTotal.WithLabelValues(model).Add(usage.Cost)
}

// CacheHit records a request served from cache.
func (m *Metrics) CacheHit(model string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(model).Inc()
}

// CacheMiss records a cache lookup that fell through to the network.
func (m *Metrics) CacheMiss(model string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(model).Inc()
}
