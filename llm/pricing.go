package llm

import (
	"sync"

	"github.com/microsoft/autogen-sub008/types"
)

// ModelPrice holds per-1K-token USD rates for one model.
type ModelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PriceTable maps model names to token rates. Unknown models price at
// zero rather than failing, so accounting never blocks a request.
type PriceTable struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

// NewPriceTable creates a table preloaded with the default prices.
func NewPriceTable() *PriceTable {
	t := &PriceTable{prices: make(map[string]ModelPrice)}
	for model, p := range defaultPrices {
		t.prices[model] = p
	}
	return t
}

var defaultPrices = map[string]ModelPrice{
	"gpt-4o":                     {InputPer1K: 0.005, OutputPer1K: 0.015},
	"gpt-4o-mini":                {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4-turbo":                {InputPer1K: 0.01, OutputPer1K: 0.03},
	"gpt-4":                      {InputPer1K: 0.03, OutputPer1K: 0.06},
	"gpt-3.5-turbo":              {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-opus-20240229":     {InputPer1K: 0.015, OutputPer1K: 0.075},
	"claude-3-haiku-20240307":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
	"gemini-1.5-pro":             {InputPer1K: 0.00125, OutputPer1K: 0.005},
	"gemini-1.5-flash":           {InputPer1K: 0.000075, OutputPer1K: 0.0003},
}

// SetPrice sets or overrides the rate for a model.
func (t *PriceTable) SetPrice(model string, price ModelPrice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[model] = price
}

// Price returns the rate for a model and whether it is known.
func (t *PriceTable) Price(model string) (ModelPrice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[model]
	return p, ok
}

// Cost computes the dollar cost of a usage record for a model. Unknown
// models cost zero.
func (t *PriceTable) Cost(model string, usage types.RequestUsage) float64 {
	p, ok := t.Price(model)
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1000*p.InputPer1K +
		float64(usage.CompletionTokens)/1000*p.OutputPer1K
}
