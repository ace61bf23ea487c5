package types

// RequestUsage records the token consumption and dollar cost of one model
// request, or a running sum of many.
type RequestUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}

// Add accumulates another usage record into this one. Token counts are
// never negative, so running totals are monotonically non-decreasing.
func (u *RequestUsage) Add(other RequestUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.Cost += other.Cost
}

// TotalTokens returns prompt plus completion tokens.
func (u RequestUsage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}
