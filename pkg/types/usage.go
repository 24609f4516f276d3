package types

import "time"

// TokenUsage records one call's token consumption and cost. Cumulative usage
// for a query is always the additive sum of per-call TokenUsage values.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	ModelID          string
	Cost             float64
}

// Add returns the element-wise sum of two TokenUsage values. ModelID is kept
// from the receiver since cumulative totals are not attributed to one model.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		ModelID:          u.ModelID,
		Cost:             u.Cost + o.Cost,
	}
}

// BreakerState is the process-local circuit-breaker classification exposed
// for observability; the authoritative state machine lives in
// github.com/sony/gobreaker, this is a read-only projection of it.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreakerSnapshot is a point-in-time read of one model's breaker.
type CircuitBreakerSnapshot struct {
	ModelID                string
	State                  BreakerState
	ConsecutiveFailures    uint32
	LastFailureTime        time.Time
	ConsecutiveSuccessesHO uint32
}
