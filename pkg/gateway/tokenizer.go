package gateway

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts tokens for an outbound message set before it's sent
// to a Model, so the caller can keep a conversation within a context window
// without depending on a concrete provider to report usage up front.
type TokenEstimator struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
}

// NewCL100KTokenEstimator builds a TokenEstimator using the cl100k_base
// encoding, the tokenizer shared by the GPT-3.5/GPT-4 family and a
// reasonable estimate for other chat models behind the gateway.
func NewCL100KTokenEstimator() (*TokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return nil, err
	}
	return &TokenEstimator{encoding: enc}, nil
}

// Estimate returns the token count tiktoken-go reports for text under the
// estimator's encoding. tiktoken-go's *Tiktoken is not documented as
// goroutine-safe, so calls are serialized.
func (e *TokenEstimator) Estimate(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// EstimateMessages sums the estimate across every message's content, plus a
// flat per-message overhead for the role/delimiter tokens a real chat
// completion API adds that plain content-encoding doesn't capture.
func (e *TokenEstimator) EstimateMessages(messages []Message) int {
	const perMessageOverhead = 4
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + e.Estimate(m.Content)
	}
	return total
}
