package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenEstimator_EstimateGrowsWithLength(t *testing.T) {
	est, err := NewCL100KTokenEstimator()
	require.NoError(t, err)

	short := est.Estimate("visa")
	long := est.Estimate(strings.Repeat("visa requirements for a KITAS ", 50))
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestTokenEstimator_EstimateMessagesIncludesOverheadPerMessage(t *testing.T) {
	est, err := NewCL100KTokenEstimator()
	require.NoError(t, err)

	one := est.EstimateMessages([]Message{{Role: "user", Content: "hello"}})
	two := est.EstimateMessages([]Message{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hello"}})
	assert.Greater(t, two, one)
}
