package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func TestValidate_KeywordOverlapAboveThresholdIsDuplicate(t *testing.T) {
	f, err := New(nil, "")
	require.NoError(t, err)

	require.NoError(t, f.Publish(types.PublishedItem{
		ID:          "p1",
		Title:       "PT PMA minimum capital requirement Indonesia",
		PublishedAt: time.Now(),
	}))

	res, err := f.Validate(context.Background(), "PT PMA minimum capital requirement", "", "http://x", 0.9)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "p1", res.SimilarTo)
	assert.False(t, res.Approved)
}

func TestValidate_DistinctTitleIsApproved(t *testing.T) {
	f, err := New(nil, "")
	require.NoError(t, err)

	require.NoError(t, f.Publish(types.PublishedItem{
		ID:          "p1",
		Title:       "PT PMA minimum capital requirement Indonesia",
		PublishedAt: time.Now(),
	}))

	res, err := f.Validate(context.Background(), "KITAS renewal process for foreign workers", "", "http://y", 0.9)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Approved)
}

// TestValidate_HighPriorScoreNeverBypassesCheck models §4.L5's override
// policy: a near-certain relevance score must not skip the duplicate check.
func TestValidate_HighPriorScoreNeverBypassesCheck(t *testing.T) {
	f, err := New(nil, "")
	require.NoError(t, err)

	require.NoError(t, f.Publish(types.PublishedItem{
		ID:          "p1",
		Title:       "BKPM investment license requirements for PT PMA",
		PublishedAt: time.Now(),
	}))

	res, err := f.Validate(context.Background(), "BKPM investment license requirements PT PMA", "", "http://z", 1.0)
	require.NoError(t, err)
	assert.True(t, res.Duplicate, "a perfect prior score must not bypass the keyword check")
}

func TestValidate_SemanticDuplicateDetectedWhenKeywordsDiffer(t *testing.T) {
	vec := []float32{1, 0, 0}
	f, err := New(&fakeEmbedder{vectors: map[string][]float32{
		"foreign investment capital rules": vec,
	}}, "")
	require.NoError(t, err)

	require.NoError(t, f.Publish(types.PublishedItem{
		ID:          "p1",
		Title:       "unrelated wording entirely",
		PublishedAt: time.Now(),
		Embedding:   vec,
	}))

	res, err := f.Validate(context.Background(), "foreign investment capital rules", "", "http://z", 0.0)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "p1", res.SimilarTo)
}

func TestValidate_SemanticCheckIgnoresItemsOlderThanRecencyWindow(t *testing.T) {
	vec := []float32{1, 0, 0}
	f, err := New(&fakeEmbedder{vectors: map[string][]float32{
		"foreign investment capital rules": vec,
	}}, "")
	require.NoError(t, err)

	require.NoError(t, f.Publish(types.PublishedItem{
		ID:          "stale",
		Title:       "unrelated wording entirely",
		PublishedAt: time.Now().Add(-10 * 24 * time.Hour),
		Embedding:   vec,
	}))

	res, err := f.Validate(context.Background(), "foreign investment capital rules", "", "http://z", 0.0)
	require.NoError(t, err)
	assert.False(t, res.Duplicate, "items older than the recency window must not be compared against")
}

func TestValidate_PropagatesEmbedderError(t *testing.T) {
	f, err := New(&fakeEmbedder{err: errors.New("embedding service down")}, "")
	require.NoError(t, err)

	_, err = f.Validate(context.Background(), "some new title", "", "http://z", 0.0)
	require.Error(t, err)
}

// TestPublish_EvictsOldestOnceCapacityExceeded models §4.L5's rolling
// 500-item window with oldest-first eviction.
func TestPublish_EvictsOldestOnceCapacityExceeded(t *testing.T) {
	f, err := New(nil, "")
	require.NoError(t, err)

	for i := 0; i < WindowCapacity+10; i++ {
		require.NoError(t, f.Publish(types.PublishedItem{
			ID:          itoaID(i),
			Title:       itoaID(i),
			PublishedAt: time.Now(),
		}))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.window, WindowCapacity)
	assert.Equal(t, itoaID(10), f.window[0].ID, "oldest items beyond capacity must be evicted first")
}

func itoaID(n int) string {
	digits := []byte{}
	if n == 0 {
		return "0"
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
