// Package dedup implements the Duplicate Filter (§4.L5): a two-layer
// keyword-then-semantic check guarding the ingestion pipeline, with a JSON-
// persisted rolling window of published items (matching the teacher's
// encoding/json usage throughout ai/model/converter).
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

// Window sizing and thresholds (§4.L5).
const (
	WindowCapacity       = 500
	KeywordWindow        = 100
	SemanticWindow       = 50
	SemanticRecencyLimit = 5 * 24 * time.Hour
	KeywordThreshold     = 0.6
	SemanticThreshold    = 0.88
)

// Embedder produces the embedding used for the layer-2 semantic check.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is what Validate returns.
type Result struct {
	Approved   bool
	Duplicate  bool
	SimilarTo  string
	Confidence float64
	Reason     string
}

var defaultStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "will": true, "with": true,
	"yang": true, "dan": true, "di": true, "ke": true, "dari": true, "untuk": true,
}

// Filter holds the rolling window and implements the two-layer check.
type Filter struct {
	mu          sync.Mutex
	embedder    Embedder
	persistPath string
	window      []types.PublishedItem
	stopWords   map[string]bool
}

// New constructs a Filter, loading any previously persisted window from
// persistPath (a no-op if the file does not exist yet).
func New(embedder Embedder, persistPath string) (*Filter, error) {
	f := &Filter{
		embedder:    embedder,
		persistPath: persistPath,
		stopWords:   defaultStopWords,
	}

	if persistPath == "" {
		return f, nil
	}

	data, err := os.ReadFile(persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("dedup: read window file: %w", err)
	}

	if err := json.Unmarshal(data, &f.window); err != nil {
		return nil, fmt.Errorf("dedup: parse window file: %w", err)
	}
	return f, nil
}

// Validate implements `validate(title, summary, url, prior_score)`.
// prior_score never bypasses the check (§4.L5 override policy) and is
// accepted purely for the caller's audit trail.
func (f *Filter) Validate(ctx context.Context, title, summary, url string, priorScore float64) (Result, error) {
	f.mu.Lock()
	window := append([]types.PublishedItem(nil), f.window...)
	f.mu.Unlock()

	if dup, id, score := f.keywordDuplicate(title, window); dup {
		return Result{
			Approved:   false,
			Duplicate:  true,
			SimilarTo:  id,
			Confidence: score,
			Reason:     "keyword overlap exceeds threshold",
		}, nil
	}

	if f.embedder != nil {
		dup, id, score, err := f.semanticDuplicate(ctx, title, window)
		if err != nil {
			return Result{}, fmt.Errorf("dedup: semantic check: %w", err)
		}
		if dup {
			return Result{
				Approved:   false,
				Duplicate:  true,
				SimilarTo:  id,
				Confidence: score,
				Reason:     "semantic similarity exceeds threshold",
			}, nil
		}
	}

	return Result{Approved: true, Duplicate: false}, nil
}

func tokenize(title string, stop map[string]bool) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := make(map[string]bool, len(fields))
	for _, w := range fields {
		if w == "" || stop[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// keywordDuplicate is layer 1: Jaccard-style overlap over the last
// KeywordWindow published titles.
func (f *Filter) keywordDuplicate(title string, window []types.PublishedItem) (bool, string, float64) {
	newTokens := tokenize(title, f.stopWords)
	if len(newTokens) == 0 {
		return false, "", 0
	}

	recent := lastN(window, KeywordWindow)

	var bestID string
	var bestScore float64
	for _, item := range recent {
		pubTokens := tokenize(item.Title, f.stopWords)
		if len(pubTokens) == 0 {
			continue
		}

		overlap := 0
		for t := range newTokens {
			if pubTokens[t] {
				overlap++
			}
		}

		smaller := len(newTokens)
		if len(pubTokens) < smaller {
			smaller = len(pubTokens)
		}
		if smaller == 0 {
			continue
		}

		score := float64(overlap) / float64(smaller)
		if score > bestScore {
			bestScore = score
			bestID = item.ID
		}
	}

	return bestScore > KeywordThreshold, bestID, bestScore
}

// semanticDuplicate is layer 2: nearest-neighbor cosine similarity against
// the last SemanticWindow items published within SemanticRecencyLimit.
func (f *Filter) semanticDuplicate(ctx context.Context, title string, window []types.PublishedItem) (bool, string, float64, error) {
	embedding, err := f.embedder.Embed(ctx, title)
	if err != nil {
		return false, "", 0, err
	}

	cutoff := timeNow().Add(-SemanticRecencyLimit)
	candidates := make([]types.PublishedItem, 0, SemanticWindow)
	for _, item := range lastN(window, SemanticWindow) {
		if item.PublishedAt.Before(cutoff) {
			continue
		}
		candidates = append(candidates, item)
	}

	var bestID string
	var bestScore float64
	for _, item := range candidates {
		if len(item.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(embedding, item.Embedding)
		if score > bestScore {
			bestScore = score
			bestID = item.ID
		}
	}

	return bestScore > SemanticThreshold, bestID, bestScore, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func lastN(items []types.PublishedItem, n int) []types.PublishedItem {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// Publish appends item to the rolling window (evicting the oldest entry
// once WindowCapacity is exceeded) and persists the window to disk when a
// persistPath was configured.
func (f *Filter) Publish(item types.PublishedItem) error {
	f.mu.Lock()
	f.window = append(f.window, item)
	if len(f.window) > WindowCapacity {
		f.window = f.window[len(f.window)-WindowCapacity:]
	}
	window := append([]types.PublishedItem(nil), f.window...)
	f.mu.Unlock()

	if f.persistPath == "" {
		return nil
	}

	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("dedup: marshal window: %w", err)
	}
	if err := os.WriteFile(f.persistPath, data, 0o644); err != nil {
		return fmt.Errorf("dedup: persist window: %w", err)
	}
	return nil
}

// timeNow is overridable in tests.
var timeNow = time.Now
