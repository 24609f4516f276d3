package retriever

import (
	"context"
	"sort"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

// memIndex is an in-memory CollectionIndex used by the test suite. Dense and
// sparse "scores" are both just 1/(1+distance from a fixed target ordering),
// which is enough to exercise fusion and tier filtering without a real
// vector backend.
type memIndex struct {
	name     string
	sparseOK bool
	docs     []types.Document
}

func newMemIndex(name string, sparseOK bool, docs []types.Document) *memIndex {
	return &memIndex{name: name, sparseOK: sparseOK, docs: docs}
}

func (m *memIndex) Name() string          { return m.name }
func (m *memIndex) SparseAvailable() bool { return m.sparseOK }

func filterByTier(docs []types.Document, maxTier int) []types.Document {
	out := make([]types.Document, 0, len(docs))
	for _, d := range docs {
		if d.Tier <= maxTier {
			out = append(out, d)
		}
	}
	return out
}

func (m *memIndex) DenseSearch(ctx context.Context, dense []float32, maxTier, limit int) ([]RankedDoc, error) {
	visible := filterByTier(m.docs, maxTier)
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })
	out := make([]RankedDoc, 0, len(visible))
	for i, d := range visible {
		out = append(out, RankedDoc{Doc: d, Score: 1.0 / float64(i+1)})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memIndex) SparseSearch(ctx context.Context, sparse []types.SparseEntry, maxTier, limit int) ([]RankedDoc, error) {
	if !m.sparseOK {
		return nil, errUnavailableSparse
	}
	visible := filterByTier(m.docs, maxTier)
	// Reverse order vs. dense so fusion actually blends the two rankers.
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].ID > visible[j].ID })
	out := make([]RankedDoc, 0, len(visible))
	for i, d := range visible {
		out = append(out, RankedDoc{Doc: d, Score: 1.0 / float64(i+1)})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memIndex) Ingest(ctx context.Context, docs []types.Document) error {
	m.docs = append(m.docs, docs...)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSparseEncoder struct{}

func (fakeSparseEncoder) Encode(ctx context.Context, text string) ([]types.SparseEntry, error) {
	return []types.SparseEntry{{Index: 1, Weight: 0.5}}, nil
}

var errUnavailableSparse = sparseUnavailableErr{}

type sparseUnavailableErr struct{}

func (sparseUnavailableErr) Error() string { return "sparse unavailable" }
