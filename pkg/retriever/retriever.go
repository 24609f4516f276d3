// Package retriever implements the Hybrid Retriever (§4.L2): federated
// dense+sparse search across many collections, fused by Reciprocal Rank
// Fusion, with a hard tier≤user_tier access-control filter pushed into the
// query rather than applied after the fact.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// rrfK is the Reciprocal Rank Fusion constant (§4.L2).
const rrfK = 60

// Embedder produces the dense embedding for a query, once per search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SparseEncoder produces the BM25-like sparse vector for a query, once per
// search.
type SparseEncoder interface {
	Encode(ctx context.Context, text string) ([]types.SparseEntry, error)
}

// RankedDoc is one scored hit from a single ranker (dense or sparse) against
// a single collection. The index implementation is responsible for applying
// the tier filter before returning results.
type RankedDoc struct {
	Doc   types.Document
	Score float64
}

// CollectionIndex is the per-collection storage backend. Concrete providers
// (Qdrant, ...) implement this; see QdrantIndex.
type CollectionIndex interface {
	Name() string
	// SparseAvailable reports whether this collection has a sparse index.
	// When false, Search degrades that collection to dense-only and records
	// a degraded-mode metric rather than failing (§4.L2).
	SparseAvailable() bool
	// DenseSearch and SparseSearch must apply maxTier as a hard filter
	// (tier <= maxTier) at query time, never post-filter.
	DenseSearch(ctx context.Context, dense []float32, maxTier, limit int) ([]RankedDoc, error)
	SparseSearch(ctx context.Context, sparse []types.SparseEntry, maxTier, limit int) ([]RankedDoc, error)
	Ingest(ctx context.Context, docs []types.Document) error
}

// Result is one fused hit returned by Search, ready for the caller
// (Tool Registry's vector_search tool).
type Result struct {
	DocID      string
	Score      float64
	Payload    types.Document
	Collection string
}

// ErrUnknownCollection is returned when a collection_hint names a collection
// that was never registered.
var ErrUnknownCollection = errors.New("retriever: unknown collection")

// Retriever is the federated hybrid search surface.
type Retriever struct {
	embedder Embedder
	sparse   SparseEncoder
	metrics  *metrics.Registry

	mu          sync.RWMutex
	collections map[string]CollectionIndex
	locks       map[string]*sync.RWMutex
}

// New constructs a Retriever. collections is keyed by collection name, set
// once at startup; additional collections can be registered later via
// Register for test and admin-ingest flows.
func New(embedder Embedder, sparse SparseEncoder, m *metrics.Registry, collections map[string]CollectionIndex) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("retriever: embedder is required")
	}
	if sparse == nil {
		return nil, errors.New("retriever: sparse encoder is required")
	}

	r := &Retriever{
		embedder:    embedder,
		sparse:      sparse,
		metrics:     m,
		collections: make(map[string]CollectionIndex),
		locks:       make(map[string]*sync.RWMutex),
	}
	for name, idx := range collections {
		r.Register(name, idx)
	}
	return r, nil
}

// Register adds or replaces a collection's backing index.
func (r *Retriever) Register(name string, idx CollectionIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[name] = idx
	if _, ok := r.locks[name]; !ok {
		r.locks[name] = &sync.RWMutex{}
	}
}

func (r *Retriever) lockFor(name string) *sync.RWMutex {
	r.mu.RLock()
	l, ok := r.locks[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.locks[name]; ok {
		return l
	}
	l = &sync.RWMutex{}
	r.locks[name] = l
	return l
}

// Search implements `search(query_text, user_tier, k, collection_hint?)`
// (§4.L2). The dense embedding and sparse vector are each computed once and
// reused across every collection queried.
func (r *Retriever) Search(ctx context.Context, queryText string, userTier, k int, collectionHint string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}

	dense, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}
	sparse, err := r.sparse.Encode(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("retriever: encode sparse query: %w", err)
	}

	var targets []string
	if collectionHint != "" {
		r.mu.RLock()
		_, ok := r.collections[collectionHint]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collectionHint)
		}
		targets = []string{collectionHint}
	} else {
		r.mu.RLock()
		for name := range r.collections {
			targets = append(targets, name)
		}
		r.mu.RUnlock()
	}

	perCollection := make([][]RankedDoc, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range targets {
		i, name := i, name
		g.Go(func() error {
			fused, err := r.searchCollection(gctx, name, dense, sparse, userTier, k)
			if err != nil {
				return fmt.Errorf("collection %s: %w", name, err)
			}
			perCollection[i] = fused
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		anyResults := false
		for _, c := range perCollection {
			if len(c) > 0 {
				anyResults = true
				break
			}
		}
		if !anyResults {
			return nil, fmt.Errorf("retriever: federated search failed: %w", err)
		}
		// Partial failure across collections: proceed with what succeeded.
	}

	// Federated fusion: treat each collection's fused list as one ranker and
	// re-run RRF across collection rank positions (§4.L2).
	named := make(map[string][]RankedDoc, len(targets))
	for i, name := range targets {
		named[name] = perCollection[i]
	}
	fused := federatedFuse(named, k)

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		results = append(results, Result{
			DocID:      f.doc.Doc.ID,
			Score:      f.score,
			Payload:    f.doc.Doc,
			Collection: f.collection,
		})
	}
	return results, nil
}

// searchCollection runs the dense+sparse hybrid search against one
// collection, applying the tier hard filter, and returns the RRF fusion of
// the two rankers (§4.L2 "hybrid score fusion").
func (r *Retriever) searchCollection(ctx context.Context, name string, dense []float32, sparse []types.SparseEntry, userTier, k int) ([]RankedDoc, error) {
	r.mu.RLock()
	idx, ok := r.collections[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}

	lock := r.lockFor(name)
	lock.RLock()
	defer lock.RUnlock()

	denseHits, err := idx.DenseSearch(ctx, dense, userTier, k)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}

	if !idx.SparseAvailable() {
		if r.metrics != nil {
			r.metrics.DegradedModeActivations.WithLabelValues("sparse_fallback").Inc()
		}
		return topN(denseHits, k), nil
	}

	sparseHits, err := idx.SparseSearch(ctx, sparse, userTier, k)
	if err != nil {
		// Sparse failure degrades to dense-only rather than failing the
		// whole search (§4.L2 sparse-vector fallback).
		if r.metrics != nil {
			r.metrics.DegradedModeActivations.WithLabelValues("sparse_fallback").Inc()
		}
		return topN(denseHits, k), nil
	}

	return topN(rrfFuseRankers(denseHits, sparseHits), k), nil
}

func topN(hits []RankedDoc, n int) []RankedDoc {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits
}

// Ingest implements the exclusive-per-collection write used by external
// ingestion collaborators (§4.L2 "writer lock"). Concurrent reads (Search)
// proceed under a readers-writer discipline: Search holds the collection's
// RLock, Ingest holds its Lock.
func (r *Retriever) Ingest(ctx context.Context, collection string, docs []types.Document) error {
	r.mu.RLock()
	idx, ok := r.collections[collection]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	lock := r.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	if err := idx.Ingest(ctx, docs); err != nil {
		return fmt.Errorf("retriever: ingest into %s: %w", collection, err)
	}
	return nil
}
