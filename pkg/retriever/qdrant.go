package retriever

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kejora-ai/orchestrator/pkg/ptr"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
	tierPayloadKey   = "tier"
)

// QdrantIndex is a CollectionIndex backed by a single Qdrant collection with
// a named dense vector and an optional named sparse vector, grounded on the
// teacher's ai/providers/vectorstores/qdrant.VectorStore.
type QdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	hasSparse      bool
}

// NewQdrantIndex wraps an existing Qdrant collection. hasSparse must match
// whatever the collection was created with; when false, SparseSearch always
// returns an error and the retriever degrades to dense-only.
func NewQdrantIndex(client *qdrant.Client, collectionName string, hasSparse bool) *QdrantIndex {
	return &QdrantIndex{client: client, collectionName: collectionName, hasSparse: hasSparse}
}

func (q *QdrantIndex) Name() string          { return q.collectionName }
func (q *QdrantIndex) SparseAvailable() bool { return q.hasSparse }

func tierFilter(maxTier int) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewRange(tierPayloadKey, &qdrant.Range{Lte: ptr.Pointer(float64(maxTier))}),
		},
	}
}

func (q *QdrantIndex) DenseSearch(ctx context.Context, dense []float32, maxTier, limit int) ([]RankedDoc, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(dense...),
		Using:          ptr.Pointer(denseVectorName),
		Filter:         tierFilter(maxTier),
		Limit:          ptr.Pointer(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: dense query %s: %w", q.collectionName, err)
	}
	return q.toRanked(points), nil
}

func (q *QdrantIndex) SparseSearch(ctx context.Context, sparse []types.SparseEntry, maxTier, limit int) ([]RankedDoc, error) {
	if !q.hasSparse {
		return nil, fmt.Errorf("qdrant: collection %s has no sparse index", q.collectionName)
	}

	indices := make([]uint32, len(sparse))
	values := make([]float32, len(sparse))
	for i, e := range sparse {
		indices[i] = e.Index
		values[i] = e.Weight
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuerySparse(indices, values),
		Using:          ptr.Pointer(sparseVectorName),
		Filter:         tierFilter(maxTier),
		Limit:          ptr.Pointer(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: sparse query %s: %w", q.collectionName, err)
	}
	return q.toRanked(points), nil
}

func (q *QdrantIndex) toRanked(points []*qdrant.ScoredPoint) []RankedDoc {
	out := make([]RankedDoc, 0, len(points))
	for _, p := range points {
		doc := types.Document{Collection: q.collectionName}
		if id := p.GetId(); id != nil {
			doc.ID = id.GetUuid()
		}
		payload := p.GetPayload()
		if v, ok := payload["title"]; ok {
			doc.Title = v.GetStringValue()
		}
		if v, ok := payload["body"]; ok {
			doc.Body = v.GetStringValue()
		}
		if v, ok := payload["source_url"]; ok {
			doc.SourceURL = v.GetStringValue()
		}
		if v, ok := payload[tierPayloadKey]; ok {
			doc.Tier = int(v.GetIntegerValue())
		}
		out = append(out, RankedDoc{Doc: doc, Score: float64(p.GetScore())})
	}
	return out
}

// Ingest upserts documents as points with named dense (and, when present,
// sparse) vectors and a tier-tagged payload.
func (q *QdrantIndex) Ingest(ctx context.Context, docs []types.Document) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}

		vectors := map[string]*qdrant.Vector{
			denseVectorName: qdrant.NewVector(doc.Dense...),
		}
		if q.hasSparse && len(doc.Sparse) > 0 {
			indices := make([]uint32, len(doc.Sparse))
			values := make([]float32, len(doc.Sparse))
			for i, e := range doc.Sparse {
				indices[i] = e.Index
				values[i] = e.Weight
			}
			vectors[sparseVectorName] = qdrant.NewVectorSparse(indices, values)
		}

		payload, err := qdrant.TryValueMap(map[string]any{
			"title":        doc.Title,
			"body":         doc.Body,
			"source_url":   doc.SourceURL,
			tierPayloadKey: doc.Tier,
		})
		if err != nil {
			return fmt.Errorf("qdrant: build payload for %s: %w", id, err)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: payload,
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
		Wait:           ptr.Pointer(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points into %s: %w", len(points), q.collectionName, err)
	}
	return nil
}
