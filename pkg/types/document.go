package types

import "time"

// SparseEntry is one (index, weight) pair of a sparse BM25-like vector.
// Entries are kept sorted by Index so that sparse-vector comparisons and
// wire encodings are deterministic.
type SparseEntry struct {
	Index  uint32
	Weight float32
}

// Document is owned by the vector store: immutable once committed, and
// re-ingestion replaces a document by ID rather than mutating it in place.
type Document struct {
	ID          string
	Collection  string
	Tier        int
	Title       string
	Body        string
	SourceURL   string
	PublishedAt time.Time
	Dense       []float32
	Sparse      []SparseEntry
}

// VectorConfig describes a collection's dense/sparse shape.
type VectorConfig struct {
	DenseDim       int
	DistanceMetric string // "cosine" | "dot" | "euclid"
	SparseEnabled  bool
}

// Collection groups vector configuration with the payload fields indexed
// for filtering. It is mutated only by ingestion.
type Collection struct {
	ID            string
	Vector        VectorConfig
	PayloadFields []string
}
