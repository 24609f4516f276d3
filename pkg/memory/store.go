// Package memory implements the Memory Store (§4.L4): a per-user sub-store
// with keyed-mutex writes and bounded-concurrency reads, and a collective
// sub-store with atomic cross-user fact promotion, both over a shared SQL
// backing (sqlx + lib/pq, grounded on the pack's sqlx-based persistence
// style).
package memory

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
)

// Status is the Memory Store's degradation mode (§4.L4).
type Status string

const (
	StatusHealthy     Status = "HEALTHY"
	StatusDegraded    Status = "DEGRADED"
	StatusUnavailable Status = "UNAVAILABLE"
)

// Store bundles both sub-stores and reports the combined degradation mode.
type Store struct {
	PerUser    *PerUserStore
	Collective *CollectiveStore
	status     Status
}

// New constructs a Store. extractor may be nil only in tests that never
// call Process. If db is nil, the per-user store cannot function and Store
// reports UNAVAILABLE (§4.L4: "UNAVAILABLE blocks orchestrator startup").
func New(db *sqlx.DB, extractor Extractor, m *metrics.Registry, collectiveEnabled bool) (*Store, error) {
	if db == nil {
		return &Store{status: StatusUnavailable}, fmt.Errorf("memory: per-user store requires a database connection")
	}

	s := &Store{
		PerUser: NewPerUserStore(db, extractor, m),
		status:  StatusHealthy,
	}

	if collectiveEnabled {
		s.Collective = NewCollectiveStore(db, m)
	} else {
		s.status = StatusDegraded
	}

	return s, nil
}

// Status reports the current degradation mode.
func (s *Store) Status() Status {
	return s.status
}
