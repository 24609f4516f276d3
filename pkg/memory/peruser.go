package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// DefaultReadConcurrency is the size of the bounded-concurrency read gate.
// One gate is shared by every user of a PerUserStore; reads are not limited
// per user.
const DefaultReadConcurrency = 10

// DefaultWriteLockTimeout is the keyed-mutex acquisition deadline.
const DefaultWriteLockTimeout = 5 * time.Second

// Extractor delegates fact extraction to an external component (the Model
// Gateway at a small-model tier, per §4.L4).
type Extractor interface {
	Extract(ctx context.Context, userID, userMsg, aiMsg string) ([]types.Fact, error)
}

// Context is what get_context returns.
type Context struct {
	Facts    []types.Fact
	Summary  string
	Counters map[string]int
}

type factRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	Text           string         `db:"text"`
	Extracts       sql.NullString `db:"extracts"`
	DerivationID   sql.NullString `db:"source"`
	CreatedAt      time.Time      `db:"created_at"`
	SupersededByID sql.NullString `db:"superseded_by"`
}

// PerUserStore implements `get_context`/`process` over a shared SQL table of
// per-user facts, serializing writes per user_id and bounding concurrent
// reads.
type PerUserStore struct {
	db        *sqlx.DB
	extractor Extractor
	metrics   *metrics.Registry

	writeLocks  *keyedMutex
	readGate    *semaphore.Weighted
	lockTimeout time.Duration
}

// NewPerUserStore constructs a PerUserStore. db must already point at the
// per-user facts table described in §5 ("per-user facts
// (id, user_id, text, extracts, source, created_at, superseded_by)").
func NewPerUserStore(db *sqlx.DB, extractor Extractor, m *metrics.Registry) *PerUserStore {
	return &PerUserStore{
		db:          db,
		extractor:   extractor,
		metrics:     m,
		writeLocks:  newKeyedMutex(),
		readGate:    semaphore.NewWeighted(DefaultReadConcurrency),
		lockTimeout: DefaultWriteLockTimeout,
	}
}

// GetContext implements `get_context(user_id, query?)`.
func (s *PerUserStore) GetContext(ctx context.Context, userID, query string) (Context, error) {
	if err := s.readGate.Acquire(ctx, 1); err != nil {
		return Context{}, fmt.Errorf("memory: acquire read gate for %s: %w", userID, err)
	}
	defer s.readGate.Release(1)

	var rows []factRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, text, extracts, source, created_at, superseded_by
		 FROM facts WHERE user_id = $1 AND superseded_by IS NULL
		 ORDER BY created_at DESC LIMIT 50`, userID)
	if err != nil {
		return Context{}, fmt.Errorf("memory: get_context for %s: %w", userID, err)
	}

	facts := make([]types.Fact, 0, len(rows))
	for _, r := range rows {
		facts = append(facts, rowToFact(r))
	}

	return Context{
		Facts:    facts,
		Summary:  summarize(facts),
		Counters: map[string]int{"fact_count": len(facts)},
	}, nil
}

func rowToFact(r factRow) types.Fact {
	f := types.Fact{
		ID:             r.ID,
		OwnerUserID:    r.UserID,
		Text:           r.Text,
		DerivationID:   r.DerivationID.String,
		CreatedAt:      r.CreatedAt,
		SupersededByID: r.SupersededByID.String,
	}
	if r.Extracts.Valid {
		_ = json.Unmarshal([]byte(r.Extracts.String), &f.Extracts)
	}
	return f
}

func summarize(facts []types.Fact) string {
	if len(facts) == 0 {
		return ""
	}
	if len(facts) == 1 {
		return facts[0].Text
	}
	return fmt.Sprintf("%s (and %d more)", facts[0].Text, len(facts)-1)
}

// Process implements `process(user_id, user_msg, ai_msg) -> extracted facts`.
// Writes are serialized per user_id by the keyed mutex with a 5-second
// acquisition deadline.
func (s *PerUserStore) Process(ctx context.Context, userID, userMsg, aiMsg string) ([]types.Fact, error) {
	unlock, err := s.writeLocks.Lock(ctx, userID, s.lockTimeout)
	if err != nil {
		if s.metrics != nil {
			s.metrics.LockTimeouts.WithLabelValues("memory_peruser_write").Inc()
		}
		return nil, fmt.Errorf("memory: acquire write lock for %s: %w", userID, err)
	}
	defer unlock()

	facts, err := s.extractor.Extract(ctx, userID, userMsg, aiMsg)
	if err != nil {
		return nil, fmt.Errorf("memory: extract facts for %s: %w", userID, err)
	}
	if len(facts) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: begin tx: %w", err)
	}
	defer tx.Rollback()

	for i := range facts {
		if facts[i].ID == "" {
			facts[i].ID = uuid.NewString()
		}
		facts[i].OwnerUserID = userID
		if facts[i].CreatedAt.IsZero() {
			facts[i].CreatedAt = timeNow()
		}

		extractsJSON, err := json.Marshal(facts[i].Extracts)
		if err != nil {
			return nil, fmt.Errorf("memory: marshal extracts: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO facts (id, user_id, text, extracts, source, created_at, superseded_by)
			 VALUES ($1, $2, $3, $4, $5, $6, NULL)`,
			facts[i].ID, userID, facts[i].Text, string(extractsJSON), facts[i].DerivationID, facts[i].CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("memory: insert fact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memory: commit facts for %s: %w", userID, err)
	}
	return facts, nil
}

// timeNow is overridable in tests; production code always uses time.Now.
var timeNow = time.Now
