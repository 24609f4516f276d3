package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
)

// DefaultPromotionThreshold is the distinct-contributor count required for a
// collective fact to be promoted (§4 "Configuration keys": "promotion
// threshold (default 3)").
const DefaultPromotionThreshold = 3

type collectiveRow struct {
	ID              string    `db:"id"`
	Content         string    `db:"content"`
	ContentHash     string    `db:"content_hash"`
	Category        string    `db:"category"`
	SourceCount     int       `db:"source_count"`
	Promoted        bool      `db:"promoted"`
	FirstSeenAt     time.Time `db:"first_seen_at"`
	LastConfirmedAt time.Time `db:"last_confirmed_at"`
}

// CollectiveStore implements `contribute`/`get_promoted`/`get_recent` over
// the shared collective-facts table plus its sources join table (§5).
type CollectiveStore struct {
	db        *sqlx.DB
	metrics   *metrics.Registry
	threshold int
}

// NewCollectiveStore constructs a CollectiveStore with the default
// promotion threshold. Use WithThreshold to override it.
func NewCollectiveStore(db *sqlx.DB, m *metrics.Registry) *CollectiveStore {
	return &CollectiveStore{db: db, metrics: m, threshold: DefaultPromotionThreshold}
}

// WithThreshold overrides the promotion threshold (for tests / config).
func (c *CollectiveStore) WithThreshold(n int) *CollectiveStore {
	c.threshold = n
	return c
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ContributeResult is what `contribute` returns.
type ContributeResult struct {
	FactID   string
	Promoted bool
}

// Contribute implements the atomic promotion path (§4.L4 "Collective
// store"): open a transaction, select-for-update the fact row by content
// hash, insert-or-update it, and emit a promotion only on the false→true
// transition observed within this transaction.
func (c *CollectiveStore) Contribute(ctx context.Context, userID, content, category string) (ContributeResult, error) {
	hash := contentHash(content)

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return ContributeResult{}, fmt.Errorf("memory: begin contribute tx: %w", err)
	}
	defer tx.Rollback()

	var row collectiveRow
	err = tx.GetContext(ctx, &row,
		`SELECT id, content, content_hash, category, source_count, promoted, first_seen_at, last_confirmed_at
		 FROM collective_facts WHERE content_hash = $1 FOR UPDATE`, hash)

	now := timeNow()

	if errors.Is(err, sql.ErrNoRows) {
		row = collectiveRow{
			ID:              uuid.NewString(),
			Content:         content,
			ContentHash:     hash,
			Category:        category,
			SourceCount:     1,
			Promoted:        false,
			FirstSeenAt:     now,
			LastConfirmedAt: now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO collective_facts (id, content, content_hash, category, source_count, promoted, first_seen_at, last_confirmed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			row.ID, row.Content, row.ContentHash, row.Category, row.SourceCount, row.Promoted, row.FirstSeenAt, row.LastConfirmedAt)
		if err != nil {
			return ContributeResult{}, fmt.Errorf("memory: insert collective fact: %w", err)
		}

		if _, err = tx.ExecContext(ctx,
			`INSERT INTO collective_fact_sources (memory_id, user_email) VALUES ($1, $2)
			 ON CONFLICT (memory_id, user_email) DO NOTHING`, row.ID, userID); err != nil {
			return ContributeResult{}, fmt.Errorf("memory: insert source: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return ContributeResult{}, fmt.Errorf("memory: commit new collective fact: %w", err)
		}
		return ContributeResult{FactID: row.ID, Promoted: row.Promoted}, nil
	}
	if err != nil {
		return ContributeResult{}, fmt.Errorf("memory: select collective fact for update: %w", err)
	}

	prePromoted := row.Promoted

	var alreadyContributed bool
	err = tx.GetContext(ctx, &alreadyContributed,
		`SELECT EXISTS(SELECT 1 FROM collective_fact_sources WHERE memory_id = $1 AND user_email = $2)`,
		row.ID, userID)
	if err != nil {
		return ContributeResult{}, fmt.Errorf("memory: check existing contributor: %w", err)
	}

	if !alreadyContributed {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO collective_fact_sources (memory_id, user_email) VALUES ($1, $2)
			 ON CONFLICT (memory_id, user_email) DO NOTHING`, row.ID, userID); err != nil {
			if isUniqueViolation(err) {
				// Lost a race with a concurrent contributor insert for the
				// same (memory_id, user_email); treat as already-contributed.
				alreadyContributed = true
			} else {
				return ContributeResult{}, fmt.Errorf("memory: insert source: %w", err)
			}
		}
	}

	newSourceCount := row.SourceCount
	if !alreadyContributed {
		newSourceCount = row.SourceCount + 1
	}
	postPromoted := prePromoted || newSourceCount >= c.threshold

	_, err = tx.ExecContext(ctx,
		`UPDATE collective_facts SET source_count = $1, promoted = $2, last_confirmed_at = $3 WHERE id = $4`,
		newSourceCount, postPromoted, now, row.ID)
	if err != nil {
		return ContributeResult{}, fmt.Errorf("memory: update collective fact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ContributeResult{}, fmt.Errorf("memory: commit collective contribution: %w", err)
	}

	if !prePromoted && postPromoted && c.metrics != nil {
		c.metrics.PromotionsTotal.Inc()
	}

	return ContributeResult{FactID: row.ID, Promoted: postPromoted}, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return false
}

// GetPromoted implements `get_promoted`, bypassing the write lock (§4.L4:
// "Reads ... bypass the lock").
func (c *CollectiveStore) GetPromoted(ctx context.Context, category string, limit int) ([]collectiveRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []collectiveRow
	err := c.db.SelectContext(ctx, &rows,
		`SELECT id, content, content_hash, category, source_count, promoted, first_seen_at, last_confirmed_at
		 FROM collective_facts WHERE promoted = true AND ($1 = '' OR category = $1)
		 ORDER BY last_confirmed_at DESC LIMIT $2`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: get_promoted: %w", err)
	}
	return rows, nil
}

// GetRecent implements `get_recent`, bypassing the write lock.
func (c *CollectiveStore) GetRecent(ctx context.Context, limit int) ([]collectiveRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []collectiveRow
	err := c.db.SelectContext(ctx, &rows,
		`SELECT id, content, content_hash, category, source_count, promoted, first_seen_at, last_confirmed_at
		 FROM collective_facts ORDER BY first_seen_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: get_recent: %w", err)
	}
	return rows, nil
}
