package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// conversationCacheTTL bounds how long an unsynced conversation lives in
// cache before the DB write is expected to have confirmed it.
const conversationCacheTTL = 10 * time.Minute

// dbRetryAttempts is the two-phase save's DB-write retry budget (§5).
const dbRetryAttempts = 3

// ConversationRecord is one persisted turn, matching §5's `conversations
// (id, user_id, session_id, messages, metadata, created_at)` relation.
type ConversationRecord struct {
	ID        string
	UserID    string
	SessionID string
	Messages  []types.ChatMessage
	Metadata  map[string]any
	CreatedAt time.Time
}

// ConversationStore implements the two-phase conversation save (§4.T2 step
// 6, §5): a best-effort cache write followed by a retried DB write. Cache
// entries are marked synced only after the DB confirms, matching the
// teacher's cache-then-durable-store layering (core/lynx config + storage
// pattern generalized to this domain).
type ConversationStore struct {
	cache   *redis.Client
	db      *sqlx.DB
	metrics *metrics.Registry
}

// NewConversationStore builds a ConversationStore. cache may be nil, in
// which case the cache phase is skipped and writes go straight to DB.
func NewConversationStore(cache *redis.Client, db *sqlx.DB, m *metrics.Registry) *ConversationStore {
	return &ConversationStore{cache: cache, db: db, metrics: m}
}

// Save persists one conversation turn. Phase 1 (cache) is best-effort: a
// cache error is ignored and never blocks phase 2. Phase 2 (DB) retries with
// exponential backoff and jitter, up to dbRetryAttempts attempts in all; if
// it still fails, Save increments the metrics inconsistency counter and
// returns the error. The record is not queued for a later retry.
func (s *ConversationStore) Save(ctx context.Context, rec ConversationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal conversation messages: %w", err)
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal conversation metadata: %w", err)
	}

	s.writeCacheBestEffort(ctx, rec, payload, metaJSON)

	writeErr := s.writeDBWithRetry(ctx, rec, payload, metaJSON)
	if writeErr != nil {
		if s.metrics != nil {
			s.metrics.CacheDBInconsistencies.Inc()
		}
		return fmt.Errorf("orchestrator: persist conversation %s after retries: %w", rec.ID, writeErr)
	}

	s.markSynced(ctx, rec.ID)
	return nil
}

func (s *ConversationStore) writeCacheBestEffort(ctx context.Context, rec ConversationRecord, payload, metaJSON []byte) {
	if s.cache == nil {
		return
	}
	entry := map[string]any{
		"id":         rec.ID,
		"user_id":    rec.UserID,
		"session_id": rec.SessionID,
		"messages":   string(payload),
		"metadata":   string(metaJSON),
		"synced":     "false",
	}
	_ = s.cache.HSet(ctx, conversationCacheKey(rec.ID), entry).Err()
	s.cache.Expire(ctx, conversationCacheKey(rec.ID), conversationCacheTTL)
}

func (s *ConversationStore) writeDBWithRetry(ctx context.Context, rec ConversationRecord, payload, metaJSON []byte) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), dbRetryAttempts-1)
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversations (id, user_id, session_id, messages, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.UserID, rec.SessionID, string(payload), string(metaJSON), rec.CreatedAt)
		return err
	}, policy)
}

func (s *ConversationStore) markSynced(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	s.cache.HSet(ctx, conversationCacheKey(id), "synced", "true")
}

func conversationCacheKey(id string) string {
	return "conversation:" + id
}
