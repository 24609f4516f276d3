package memory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
)

func newMockCollectiveStore(t *testing.T) (*CollectiveStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewCollectiveStore(sqlxDB, metrics.New()).WithThreshold(3), mock
}

func TestContribute_FirstContributorInsertsUnpromoted(t *testing.T) {
	store, mock := newMockCollectiveStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, content, content_hash").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO collective_facts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO collective_fact_sources").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := store.Contribute(context.Background(), "alice@example.com", "PT PMA minimum capital is 10 billion IDR", "tax")
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContribute_CrossesThresholdEmitsPromotionOnTransition(t *testing.T) {
	store, mock := newMockCollectiveStore(t)

	rows := sqlmock.NewRows([]string{"id", "content", "content_hash", "category", "source_count", "promoted", "first_seen_at", "last_confirmed_at"}).
		AddRow("fact-1", "content", "hash", "tax", 2, false, time.Now(), time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, content, content_hash").WillReturnRows(rows)
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO collective_fact_sources").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE collective_facts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := store.Contribute(context.Background(), "carol@example.com", "content", "tax")
	require.NoError(t, err)
	assert.True(t, res.Promoted, "third distinct contributor should cross the threshold")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContribute_AlreadyContributedDoesNotDoubleCount(t *testing.T) {
	store, mock := newMockCollectiveStore(t)

	rows := sqlmock.NewRows([]string{"id", "content", "content_hash", "category", "source_count", "promoted", "first_seen_at", "last_confirmed_at"}).
		AddRow("fact-1", "content", "hash", "tax", 2, false, time.Now(), time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, content, content_hash").WillReturnRows(rows)
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE collective_facts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := store.Contribute(context.Background(), "bob@example.com", "content", "tax")
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

