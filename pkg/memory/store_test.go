package memory

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilDBIsUnavailable(t *testing.T) {
	s, err := New(nil, nil, nil, true)
	require.Error(t, err)
	assert.Equal(t, StatusUnavailable, s.Status())
}

func TestNew_CollectiveDisabledIsDegraded(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(sqlx.NewDb(db, "sqlmock"), nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, s.Status())
	assert.Nil(t, s.Collective)
}

func TestNew_HealthyWhenBothSubStoresInitialized(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(sqlx.NewDb(db, "sqlmock"), nil, nil, true)
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, s.Status())
	assert.NotNil(t, s.Collective)
}
