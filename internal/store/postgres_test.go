package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplier-catalog-service/internal/domain"
)

// Helper function to create a mock DB and PostgresStore for testing
func newMockDBAndStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Failed to create sqlmock")

	store := NewPostgresStore(db)
	require.NotNil(t, store, "Store should not be nil")

	return db, mock, store
}

func PtrTo[T any](v T) *T {
	return &v
}

var (
	insertCycleQuery = regexp.QuoteMeta(`
		INSERT INTO catalog.refresh_cycles (id, trigger, started_at, finished_at, product_count, failed_suppliers)
		VALUES ($1, $2, $3, $4, $5, $6);
	`)
	insertResultQuery = regexp.QuoteMeta(`
		INSERT INTO catalog.refresh_results (cycle_id, position, supplier, success, item_count, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`)
	selectResultsQuery = regexp.QuoteMeta(`
		SELECT cycle_id, supplier, success, item_count, duration_ms, error
		FROM catalog.refresh_results
		WHERE cycle_id = ANY($1)
		ORDER BY cycle_id, position;
	`)
)

func sampleCycle(now time.Time) domain.RefreshCycle {
	return domain.RefreshCycle{
		ID:         "5b8f3c1e-7a3d-4c55-9b2a-0c6f1f1d2e10",
		Trigger:    "schedule",
		StartedAt:  now,
		FinishedAt: now.Add(4 * time.Second),
		Results: []domain.SupplierRefreshResult{
			{Supplier: domain.SupplierAcme, Success: true, ItemCount: 120, Duration: 1500 * time.Millisecond},
			{Supplier: domain.SupplierCrest, Success: false, Duration: 2 * time.Second, Error: "crest: unexpected status 503"},
		},
	}
}

func TestPostgresStore_SaveRefreshCycle(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	cycle := sampleCycle(now)

	mock.ExpectBegin()
	mock.ExpectExec(insertCycleQuery).
		WithArgs(cycle.ID, "schedule", cycle.StartedAt, cycle.FinishedAt, 120, pq.Array([]string{"crest"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertResultQuery).
		WithArgs(cycle.ID, 0, "acme", true, 120, int64(1500), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertResultQuery).
		WithArgs(cycle.ID, 1, "crest", false, 0, int64(2000), "crest: unexpected status 503").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveRefreshCycle(context.Background(), cycle)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet(), "SQLmock expectations were not met")
}

func TestPostgresStore_SaveRefreshCycle_AlreadyExists(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	cycle := sampleCycle(time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(insertCycleQuery).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.SaveRefreshCycle(context.Background(), cycle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRefreshCycleExists), "Error should be ErrRefreshCycleExists")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRefreshCycle_ResultInsertFailsRollsBack(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	cycle := sampleCycle(time.Now())
	dbErr := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(insertCycleQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertResultQuery).WillReturnError(dbErr)
	mock.ExpectRollback()

	err := store.SaveRefreshCycle(context.Background(), cycle)
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "insert result for acme")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRefreshCycle(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	id := "5b8f3c1e-7a3d-4c55-9b2a-0c6f1f1d2e10"

	query := regexp.QuoteMeta(`
		SELECT id, trigger, started_at, finished_at
		FROM catalog.refresh_cycles
		WHERE id = $1;
	`)
	mock.ExpectQuery(query).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trigger", "started_at", "finished_at"}).
			AddRow(id, "manual", now, now.Add(time.Second)))
	mock.ExpectQuery(selectResultsQuery).WithArgs(pq.Array([]string{id})).
		WillReturnRows(sqlmock.NewRows([]string{"cycle_id", "supplier", "success", "item_count", "duration_ms", "error"}).
			AddRow(id, "acme", true, 42, int64(250), nil).
			AddRow(id, "dynamo", false, 0, int64(30000), "dynamo: timeout"))

	cycle, err := store.GetRefreshCycle(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, cycle)

	assert.Equal(t, "manual", cycle.Trigger)
	assert.WithinDuration(t, now, cycle.StartedAt, time.Millisecond)
	require.Len(t, cycle.Results, 2)
	assert.Equal(t, domain.SupplierAcme, cycle.Results[0].Supplier)
	assert.Equal(t, 250*time.Millisecond, cycle.Results[0].Duration)
	assert.Empty(t, cycle.Results[0].Error)
	assert.Equal(t, "dynamo: timeout", cycle.Results[1].Error)
	assert.Equal(t, []string{"dynamo"}, cycle.FailedSuppliers())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRefreshCycle_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, trigger, started_at, finished_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	cycle, err := store.GetRefreshCycle(context.Background(), "missing")
	require.Error(t, err)
	assert.Nil(t, cycle)
	assert.True(t, errors.Is(err, ErrRefreshCycleNotFound), "Error should be ErrRefreshCycleNotFound")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRefreshCycle_MalformedID(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, trigger, started_at, finished_at").
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})

	_, err := store.GetRefreshCycle(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrRefreshCycleNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRefreshCycles(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	params := ListRefreshesParams{Limit: 2, Offset: 0, Trigger: PtrTo("schedule")}

	countQuery := regexp.QuoteMeta("SELECT COUNT(*) FROM catalog.refresh_cycles WHERE trigger = $1")
	mock.ExpectQuery(countQuery).WithArgs("schedule").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	dataQuery := regexp.QuoteMeta("SELECT id, trigger, started_at, finished_at FROM catalog.refresh_cycles WHERE trigger = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3")
	mock.ExpectQuery(dataQuery).WithArgs("schedule", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trigger", "started_at", "finished_at"}).
			AddRow("c2", "schedule", now, now.Add(time.Second)).
			AddRow("c1", "schedule", now.Add(-30*time.Minute), now.Add(-29*time.Minute)))

	mock.ExpectQuery(selectResultsQuery).WithArgs(pq.Array([]string{"c2", "c1"})).
		WillReturnRows(sqlmock.NewRows([]string{"cycle_id", "supplier", "success", "item_count", "duration_ms", "error"}).
			AddRow("c1", "acme", true, 10, int64(100), nil).
			AddRow("c2", "acme", true, 11, int64(90), nil).
			AddRow("c2", "crest", true, 7, int64(80), nil))

	cycles, total, err := store.ListRefreshCycles(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, cycles, 2)
	assert.Equal(t, "c2", cycles[0].ID)
	assert.Len(t, cycles[0].Results, 2)
	assert.Equal(t, "c1", cycles[1].ID)
	assert.Len(t, cycles[1].Results, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRefreshCycles_FailedOnlyEmpty(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	countQuery := regexp.QuoteMeta("SELECT COUNT(*) FROM catalog.refresh_cycles WHERE cardinality(failed_suppliers) > 0")
	mock.ExpectQuery(countQuery).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	cycles, total, err := store.ListRefreshCycles(context.Background(), ListRefreshesParams{Limit: 10, FailedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, cycles)
	assert.Empty(t, cycles)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRefreshCycles_CountFails(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	dbErr := errors.New("relation does not exist")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM catalog.refresh_cycles")).WillReturnError(dbErr)

	_, _, err := store.ListRefreshCycles(context.Background(), ListRefreshesParams{Limit: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WaitReady(t *testing.T) {
	t.Run("retries until the database answers", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		mock.ExpectPing()

		err = store.WaitReady(context.Background(), 3, time.Millisecond)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err = store.WaitReady(context.Background(), 2, time.Millisecond)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not ready after 2 attempts")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
