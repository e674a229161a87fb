package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"supplier-catalog-service/internal/domain"
	"supplier-catalog-service/internal/retry"
)

// Predefined errors for store operations
var (
	ErrRefreshCycleNotFound = errors.New("store: refresh cycle not found")
	ErrRefreshCycleExists   = errors.New("store: refresh cycle already recorded")
)

const pingTimeout = 5 * time.Second

// PostgresStore implements RefreshHistoryStorer using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WaitReady pings the database until it answers, trying at most attempts
// times with delay in between. Each ping is bounded by pingTimeout.
func (s *PostgresStore) WaitReady(ctx context.Context, attempts int, delay time.Duration) error {
	err := retry.Do(ctx, retry.Config{MaxAttempts: attempts, Backoff: retry.ConstantBackoff(delay)}, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return s.db.PingContext(pingCtx)
	})
	if err != nil {
		return fmt.Errorf("store: database not ready after %d attempts: %w", max(attempts, 1), err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveRefreshCycle stores a cycle and its per-supplier results in one
// transaction.
func (s *PostgresStore) SaveRefreshCycle(ctx context.Context, cycle domain.RefreshCycle) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: SaveRefreshCycle failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	total := 0
	for _, r := range cycle.Results {
		total += r.ItemCount
	}

	cycleQuery := `
		INSERT INTO catalog.refresh_cycles (id, trigger, started_at, finished_at, product_count, failed_suppliers)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err = tx.ExecContext(ctx, cycleQuery,
		cycle.ID, cycle.Trigger, cycle.StartedAt, cycle.FinishedAt, total, pq.Array(cycle.FailedSuppliers()),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // Unique violation
			return ErrRefreshCycleExists
		}
		return fmt.Errorf("store: SaveRefreshCycle failed to insert cycle: %w", err)
	}

	resultQuery := `
		INSERT INTO catalog.refresh_results (cycle_id, position, supplier, success, item_count, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	for i, r := range cycle.Results {
		_, err = tx.ExecContext(ctx, resultQuery,
			cycle.ID, i, string(r.Supplier), r.Success, r.ItemCount, r.Duration.Milliseconds(), nullString(r.Error),
		)
		if err != nil {
			return fmt.Errorf("store: SaveRefreshCycle failed to insert result for %s: %w", r.Supplier, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: SaveRefreshCycle failed to commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRefreshCycle(ctx context.Context, id string) (*domain.RefreshCycle, error) {
	query := `
		SELECT id, trigger, started_at, finished_at
		FROM catalog.refresh_cycles
		WHERE id = $1;
	`
	var c domain.RefreshCycle
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Trigger, &c.StartedAt, &c.FinishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshCycleNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "22P02" { // invalid_text_representation: not a uuid
			return nil, ErrRefreshCycleNotFound
		}
		return nil, fmt.Errorf("store: GetRefreshCycle failed to scan row: %w", err)
	}

	results, err := s.loadResults(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.Results = results[c.ID]
	if c.Results == nil {
		c.Results = []domain.SupplierRefreshResult{}
	}
	return &c, nil
}

// ListRefreshCycles retrieves a page of refresh cycles, newest first.
func (s *PostgresStore) ListRefreshCycles(ctx context.Context, params ListRefreshesParams) ([]domain.RefreshCycle, int, error) {
	var queryArgs []interface{}
	var whereClauses []string
	argID := 1

	if params.Trigger != nil && *params.Trigger != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("trigger = $%d", argID))
		queryArgs = append(queryArgs, *params.Trigger)
		argID++
	}
	if params.FailedOnly {
		whereClauses = append(whereClauses, "cardinality(failed_suppliers) > 0")
	}

	whereCondition := ""
	if len(whereClauses) > 0 {
		whereCondition = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM catalog.refresh_cycles" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListRefreshCycles failed to count cycles: %w", err)
	}

	if totalCount == 0 {
		return []domain.RefreshCycle{}, 0, nil
	}

	dataQuery := fmt.Sprintf(
		"SELECT id, trigger, started_at, finished_at FROM catalog.refresh_cycles%s ORDER BY started_at DESC LIMIT $%d OFFSET $%d",
		whereCondition, argID, argID+1)
	finalQueryArgs := append(queryArgs, params.Limit, params.Offset)

	rows, err := s.db.QueryContext(ctx, dataQuery, finalQueryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListRefreshCycles failed to query cycles: %w", err)
	}
	defer rows.Close()

	cycles := make([]domain.RefreshCycle, 0, params.Limit)
	ids := make([]string, 0, params.Limit)
	for rows.Next() {
		var c domain.RefreshCycle
		if err := rows.Scan(&c.ID, &c.Trigger, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("store: ListRefreshCycles failed to scan cycle row: %w", err)
		}
		cycles = append(cycles, c)
		ids = append(ids, c.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListRefreshCycles iteration error: %w", err)
	}

	results, err := s.loadResults(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range cycles {
		cycles[i].Results = results[cycles[i].ID]
		if cycles[i].Results == nil {
			cycles[i].Results = []domain.SupplierRefreshResult{}
		}
	}
	return cycles, totalCount, nil
}

// loadResults fetches the per-supplier results of the given cycles in their
// recorded order.
func (s *PostgresStore) loadResults(ctx context.Context, ids []string) (map[string][]domain.SupplierRefreshResult, error) {
	out := make(map[string][]domain.SupplierRefreshResult, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT cycle_id, supplier, success, item_count, duration_ms, error
		FROM catalog.refresh_results
		WHERE cycle_id = ANY($1)
		ORDER BY cycle_id, position;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: failed to query refresh results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cycleID    string
			supplier   string
			r          domain.SupplierRefreshResult
			durationMs int64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&cycleID, &supplier, &r.Success, &r.ItemCount, &durationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("store: failed to scan refresh result row: %w", err)
		}
		r.Supplier = domain.Supplier(supplier)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if errMsg.Valid {
			r.Error = errMsg.String
		}
		out[cycleID] = append(out[cycleID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: refresh results iteration error: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
