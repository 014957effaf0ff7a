// Package postgres provides the Postgres-backed run ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/reverse411/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default table names.
const (
	DefaultRunTable     = "run_ledger"
	DefaultOutcomeTable = "row_outcomes"
)

// LedgerStoreConfig controls the Postgres connection pool and table names.
type LedgerStoreConfig struct {
	DSN             string
	RunTable        string
	OutcomeTable    string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// LedgerStore implements store.LedgerRepository using Postgres.
type LedgerStore struct {
	pool         pgxIface
	runTable     string
	outcomeTable string
}

var _ store.LedgerRepository = (*LedgerStore)(nil)

// NewLedgerStore connects to Postgres using cfg.
func NewLedgerStore(ctx context.Context, cfg LedgerStoreConfig) (*LedgerStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewLedgerStoreWithPool(pool, cfg.RunTable, cfg.OutcomeTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewLedgerStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLedgerStoreWithPool(pool pgxIface, runTable, outcomeTable string) (*LedgerStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if runTable == "" {
		runTable = DefaultRunTable
	}
	if outcomeTable == "" {
		outcomeTable = DefaultOutcomeTable
	}
	for _, name := range []string{runTable, outcomeTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &LedgerStore{pool: pool, runTable: runTable, outcomeTable: outcomeTable}, nil
}

// Close closes the underlying connection pool.
func (s *LedgerStore) Close() {
	s.pool.Close()
}

// StartRun inserts the run header.
func (s *LedgerStore) StartRun(
	ctx context.Context,
	runID uuid.UUID,
	workbook string,
	total int64,
	startedAt time.Time,
) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, workbook, started_at, status, total, completed)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (run_id) DO NOTHING;`, s.runTable)
	if _, err := s.pool.Exec(ctx, query, runID, workbook, startedAt, store.RunRunning, total); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordOutcomes upserts outcomes in a single transaction.
func (s *LedgerStore) RecordOutcomes(ctx context.Context, outcomes []store.RowOutcome) (err error) {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outcomes tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, row_index, outcome, phone, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, row_index) DO UPDATE
		SET outcome = EXCLUDED.outcome, phone = EXCLUDED.phone, recorded_at = EXCLUDED.recorded_at;`,
		s.outcomeTable)
	for _, o := range outcomes {
		if _, err = tx.Exec(ctx, query, o.RunID, o.Row, o.Outcome, o.Phone, o.RecordedAt); err != nil {
			return fmt.Errorf("upsert outcome row %d: %w", o.Row, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit outcomes tx: %w", err)
	}
	return nil
}

// CompleteRun marks the run finished.
func (s *LedgerStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	completed int64,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, completed = $3, error_message = $4
		WHERE run_id = $5;`, s.runTable)
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, completed, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *LedgerStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`
		SELECT run_id, workbook, started_at, finished_at, status, total, completed, error_message
		FROM %s
		WHERE run_id = $1;`, s.runTable)
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Workbook,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Total,
		&run.Completed,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}
