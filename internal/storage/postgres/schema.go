package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates the ledger tables when they do not exist.
func (s *LedgerStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id        UUID PRIMARY KEY,
			workbook      TEXT NOT NULL,
			started_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ,
			status        TEXT NOT NULL,
			total         BIGINT NOT NULL,
			completed     BIGINT NOT NULL DEFAULT 0,
			error_message TEXT
		);`, s.runTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id      UUID NOT NULL,
			row_index   INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			phone       TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, row_index)
		);`, s.outcomeTable),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	return nil
}
