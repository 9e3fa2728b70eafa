package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the scheduler tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pending_pairs (
		seq   INTEGER PRIMARY KEY AUTOINCREMENT,
		black INTEGER NOT NULL,
		white INTEGER NOT NULL
	)`,

	// watermark holds a single row; its presence means a state was saved.
	`CREATE TABLE IF NOT EXISTS watermark (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		last_queued INTEGER NOT NULL DEFAULT 0,
		updated_at  TEXT NOT NULL DEFAULT ''
	)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
