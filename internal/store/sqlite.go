package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/evalzoo/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. Save replaces the queue and the
// watermark in one transaction, so the two records never disagree.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One writer, and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store", "backend", "sqlite"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) Load(ctx context.Context) (*model.SchedulerState, error) {
	s.logger.Debug("sql", "op", "select", "table", "watermark")
	state := model.NewSchedulerState()

	var last int64
	err := s.db.QueryRowContext(ctx, `SELECT last_queued FROM watermark WHERE id = 1`).Scan(&last)
	missing := errors.Is(err, sql.ErrNoRows)
	if err != nil && !missing {
		return nil, fmt.Errorf("select watermark: %w", err)
	}
	state.LastQueued = model.VersionID(last)

	s.logger.Debug("sql", "op", "select", "table", "pending_pairs")
	rows, err := s.db.QueryContext(ctx, `SELECT black, white FROM pending_pairs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select pending pairs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Pair
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, fmt.Errorf("scan pending pair: %w", err)
		}
		state.Pending.Push(p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending pairs: %w", err)
	}

	if missing {
		return state, fmt.Errorf("%w: no watermark row", model.ErrStateMissing)
	}
	return state, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state *model.SchedulerState) error {
	s.logger.Debug("sql", "op", "replace", "pairs", len(state.Pending), "last_queued", state.LastQueued)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_pairs`); err != nil {
		return fmt.Errorf("clear pending pairs: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pending_pairs (black, white) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range state.Pending.Sorted() {
		if _, err := stmt.ExecContext(ctx, int64(p[0]), int64(p[1])); err != nil {
			return fmt.Errorf("insert pair %v: %w", p, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO watermark (id, last_queued, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_queued = excluded.last_queued, updated_at = excluded.updated_at`,
		int64(state.LastQueued), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert watermark: %w", err)
	}
	return tx.Commit()
}
