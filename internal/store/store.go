package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/me/evalzoo/pkg/model"
)

// Store persists the zoo loop's pending queue and last queued version.
// Exactly one loop may write a given store at a time.
type Store interface {
	// Load returns the persisted state. When either record is absent the
	// error wraps model.ErrStateMissing and the state holds whatever was
	// found, with an empty queue or version 0 standing in for the rest.
	Load(ctx context.Context) (*model.SchedulerState, error)

	// Save overwrites both records. A concurrent reader never observes a
	// partially written queue.
	Save(ctx context.Context, state *model.SchedulerState) error

	// Close releases the underlying resources.
	Close() error
}

// Open returns the store for path: SQLite when path ends in ".db" (or is
// ":memory:"), otherwise a directory of JSON records.
func Open(ctx context.Context, path string, logger *slog.Logger) (Store, error) {
	if path == ":memory:" || strings.HasSuffix(path, ".db") {
		st, err := NewSQLiteStore(path, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate %s: %w", path, err)
		}
		return st, nil
	}
	return NewFileStore(path, logger)
}
