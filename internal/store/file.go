package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/evalzoo/pkg/model"
)

const (
	// QueueFile holds the pending pairs, e.g. [[41,38],[41,37]].
	QueueFile = "pairlist.json"
	// LastVersionFile holds the last version whose pairs were queued.
	LastVersionFile = "last_model.json"
)

// FileStore keeps the two records as JSON files in one directory. Each
// write goes to a temporary file in the same directory which is synced and
// then renamed over the target.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore returns a FileStore rooted at dir, creating dir if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With("component", "store", "backend", "file"),
	}, nil
}

// Dir returns the state directory.
func (s *FileStore) Dir() string { return s.dir }

// Close is a no-op; files are not held open between calls.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) Load(ctx context.Context) (*model.SchedulerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := model.NewSchedulerState()
	var missing []string

	found, err := s.readJSON(QueueFile, &state.Pending)
	if err != nil {
		return nil, err
	}
	if !found {
		missing = append(missing, QueueFile)
	}
	if state.Pending == nil {
		state.Pending = model.Queue{}
	}

	found, err = s.readJSON(LastVersionFile, &state.LastQueued)
	if err != nil {
		return nil, err
	}
	if !found {
		missing = append(missing, LastVersionFile)
	}

	s.logger.Debug("load", "pairs", len(state.Pending), "last_queued", state.LastQueued)
	if len(missing) > 0 {
		return state, fmt.Errorf("%w: %v not found in %s", model.ErrStateMissing, missing, s.dir)
	}
	return state, nil
}

func (s *FileStore) Save(ctx context.Context, state *model.SchedulerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pending := state.Pending.Sorted()
	if err := s.writeJSON(QueueFile, pending); err != nil {
		return err
	}
	if err := s.writeJSON(LastVersionFile, state.LastQueued); err != nil {
		return err
	}
	s.logger.Debug("save", "pairs", len(pending), "last_queued", state.LastQueued)
	return nil
}

// readJSON decodes name into v. found is false when the file does not exist.
func (s *FileStore) readJSON(name string, v any) (found bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return writeFileAtomic(filepath.Join(s.dir, name), data)
}

// writeFileAtomic replaces path with data via write, fsync, rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
