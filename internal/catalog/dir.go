package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/me/evalzoo/pkg/model"
)

// DirCatalog reads model files from a local (or mounted) directory. The
// directory is re-read on every call; new models appear while the loop runs.
type DirCatalog struct {
	dir string
}

// NewDirCatalog returns a catalog over dir.
func NewDirCatalog(dir string) *DirCatalog {
	return &DirCatalog{dir: dir}
}

func (c *DirCatalog) scan(ctx context.Context) (*index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list models in %s: %w", c.dir, err)
	}
	ix := newIndex()
	for _, e := range entries {
		if !e.IsDir() {
			ix.add(e.Name())
		}
	}
	return ix, nil
}

func (c *DirCatalog) Latest(ctx context.Context) (model.VersionID, error) {
	ix, err := c.scan(ctx)
	if err != nil {
		return 0, err
	}
	return ix.latest, nil
}

func (c *DirCatalog) Path(ctx context.Context, v model.VersionID) (string, error) {
	ix, err := c.scan(ctx)
	if err != nil {
		return "", err
	}
	name, err := ix.lookup(v)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.dir, name), nil
}
