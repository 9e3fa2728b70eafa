// Package catalog discovers trained model versions and resolves them to
// model paths. A models directory holds files named "<number>-<name>.pb",
// e.g. "000041-bold-tiger.pb".
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/me/evalzoo/pkg/model"
)

// ModelExt is the extension of a servable model file.
const ModelExt = ".pb"

// ErrUnknownVersion is returned by Path when no model has that number.
var ErrUnknownVersion = errors.New("unknown model version")

// Catalog lists the model versions available for evaluation.
type Catalog interface {
	// Latest returns the highest version present, or 0 when there is none.
	Latest(ctx context.Context) (model.VersionID, error)

	// Path returns the full path of the model file for v.
	Path(ctx context.Context, v model.VersionID) (string, error)
}

// parseModelName extracts the version number from a model file name.
// ok is false for anything that is not "<digits>-<name>.pb".
func parseModelName(name string) (v model.VersionID, ok bool) {
	base := path.Base(name)
	if !strings.HasSuffix(base, ModelExt) {
		return 0, false
	}
	num, _, found := strings.Cut(strings.TrimSuffix(base, ModelExt), "-")
	if !found || num == "" {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, false
	}
	return model.VersionID(n), true
}

// index maps versions to file names, keeping the latest seen.
type index struct {
	files  map[model.VersionID]string
	latest model.VersionID
}

func newIndex() *index {
	return &index{files: make(map[model.VersionID]string)}
}

func (ix *index) add(name string) {
	v, ok := parseModelName(name)
	if !ok {
		return
	}
	ix.files[v] = name
	if v > ix.latest {
		ix.latest = v
	}
}

func (ix *index) lookup(v model.VersionID) (string, error) {
	name, ok := ix.files[v]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	return name, nil
}

// New returns the catalog for modelsDir: S3 for "s3://bucket/prefix",
// otherwise a local directory.
func New(ctx context.Context, modelsDir string) (Catalog, error) {
	if modelsDir == "" {
		return nil, errors.New("models directory is required")
	}
	if strings.HasPrefix(modelsDir, "s3://") {
		return NewS3CatalogFromEnv(ctx, modelsDir)
	}
	return NewDirCatalog(modelsDir), nil
}
