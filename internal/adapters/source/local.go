// Package source provides geometry sources backed by the local filesystem,
// S3, Azure Blob Storage and plain HTTP.
package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Local implements output.GeometrySource for a local directory.
type Local struct {
	basePath string
}

var _ output.GeometrySource = (*Local)(nil)

// NewLocal creates a new local source rooted at basePath.
func NewLocal(basePath string) *Local {
	return &Local{basePath: basePath}
}

// List returns all geometry files below the base directory. Keys are
// slash-separated paths relative to it.
func (s *Local) List(ctx context.Context) ([]output.SourceObject, error) {
	var objects []output.SourceObject

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !output.IsInputFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		objects = append(objects, output.SourceObject{
			Key:          filepath.ToSlash(relPath),
			Size:         info.Size(),
			LastModified: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, &domain.SourceError{Operation: "list", Err: err}
	}

	return objects, nil
}

// GetReader opens the file for key.
func (s *Local) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.FullPath(key))
	if err != nil {
		return nil, &domain.SourceError{Operation: "read", Key: key, Err: err}
	}
	return f, nil
}

// Exists checks if a file exists.
func (s *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.FullPath(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, &domain.SourceError{Operation: "stat", Key: key, Err: err}
}

// FullPath returns the full path for a key.
func (s *Local) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}
