// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

// GeometrySource defines the secondary port for reading geometry files from
// object storage.
type GeometrySource interface {
	// List returns all geometry files in the source.
	List(ctx context.Context) ([]SourceObject, error)

	// GetReader returns a reader for the given object.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// SourceObject represents a geometry file in a source.
type SourceObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// SourceType represents the type of source backend.
type SourceType string

const (
	SourceTypeS3    SourceType = "s3"
	SourceTypeAzure SourceType = "azure"
	SourceTypeHTTP  SourceType = "http"
	SourceTypeLocal SourceType = "local"
)

// GeometryExtensions lists the file extensions treated as geometry files.
var GeometryExtensions = []string{".wkt", ".ewkt", ".geojson", ".json", ".wkb", ".ewkb", ".hex"}

// IsGeometryFile reports whether name has a geometry file extension.
func IsGeometryFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range GeometryExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// CleanedMarker separates the stem and the format in result file names.
const CleanedMarker = ".clean."

// IsCleanedFile reports whether name is a result written by a batch run.
func IsCleanedFile(name string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(name)), CleanedMarker)
}

// IsInputFile reports whether name is a geometry file that has not been
// produced by a batch run.
func IsInputFile(name string) bool {
	return IsGeometryFile(name) && !IsCleanedFile(name)
}
