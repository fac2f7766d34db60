package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrInvalidGeometry       = fmt.Errorf("geometry: %w", ErrInvalidInput)
	ErrEmptyCollection       = fmt.Errorf("empty collection: %w", ErrInvalidInput)
	ErrInvalidSRID           = fmt.Errorf("srid: %w", ErrInvalidInput)
	ErrUncleanable           = fmt.Errorf("uncleanable geometry: %w", ErrInternal)
	ErrCleanupFailed         = fmt.Errorf("cleanup failed: %w", ErrInternal)
	ErrUnsupportedProjection = fmt.Errorf("projection: %w", ErrUnsupported)
	ErrUnsupportedFormat     = fmt.Errorf("format: %w", ErrUnsupported)
	ErrEngineUnavailable     = fmt.Errorf("geometry engine: %w", ErrUnavailable)
	ErrSourceUnavailable     = fmt.Errorf("source: %w", ErrUnavailable)
)

// GeometryError describes malformed or degenerate geometry input.
type GeometryError struct {
	Op     string // Operation that rejected the geometry
	Type   string // Geometry type, if known
	Reason string // Human-readable reason
}

// Error implements the error interface.
func (e *GeometryError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("invalid geometry in %s (%s): %s", e.Op, e.Type, e.Reason)
	}
	return fmt.Sprintf("invalid geometry in %s: %s", e.Op, e.Reason)
}

// Unwrap returns the underlying error type.
func (e *GeometryError) Unwrap() error {
	return ErrInvalidGeometry
}

// UncleanableError is returned when repair was attempted but the result is
// still invalid or has too few coordinates.
type UncleanableError struct {
	Type   string // Geometry type after repair
	Reason string
}

// Error implements the error interface.
func (e *UncleanableError) Error() string {
	return fmt.Sprintf("cannot clean %s geometry: %s", e.Type, e.Reason)
}

// Unwrap returns the underlying error type.
func (e *UncleanableError) Unwrap() error {
	return ErrUncleanable
}

// CleanupFailedError is returned when a geometry is invalid after a
// reprojection round trip.
type CleanupFailedError struct {
	Stage string // "target" or "source"
	SRID  int    // SRID of the geometry at the failing stage
}

// Error implements the error interface.
func (e *CleanupFailedError) Error() string {
	return fmt.Sprintf("could not produce a valid geometry in SRID %d (%s stage)", e.SRID, e.Stage)
}

// Unwrap returns the underlying error type.
func (e *CleanupFailedError) Unwrap() error {
	return ErrCleanupFailed
}

// EngineError represents a failure inside a geometry engine call.
type EngineError struct {
	Engine    string // Engine name (native, spatialite, postgis)
	Operation string // Operation that failed
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s engine error during %s: %v", e.Engine, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// SourceError represents an error while reading from a geometry source.
type SourceError struct {
	Operation string // Operation that failed (list, read, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("source error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("source error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
