package output

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

// GeometryEngine defines the secondary port for the geometry engine capability.
// Implementations may be backed by an embedded library or a remote database.
type GeometryEngine interface {
	// Name returns the engine name used in logs and errors.
	Name() string

	// IsValid reports whether the geometry is valid in the OGC sense.
	IsValid(ctx context.Context, g domain.Geometry) (bool, error)

	// RepairSelfIntersections nodes the boundary of a polygonal or lineal
	// geometry and rebuilds it into a valid simple geometry.
	RepairSelfIntersections(ctx context.Context, g domain.Geometry) (domain.Geometry, error)

	// Reproject returns a copy of the geometry in the target SRID.
	Reproject(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error)

	// Azimuth returns the north-based clockwise bearing from p1 to p2 in radians.
	Azimuth(ctx context.Context, p1, p2 orb.Point) (float64, error)

	// Close releases engine resources.
	Close() error
}

// Reprojector defines the secondary port for coordinate transformations.
type Reprojector interface {
	// Reproject returns a copy of the geometry in the target SRID.
	Reproject(g domain.Geometry, targetSRID int) (domain.Geometry, error)

	// IsSupported checks if a transformation is supported.
	IsSupported(sourceSRID, targetSRID int) bool
}
