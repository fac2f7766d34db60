// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"iter"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

// ConfiguredThreshold passed as a spike threshold selects the toolkit's
// configured threshold.
const ConfiguredThreshold = -1.0

// Toolkit defines the primary port for the geometry manipulators.
type Toolkit interface {
	// LargestPolygon returns the member of multi with the largest area.
	LargestPolygon(multi orb.MultiPolygon) (orb.Polygon, error)

	// LargestLine returns the member of multi with the greatest length.
	LargestLine(multi orb.MultiLineString) (orb.LineString, error)

	// Angle returns the unnormalized angle at p2 between p1 and p3 in radians.
	Angle(ctx context.Context, p1, p2, p3 orb.Point) (float64, error)

	// AngleDegrees returns Angle in degrees.
	AngleDegrees(ctx context.Context, p1, p2, p3 orb.Point) (float64, error)

	// SpikeIndices yields the indices of spike vertices in ring. A negative
	// thresholdDeg uses the configured threshold.
	SpikeIndices(ring orb.Ring, thresholdDeg float64) iter.Seq[int]

	// RemoveSpikes removes spike vertices from the exterior ring of polygon.
	RemoveSpikes(polygon orb.Polygon, thresholdDeg float64) (orb.Polygon, error)

	// CleanGeometry validates the geometry and repairs it when invalid.
	CleanGeometry(ctx context.Context, g domain.Geometry) (domain.Geometry, error)

	// EnsureClean cleans the geometry in targetSRID and again in its own SRID.
	EnsureClean(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error)

	// ComputeLookAt computes camera parameters framing the geometry.
	ComputeLookAt(ctx context.Context, g domain.Geometry) (domain.LookAt, error)

	// IsCCW reports the winding of ring.
	IsCCW(ring orb.Ring) bool

	// ForceRHR returns polygon with a clockwise exterior and counter-clockwise holes.
	ForceRHR(polygon orb.Polygon) (orb.Polygon, error)

	// ForceLHR returns polygon with a counter-clockwise exterior and clockwise holes.
	ForceLHR(polygon orb.Polygon) (orb.Polygon, error)
}

// HealthChecker defines the primary port for engine health checks.
type HealthChecker interface {
	// IsReady returns true if the geometry engine answers correctly.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Ready      bool              `json:"ready" yaml:"ready"`           // Engine answered every probe
	Engine     string            `json:"engine" yaml:"engine"`         // Engine name
	Components map[string]string `json:"components" yaml:"components"` // Probe results
}
