package application

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

const (
	// EarthRadius is the WGS 84 equatorial radius in meters.
	EarthRadius = 6378137.0

	// lookAtPadding adds 50% to the computed range.
	lookAtPadding = 1.5
)

// Framer computes look-at camera parameters for geometries.
type Framer struct {
	engine      output.GeometryEngine
	metrics     output.MetricsCollector
	logger      *slog.Logger
	workingSRID int
}

// NewFramer creates a new framer measuring extents in workingSRID, which
// should be an equal-area projection in meters.
func NewFramer(engine output.GeometryEngine, metrics output.MetricsCollector, logger *slog.Logger, workingSRID int) *Framer {
	if workingSRID <= 0 {
		workingSRID = domain.DefaultWorkingSRID
	}
	return &Framer{
		engine:      engine,
		metrics:     metrics,
		logger:      logger,
		workingSRID: workingSRID,
	}
}

// WorkingSRID returns the SRID extents are measured in.
func (f *Framer) WorkingSRID() int {
	return f.workingSRID
}

// ComputeLookAt returns the camera range and centre that frame g. The input is
// not modified.
func (f *Framer) ComputeLookAt(ctx context.Context, g domain.Geometry) (domain.LookAt, error) {
	start := time.Now()
	out, err := f.computeLookAt(ctx, g)
	f.metrics.IncOperation("lookat", err == nil)
	f.metrics.ObserveOperationDuration("lookat", time.Since(start))
	return out, err
}

func (f *Framer) computeLookAt(ctx context.Context, g domain.Geometry) (domain.LookAt, error) {
	if g.IsEmpty() {
		return domain.LookAt{}, &domain.GeometryError{Op: "lookat", Type: string(g.Type()), Reason: "geometry is empty"}
	}

	planarGeom, err := f.reproject(ctx, g, f.workingSRID)
	if err != nil {
		return domain.LookAt{}, err
	}

	extent := planarGeom.Extent()
	if extent.IsDegenerate() {
		return domain.LookAt{}, &domain.GeometryError{Op: "lookat", Type: string(g.Type()), Reason: "extent has zero size"}
	}

	lookAtRange := FramingRange(extent)
	f.logger.Debug("computed look-at range", "range", lookAtRange, "srid", f.workingSRID,
		"width", extent.Width(), "height", extent.Height())

	geographic, err := f.reproject(ctx, g, domain.SRIDWGS84)
	if err != nil {
		return domain.LookAt{}, err
	}
	centroid := centroidOf(geographic.Shape)

	return domain.LookAt{
		Range:     lookAtRange,
		Latitude:  centroid.Lat(),
		Longitude: centroid.Lon(),
	}, nil
}

// FramingRange returns the camera distance in meters that fits extent in view.
//
// The spans are measured across the extent through its centre; the half view
// angle alpha was fit empirically for a unit aspect ratio.
func FramingRange(extent domain.Extent) float64 {
	center := extent.Center()
	lngSpan := planar.Distance(orb.Point{extent.MinX, center.Y()}, orb.Point{extent.MaxX, center.Y()})
	latSpan := planar.Distance(orb.Point{center.X(), extent.MaxY}, orb.Point{center.X(), extent.MinY})

	aspectUse := math.Max(1.0, math.Min(lngSpan/latSpan, 1.0))
	alpha := domain.DegreesToRadians(45.0/(aspectUse+0.4) - 2.0)

	span := latSpan
	if lngSpan > latSpan {
		span = lngSpan
	}
	beta := math.Min(domain.DegreesToRadians(90), alpha+span/2.0/EarthRadius)

	return lookAtPadding * EarthRadius * (math.Sin(beta)*math.Sqrt(1.0/math.Pow(math.Tan(alpha), 2.0)+1.0) - 1.0)
}

func (f *Framer) reproject(ctx context.Context, g domain.Geometry, srid int) (domain.Geometry, error) {
	if g.SRID == srid {
		return g.Clone(), nil
	}
	out, err := f.engine.Reproject(ctx, g, srid)
	f.metrics.IncEngineCall(f.engine.Name(), "reproject", err == nil)
	if err != nil {
		return domain.Geometry{}, wrapEngineError(f.engine, "reproject", err)
	}
	return out, nil
}

// centroidOf returns the area centroid of polygons, the length-weighted
// centroid of lines and the mean of points.
func centroidOf(shape orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(shape)
	return c
}
