package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Cleaner validates geometries and repairs self-intersections through the
// configured geometry engine.
type Cleaner struct {
	engine  output.GeometryEngine
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewCleaner creates a new cleaner.
func NewCleaner(engine output.GeometryEngine, metrics output.MetricsCollector, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}
}

// CleanGeometry checks the geometry and repairs it when the engine reports it
// invalid. Polygonal input repaired into a multipolygon is reduced to its
// largest member. Types the repair does not apply to pass through unchanged.
func (c *Cleaner) CleanGeometry(ctx context.Context, g domain.Geometry) (domain.Geometry, error) {
	start := time.Now()
	out, err := c.clean(ctx, g)
	c.metrics.IncOperation("clean", err == nil)
	c.metrics.ObserveOperationDuration("clean", time.Since(start))
	return out, err
}

func (c *Cleaner) clean(ctx context.Context, g domain.Geometry) (domain.Geometry, error) {
	if g.IsEmpty() {
		return domain.Geometry{}, &domain.GeometryError{Op: "clean", Type: string(g.Type()), Reason: "geometry is empty"}
	}

	valid, err := c.isValid(ctx, g)
	if err != nil {
		return domain.Geometry{}, err
	}

	geomType := g.Type()
	if !valid && geomType.Repairable() {
		c.logger.Debug("repairing geometry", "type", geomType, "srid", g.SRID, "coords", g.NumCoords())

		repaired, err := c.engine.RepairSelfIntersections(ctx, g)
		c.metrics.IncEngineCall(c.engine.Name(), "repair", err == nil)
		if err != nil {
			return domain.Geometry{}, wrapEngineError(c.engine, "repair", err)
		}
		c.metrics.IncRepairs(string(geomType))

		if multi, ok := repaired.Shape.(orb.MultiPolygon); ok && geomType.IsPolygonal() && len(multi) > 0 {
			largest, err := domain.LargestPolygon(multi)
			if err != nil {
				return domain.Geometry{}, err
			}
			repaired = repaired.WithShape(largest)
		}

		g = repaired
		if valid, err = c.isValid(ctx, g); err != nil {
			return domain.Geometry{}, err
		}
	}

	if !valid {
		return domain.Geometry{}, &domain.UncleanableError{Type: string(g.Type()), Reason: "geometry is still invalid"}
	}
	if !isPuntal(g.Type()) && g.NumCoords() < 2 {
		return domain.Geometry{}, &domain.UncleanableError{Type: string(g.Type()), Reason: "fewer than 2 coordinates"}
	}
	return g, nil
}

// EnsureClean reprojects the geometry to targetSRID when it differs, cleans
// it, and verifies the result. When the SRID changed, the cleaned geometry is
// reprojected back to its original SRID, cleaned and verified again.
func (c *Cleaner) EnsureClean(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	start := time.Now()
	out, err := c.ensureClean(ctx, g, targetSRID)
	c.metrics.IncOperation("ensure_clean", err == nil)
	c.metrics.ObserveOperationDuration("ensure_clean", time.Since(start))
	return out, err
}

func (c *Cleaner) ensureClean(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	if targetSRID <= 0 {
		return domain.Geometry{}, &domain.ValidationError{
			Field:      "target_srid",
			Value:      targetSRID,
			Constraint: "> 0",
			Message:    "target srid must be a positive EPSG code",
		}
	}

	sourceSRID := g.SRID
	work := g
	if sourceSRID != targetSRID {
		var err error
		if work, err = c.reproject(ctx, g, targetSRID); err != nil {
			return domain.Geometry{}, err
		}
	}

	cleaned, err := c.cleanAndVerify(ctx, work, "target")
	if err != nil {
		return domain.Geometry{}, err
	}
	if cleaned.SRID == sourceSRID {
		return cleaned, nil
	}

	back, err := c.reproject(ctx, cleaned, sourceSRID)
	if err != nil {
		return domain.Geometry{}, err
	}
	return c.cleanAndVerify(ctx, back, "source")
}

func (c *Cleaner) cleanAndVerify(ctx context.Context, g domain.Geometry, stage string) (domain.Geometry, error) {
	cleaned, err := c.clean(ctx, g)
	if err != nil {
		return domain.Geometry{}, err
	}

	valid, err := c.isValid(ctx, cleaned)
	if err != nil {
		return domain.Geometry{}, err
	}
	if !valid {
		c.logger.Warn("geometry invalid after cleanup", "stage", stage, "srid", cleaned.SRID)
		return domain.Geometry{}, &domain.CleanupFailedError{Stage: stage, SRID: cleaned.SRID}
	}
	return cleaned, nil
}

func (c *Cleaner) isValid(ctx context.Context, g domain.Geometry) (bool, error) {
	valid, err := c.engine.IsValid(ctx, g)
	c.metrics.IncEngineCall(c.engine.Name(), "is_valid", err == nil)
	if err != nil {
		return false, wrapEngineError(c.engine, "is_valid", err)
	}
	return valid, nil
}

func (c *Cleaner) reproject(ctx context.Context, g domain.Geometry, srid int) (domain.Geometry, error) {
	c.logger.Debug("reprojecting geometry", "from", g.SRID, "to", srid)

	out, err := c.engine.Reproject(ctx, g, srid)
	c.metrics.IncEngineCall(c.engine.Name(), "reproject", err == nil)
	if err != nil {
		return domain.Geometry{}, wrapEngineError(c.engine, "reproject", err)
	}
	return out, nil
}

func isPuntal(t domain.GeometryType) bool {
	return t == domain.TypePoint || t == domain.TypeMultiPoint
}

// wrapEngineError attaches the engine name and operation to err unless it
// already carries them.
func wrapEngineError(engine output.GeometryEngine, op string, err error) error {
	var engineErr *domain.EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	return &domain.EngineError{Engine: engine.Name(), Operation: op, Err: err}
}
