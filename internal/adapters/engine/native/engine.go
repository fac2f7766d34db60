// Package native implements the geometry engine in-process with GEOS.
package native

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Name identifies the engine in logs and errors.
const Name = "native"

// Engine implements output.GeometryEngine with go-geos and a pure-Go reprojector.
type Engine struct {
	reprojector output.Reprojector
	logger      *slog.Logger
}

var _ output.GeometryEngine = (*Engine)(nil)

// New creates a new native engine.
func New(reprojector output.Reprojector, logger *slog.Logger) *Engine {
	return &Engine{
		reprojector: reprojector,
		logger:      logger,
	}
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return Name
}

// IsValid reports whether g is valid. Geometries GEOS refuses to build, such
// as unclosed rings, are reported as invalid.
func (e *Engine) IsValid(ctx context.Context, g domain.Geometry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var valid bool
	err := e.guard("is_valid", func() error {
		gg, err := toGEOS(g)
		if err != nil {
			e.logger.Debug("geometry rejected by GEOS", "type", g.Type(), "error", err)
			return nil
		}
		defer gg.Destroy()

		valid = gg.IsValid()
		if !valid {
			e.logger.Debug("invalid geometry", "type", g.Type(), "reason", gg.IsValidReason())
		}
		return nil
	})
	return valid, err
}

// RepairSelfIntersections nodes the linework of g and rebuilds it. Polygonal
// input is rebuilt from its noded boundary with BuildArea; lineal input is
// noded at every self-intersection. MakeValid is the fallback when the
// rebuilt area is empty.
func (e *Engine) RepairSelfIntersections(ctx context.Context, g domain.Geometry) (domain.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return domain.Geometry{}, err
	}

	var out domain.Geometry
	err := e.guard("repair", func() error {
		gg, err := toGEOS(g)
		if err != nil {
			return err
		}
		defer gg.Destroy()

		var repaired *geos.Geom
		switch {
		case g.Type().IsPolygonal():
			repaired = buildArea(gg)
			if repaired.IsEmpty() {
				repaired.Destroy()
				e.logger.Debug("build area empty, falling back to make valid", "type", g.Type())
				repaired = gg.MakeValid()
			}
		case g.Type().IsLineal():
			repaired = gg.UnaryUnion()
		default:
			return &domain.GeometryError{Op: "repair", Type: string(g.Type()), Reason: "only polygonal and lineal geometries can be repaired"}
		}
		defer repaired.Destroy()

		out, err = fromGEOS(repaired, g.SRID)
		return err
	})
	return out, err
}

func buildArea(g *geos.Geom) *geos.Geom {
	boundary := g.Boundary()
	defer boundary.Destroy()

	noded := boundary.UnaryUnion()
	defer noded.Destroy()

	return noded.BuildArea()
}

// Reproject returns a copy of g in targetSRID.
func (e *Engine) Reproject(ctx context.Context, g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return domain.Geometry{}, err
	}
	return e.reprojector.Reproject(g, targetSRID)
}

// Azimuth returns the bearing from p1 to p2.
func (e *Engine) Azimuth(ctx context.Context, p1, p2 orb.Point) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return domain.Azimuth(p1, p2)
}

// Close is a no-op; GEOS geometries are released as they are used.
func (e *Engine) Close() error {
	return nil
}

// guard converts GEOS panics into engine errors.
func (e *Engine) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("GEOS panic", "operation", op, "panic", r)
			err = &domain.EngineError{Engine: Name, Operation: op, Err: fmt.Errorf("%v", r)}
		}
	}()
	return fn()
}

func toGEOS(g domain.Geometry) (*geos.Geom, error) {
	if g.Shape == nil {
		return nil, &domain.GeometryError{Op: "encode", Reason: "geometry is nil"}
	}
	data, err := wkb.Marshal(g.Shape)
	if err != nil {
		return nil, &domain.GeometryError{Op: "encode", Type: string(g.Type()), Reason: err.Error()}
	}
	return geos.NewGeomFromWKB(data)
}

func fromGEOS(g *geos.Geom, srid int) (domain.Geometry, error) {
	shape, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return domain.Geometry{}, fmt.Errorf("decoding GEOS result: %w", err)
	}
	return domain.NewGeometry(shape, srid), nil
}
