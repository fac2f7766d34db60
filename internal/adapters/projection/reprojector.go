// Package projection reprojects geometries with a pure-Go PROJ.4
// implementation, so no native PROJ library is needed at runtime.
package projection

import (
	"fmt"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

type pair struct {
	from, to int
}

// Reprojector implements output.Reprojector using ctessum/geom/proj.
type Reprojector struct {
	registry *domain.ProjectionRegistry

	mu         sync.RWMutex
	transforms map[pair]proj.Transformer
}

var _ output.Reprojector = (*Reprojector)(nil)

// NewReprojector creates a reprojector that resolves SRIDs through registry.
// A nil registry uses the built-in projections only.
func NewReprojector(registry *domain.ProjectionRegistry) *Reprojector {
	return &Reprojector{
		registry:   registry,
		transforms: make(map[pair]proj.Transformer),
	}
}

// Reproject returns a copy of g in targetSRID. The input is never modified.
func (r *Reprojector) Reproject(g domain.Geometry, targetSRID int) (domain.Geometry, error) {
	if g.Shape == nil {
		return domain.Geometry{}, &domain.GeometryError{Op: "reproject", Reason: "geometry is nil"}
	}
	if g.SRID == targetSRID {
		return g.Clone(), nil
	}

	transform, err := r.transform(g.SRID, targetSRID)
	if err != nil {
		return domain.Geometry{}, err
	}

	var firstErr error
	shape := project.Geometry(orb.Clone(g.Shape), func(p orb.Point) orb.Point {
		if firstErr != nil {
			return p
		}
		x, y, err := transform(p[0], p[1])
		if err != nil {
			firstErr = err
			return p
		}
		return orb.Point{x, y}
	})
	if firstErr != nil {
		return domain.Geometry{}, fmt.Errorf("EPSG:%d to EPSG:%d: %w", g.SRID, targetSRID, firstErr)
	}

	return domain.NewGeometry(shape, targetSRID), nil
}

// IsSupported checks if a transformation is supported.
func (r *Reprojector) IsSupported(sourceSRID, targetSRID int) bool {
	_, err := r.transform(sourceSRID, targetSRID)
	return err == nil
}

// transform resolves the transformation from one SRID to another. Every
// transformation is chained through WGS 84 so that each step converts at most
// one side away from the WGS 84 datum.
func (r *Reprojector) transform(from, to int) (proj.Transformer, error) {
	key := pair{from, to}

	r.mu.RLock()
	t, ok := r.transforms[key]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	src, err := r.parse(from)
	if err != nil {
		return nil, err
	}
	dst, err := r.parse(to)
	if err != nil {
		return nil, err
	}

	switch {
	case from == domain.SRIDWGS84 || to == domain.SRIDWGS84:
		t, err = src.NewTransform(dst)
	default:
		t, err = r.viaWGS84(src, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("EPSG:%d to EPSG:%d: %v: %w", from, to, err, domain.ErrUnsupportedProjection)
	}

	r.mu.Lock()
	r.transforms[key] = t
	r.mu.Unlock()
	return t, nil
}

func (r *Reprojector) viaWGS84(src, dst *proj.SR) (proj.Transformer, error) {
	wgs84, err := r.parse(domain.SRIDWGS84)
	if err != nil {
		return nil, err
	}
	inverse, err := src.NewTransform(wgs84)
	if err != nil {
		return nil, err
	}
	forward, err := wgs84.NewTransform(dst)
	if err != nil {
		return nil, err
	}
	return func(x, y float64) (float64, float64, error) {
		lon, lat, err := inverse(x, y)
		if err != nil {
			return 0, 0, err
		}
		return forward(lon, lat)
	}, nil
}

func (r *Reprojector) parse(srid int) (*proj.SR, error) {
	p, err := r.registry.Lookup(srid)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(p.Proj4)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", p.Name, err, domain.ErrUnsupportedProjection)
	}
	return sr, nil
}
