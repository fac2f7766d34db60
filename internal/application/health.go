package application

import (
	"context"
	"math"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/input"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Probe geometries in EPSG:4326.
var (
	probeSquare = orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	probeBowtie = orb.Polygon{{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}}
)

// HealthService probes the geometry engine.
type HealthService struct {
	engine output.GeometryEngine
}

// NewHealthService creates a new health service.
func NewHealthService(engine output.GeometryEngine) *HealthService {
	return &HealthService{
		engine: engine,
	}
}

// IsReady returns true if every engine probe passes.
func (s *HealthService) IsReady(ctx context.Context) bool {
	return s.GetHealthDetails(ctx).Ready
}

// GetHealthDetails runs the engine probes and reports each result.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"is_valid":  s.probeValid(ctx),
		"repair":    s.probeRepair(ctx),
		"azimuth":   s.probeAzimuth(ctx),
		"reproject": s.probeReproject(ctx),
	}

	ready := true
	for _, status := range components {
		if status != "ok" {
			ready = false
		}
	}

	return input.HealthDetails{
		Ready:      ready,
		Engine:     s.engine.Name(),
		Components: components,
	}
}

func (s *HealthService) probeValid(ctx context.Context) string {
	valid, err := s.engine.IsValid(ctx, domain.NewGeometry(probeSquare, domain.SRIDWGS84))
	switch {
	case err != nil:
		return err.Error()
	case !valid:
		return "valid square reported invalid"
	}
	return "ok"
}

func (s *HealthService) probeRepair(ctx context.Context) string {
	g, err := s.engine.RepairSelfIntersections(ctx, domain.NewGeometry(probeBowtie, domain.SRIDWGS84))
	if err != nil {
		return err.Error()
	}
	valid, err := s.engine.IsValid(ctx, g)
	switch {
	case err != nil:
		return err.Error()
	case !valid:
		return "repaired bowtie is invalid"
	}
	return "ok"
}

func (s *HealthService) probeAzimuth(ctx context.Context) string {
	az, err := s.engine.Azimuth(ctx, orb.Point{0, 0}, orb.Point{1, 0})
	if err != nil {
		return err.Error()
	}
	if math.Abs(az-math.Pi/2) > 1e-9 {
		return "azimuth east is not π/2"
	}
	return "ok"
}

func (s *HealthService) probeReproject(ctx context.Context) string {
	g, err := s.engine.Reproject(ctx, domain.NewGeometry(orb.Point{-96, 23}, domain.SRIDWGS84), domain.SRIDConusAlbers)
	if err != nil {
		return err.Error()
	}
	p, ok := g.Shape.(orb.Point)
	if !ok || math.Abs(p.X()) > 1 || math.Abs(p.Y()) > 1 {
		return "projection origin did not map to (0, 0)"
	}
	return "ok"
}
