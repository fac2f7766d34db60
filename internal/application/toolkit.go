// Package application contains the application services.
package application

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/input"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// SpikeMode selects how spike removal treats spikes that appear once other
// spikes are gone.
type SpikeMode string

const (
	// SpikeModeSingle removes the spikes found in one detection pass one at a
	// time, each index applied to the ring left by the earlier removals.
	SpikeModeSingle SpikeMode = "single"
	// SpikeModeExact removes exactly the vertices found in one detection pass.
	SpikeModeExact SpikeMode = "exact"
	// SpikeModeRepeated reruns detection until no spike remains.
	SpikeModeRepeated SpikeMode = "repeated"
)

// ToolkitConfig holds configuration for the toolkit.
type ToolkitConfig struct {
	WorkingSRID    int
	SpikeMode      SpikeMode
	SpikeMaxPasses int
	SpikeThreshold float64
}

// Toolkit implements input.Toolkit on top of the domain algorithms and the
// configured geometry engine.
type Toolkit struct {
	*Cleaner
	*Framer

	engine    output.GeometryEngine
	metrics   output.MetricsCollector
	logger    *slog.Logger
	spikeMode SpikeMode
	maxPasses int
	threshold float64
}

var _ input.Toolkit = (*Toolkit)(nil)

// NewToolkit creates a new toolkit.
func NewToolkit(
	engine output.GeometryEngine,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg ToolkitConfig,
) *Toolkit {
	if cfg.SpikeMode == "" {
		cfg.SpikeMode = SpikeModeSingle
	}
	if cfg.SpikeMaxPasses <= 0 {
		cfg.SpikeMaxPasses = 10
	}
	if cfg.SpikeThreshold <= 0 {
		cfg.SpikeThreshold = domain.DefaultSpikeThreshold
	}

	return &Toolkit{
		Cleaner:   NewCleaner(engine, metrics, logger),
		Framer:    NewFramer(engine, metrics, logger, cfg.WorkingSRID),
		engine:    engine,
		metrics:   metrics,
		logger:    logger,
		spikeMode: cfg.SpikeMode,
		maxPasses: cfg.SpikeMaxPasses,
		threshold: cfg.SpikeThreshold,
	}
}

// DefaultThreshold returns the configured spike threshold in degrees.
func (t *Toolkit) DefaultThreshold() float64 {
	return t.threshold
}

// LargestPolygon returns the member of multi with the largest area.
func (t *Toolkit) LargestPolygon(multi orb.MultiPolygon) (orb.Polygon, error) {
	p, err := domain.LargestPolygon(multi)
	t.metrics.IncOperation("largest_polygon", err == nil)
	return p, err
}

// LargestLine returns the member of multi with the greatest length.
func (t *Toolkit) LargestLine(multi orb.MultiLineString) (orb.LineString, error) {
	ls, err := domain.LargestLine(multi)
	t.metrics.IncOperation("largest_line", err == nil)
	return ls, err
}

// Angle returns |azimuth(p2,p1) - azimuth(p2,p3)| in radians, with both
// azimuths taken from the geometry engine. The result is not normalized.
func (t *Toolkit) Angle(ctx context.Context, p1, p2, p3 orb.Point) (float64, error) {
	a1, err := t.azimuth(ctx, p2, p1)
	if err != nil {
		t.metrics.IncOperation("angle", false)
		return 0, err
	}
	a2, err := t.azimuth(ctx, p2, p3)
	if err != nil {
		t.metrics.IncOperation("angle", false)
		return 0, err
	}
	t.metrics.IncOperation("angle", true)
	return math.Abs(a1 - a2), nil
}

// AngleDegrees returns Angle in degrees.
func (t *Toolkit) AngleDegrees(ctx context.Context, p1, p2, p3 orb.Point) (float64, error) {
	a, err := t.Angle(ctx, p1, p2, p3)
	if err != nil {
		return 0, err
	}
	return domain.RadiansToDegrees(a), nil
}

func (t *Toolkit) azimuth(ctx context.Context, from, to orb.Point) (float64, error) {
	if from.Equal(to) {
		return 0, &domain.GeometryError{Op: "azimuth", Type: string(domain.TypePoint), Reason: "points are coincident"}
	}
	az, err := t.engine.Azimuth(ctx, from, to)
	t.metrics.IncEngineCall(t.engine.Name(), "azimuth", err == nil)
	if err != nil {
		return 0, wrapEngineError(t.engine, "azimuth", err)
	}
	return az, nil
}

// SpikeIndices yields the indices of spike vertices in ring.
func (t *Toolkit) SpikeIndices(ring orb.Ring, thresholdDeg float64) iter.Seq[int] {
	return domain.SpikeIndices(ring, t.thresholdOr(thresholdDeg))
}

// RemoveSpikes removes spike vertices from the exterior ring of polygon using
// the configured spike mode.
func (t *Toolkit) RemoveSpikes(polygon orb.Polygon, thresholdDeg float64) (orb.Polygon, error) {
	start := time.Now()
	thr := t.thresholdOr(thresholdDeg)

	var (
		out    orb.Polygon
		passes = 1
		err    error
	)
	switch t.spikeMode {
	case SpikeModeRepeated:
		out, passes, err = domain.RemoveSpikesRepeated(polygon, thr, t.maxPasses)
	case SpikeModeSingle:
		out, err = domain.RemoveSpikes(polygon, thr)
	case SpikeModeExact:
		out, err = domain.RemoveSpikesExact(polygon, thr)
	default:
		err = fmt.Errorf("spike mode %q: %w", t.spikeMode, domain.ErrUnsupported)
	}

	t.metrics.IncOperation("remove_spikes", err == nil)
	t.metrics.ObserveOperationDuration("remove_spikes", time.Since(start))
	if err != nil {
		return nil, err
	}

	if removed := len(polygon[0]) - len(out[0]); removed > 0 {
		t.metrics.AddSpikesRemoved(removed)
		t.logger.Debug("removed spikes", "vertices", removed, "passes", passes, "threshold", thr)
	}
	return out, nil
}

// thresholdOr returns the configured threshold for a negative or NaN
// thresholdDeg. Zero is a real threshold that only flags zero angles and
// repeated vertices.
func (t *Toolkit) thresholdOr(thresholdDeg float64) float64 {
	if thresholdDeg < 0 || math.IsNaN(thresholdDeg) {
		return t.threshold
	}
	return thresholdDeg
}

// IsCCW reports the winding of ring.
func (t *Toolkit) IsCCW(ring orb.Ring) bool {
	return domain.IsCCW(ring)
}

// ForceRHR returns polygon with a clockwise exterior and counter-clockwise holes.
func (t *Toolkit) ForceRHR(polygon orb.Polygon) (orb.Polygon, error) {
	out, err := domain.ForceRHR(polygon)
	t.metrics.IncOperation("force_rhr", err == nil)
	return out, err
}

// ForceLHR returns polygon with a counter-clockwise exterior and clockwise holes.
func (t *Toolkit) ForceLHR(polygon orb.Polygon) (orb.Polygon, error) {
	out, err := domain.ForceLHR(polygon)
	t.metrics.IncOperation("force_lhr", err == nil)
	return out, err
}
