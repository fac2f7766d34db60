package application

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

// degreesToMeters stands in for an equal-area projection in tests.
func degreesToMeters(p orb.Point, from, to int) orb.Point {
	switch {
	case from == domain.SRIDWGS84 && to != domain.SRIDWGS84:
		return orb.Point{p.X() * 100000, p.Y() * 100000}
	case to == domain.SRIDWGS84 && from != domain.SRIDWGS84:
		return orb.Point{p.X() / 100000, p.Y() / 100000}
	}
	return p
}

func TestFramingRange(t *testing.T) {
	alpha := domain.DegreesToRadians(45.0/1.4 - 2.0)

	tests := []struct {
		name   string
		extent domain.Extent
		span   float64
	}{
		{"square", domain.Extent{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}, 1000},
		{"wide", domain.Extent{MinX: 0, MinY: 0, MaxX: 5000, MaxY: 10}, 5000},
		{"tall", domain.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 5000}, 5000},
		{"horizontal line", domain.Extent{MinX: -200, MinY: 3, MaxX: 200, MaxY: 3}, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FramingRange(tt.extent)

			// small spans: sin(alpha+d)/sin(alpha) - 1 ≈ d/tan(alpha)
			want := 1.5 * (tt.span / 2) / math.Tan(alpha)
			if math.Abs(got-want)/want > 1e-3 {
				t.Errorf("FramingRange() = %v, want ≈ %v", got, want)
			}
		})
	}
}

func TestFramingRangeGrowsWithExtent(t *testing.T) {
	small := FramingRange(domain.Extent{MaxX: 1000, MaxY: 1000})
	large := FramingRange(domain.Extent{MaxX: 100000, MaxY: 100000})
	if !(large > small && small > 0) {
		t.Errorf("FramingRange small = %v, large = %v", small, large)
	}

	wide := FramingRange(domain.Extent{MaxX: 3000, MaxY: 20})
	tall := FramingRange(domain.Extent{MaxX: 20, MaxY: 3000})
	if math.Abs(wide-tall) > 1e-9 {
		t.Errorf("wide = %v, tall = %v, want equal", wide, tall)
	}
}

func TestComputeLookAt(t *testing.T) {
	engine := &mockEngine{projectFn: degreesToMeters}
	framer := NewFramer(engine, newMockMetrics(), testLogger(), domain.SRIDConusAlbers)

	footprint := square(-77, 38, 1)
	in := domain.NewGeometry(footprint, domain.SRIDWGS84)

	got, err := framer.ComputeLookAt(context.Background(), in)
	if err != nil {
		t.Fatalf("ComputeLookAt failed: %v", err)
	}

	if !almostEqual(got.Latitude, 38.5) || !almostEqual(got.Longitude, -76.5) {
		t.Errorf("centre = (%v, %v), want (38.5, -76.5)", got.Latitude, got.Longitude)
	}
	wantRange := FramingRange(domain.Extent{MinX: -7700000, MinY: 3800000, MaxX: -7600000, MaxY: 3900000})
	if math.Abs(got.Range-wantRange) > 1e-6 {
		t.Errorf("Range = %v, want %v", got.Range, wantRange)
	}
	if got.Tilt != 0 || got.Heading != 0 {
		t.Errorf("Tilt/Heading = %v/%v, want 0/0", got.Tilt, got.Heading)
	}
	if engine.reprojectCalls != 1 {
		t.Errorf("reprojectCalls = %d, want 1", engine.reprojectCalls)
	}
	if !in.Shape.(orb.Polygon).Equal(square(-77, 38, 1)) {
		t.Error("ComputeLookAt should not modify its input")
	}
}

func TestComputeLookAtProjectedInput(t *testing.T) {
	engine := &mockEngine{projectFn: degreesToMeters}
	framer := NewFramer(engine, newMockMetrics(), testLogger(), domain.SRIDConusAlbers)

	in := domain.NewGeometry(orb.LineString{{-7700000, 3800000}, {-7600000, 3800000}}, domain.SRIDConusAlbers)
	got, err := framer.ComputeLookAt(context.Background(), in)
	if err != nil {
		t.Fatalf("ComputeLookAt failed: %v", err)
	}

	if !almostEqual(got.Latitude, 38) || !almostEqual(got.Longitude, -76.5) {
		t.Errorf("centre = (%v, %v), want (38, -76.5)", got.Latitude, got.Longitude)
	}
	if engine.reprojectCalls != 1 {
		t.Errorf("reprojectCalls = %d, want 1", engine.reprojectCalls)
	}
}

func TestComputeLookAtInvalid(t *testing.T) {
	tests := []struct {
		name    string
		geom    domain.Geometry
		engine  *mockEngine
		wantErr error
	}{
		{
			name:    "point has zero size extent",
			geom:    domain.NewGeometry(orb.Point{-76, 38}, domain.SRIDWGS84),
			engine:  &mockEngine{projectFn: degreesToMeters},
			wantErr: domain.ErrInvalidGeometry,
		},
		{
			name:    "empty polygon",
			geom:    domain.NewGeometry(orb.Polygon{}, domain.SRIDWGS84),
			engine:  &mockEngine{},
			wantErr: domain.ErrInvalidGeometry,
		},
		{
			name:    "reprojection fails",
			geom:    domain.NewGeometry(square(0, 0, 1), domain.SRIDWGS84),
			engine:  &mockEngine{reprojectErr: domain.ErrUnsupportedProjection},
			wantErr: domain.ErrUnsupportedProjection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framer := NewFramer(tt.engine, newMockMetrics(), testLogger(), domain.SRIDConusAlbers)
			if _, err := framer.ComputeLookAt(context.Background(), tt.geom); !errors.Is(err, tt.wantErr) {
				t.Errorf("ComputeLookAt error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewFramerDefaultsWorkingSRID(t *testing.T) {
	framer := NewFramer(&mockEngine{}, newMockMetrics(), testLogger(), 0)
	if framer.WorkingSRID() != domain.DefaultWorkingSRID {
		t.Errorf("WorkingSRID() = %d, want %d", framer.WorkingSRID(), domain.DefaultWorkingSRID)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
