package application

import (
	"context"
	"testing"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

// albersOrigin maps the CONUS Albers origin to (0, 0).
func albersOrigin(p orb.Point, _, _ int) orb.Point {
	return orb.Point{p.X() + 96, p.Y() - 23}
}

func TestHealthServiceReady(t *testing.T) {
	engine := &mockEngine{
		validFn:   func(g domain.Geometry) bool { return !g.Shape.(orb.Polygon).Equal(probeBowtie) },
		repairFn:  func(g domain.Geometry) domain.Geometry { return g.WithShape(probeSquare) },
		projectFn: albersOrigin,
	}
	service := NewHealthService(engine)

	details := service.GetHealthDetails(context.Background())
	if !details.Ready {
		t.Errorf("Ready = false, components = %v", details.Components)
	}
	if details.Engine != "mock" {
		t.Errorf("Engine = %q, want %q", details.Engine, "mock")
	}
	for _, name := range []string{"is_valid", "repair", "azimuth", "reproject"} {
		if details.Components[name] != "ok" {
			t.Errorf("Components[%s] = %q, want ok", name, details.Components[name])
		}
	}
	if !service.IsReady(context.Background()) {
		t.Error("IsReady should return true")
	}
}

func TestHealthServiceNotReady(t *testing.T) {
	tests := []struct {
		name      string
		engine    *mockEngine
		component string
	}{
		{
			name:      "validity check fails",
			engine:    &mockEngine{validErr: domain.ErrEngineUnavailable, projectFn: albersOrigin},
			component: "is_valid",
		},
		{
			name: "repair leaves geometry invalid",
			engine: &mockEngine{
				validFn:   func(g domain.Geometry) bool { return !g.Shape.(orb.Polygon).Equal(probeBowtie) },
				projectFn: albersOrigin,
			},
			component: "repair",
		},
		{
			name:      "reprojection is identity",
			engine:    &mockEngine{},
			component: "reproject",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := NewHealthService(tt.engine).GetHealthDetails(context.Background())
			if details.Ready {
				t.Error("Ready should be false")
			}
			if details.Components[tt.component] == "ok" {
				t.Errorf("Components[%s] = ok, want a failure", tt.component)
			}
		})
	}
}
