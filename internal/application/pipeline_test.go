package application

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

func TestParseSteps(t *testing.T) {
	tests := []struct {
		name    string
		chain   string
		want    []StepName
		wantErr bool
	}{
		{
			name:  "single step",
			chain: "clean",
			want:  []StepName{StepClean},
		},
		{
			name:  "chain with spaces and underscores",
			chain: " clean, Remove_Spikes ,rhr",
			want:  []StepName{StepClean, StepRemoveSpikes, StepRHR},
		},
		{
			name:  "empty entries skipped",
			chain: "largest,,lhr,",
			want:  []StepName{StepLargest, StepLHR},
		},
		{
			name:  "ensure clean",
			chain: "ensure-clean",
			want:  []StepName{StepEnsureClean},
		},
		{
			name:    "unknown step",
			chain:   "clean,simplify",
			wantErr: true,
		},
		{
			name:    "empty chain",
			chain:   " , ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSteps(tt.chain)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("ParseSteps error = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSteps failed: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseSteps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestPipeline(t *testing.T, chain string, engine *mockEngine) *Pipeline {
	t.Helper()
	steps, err := ParseSteps(chain)
	if err != nil {
		t.Fatalf("ParseSteps failed: %v", err)
	}
	toolkit, _ := newTestToolkit(engine, ToolkitConfig{})
	return NewPipeline(toolkit, steps, PipelineOptions{}, testLogger())
}

func TestPipelineRun(t *testing.T) {
	pipeline := newTestPipeline(t, "clean,remove-spikes,rhr", &mockEngine{})

	res, err := pipeline.Run(context.Background(), domain.NewGeometry(doubleNeedle(), domain.SRIDWGS84))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(res.Steps))
	}
	wantCoords := []int{9, 8, 8}
	for i, report := range res.Steps {
		if report.Coords != wantCoords[i] {
			t.Errorf("step %s coords = %d, want %d", report.Step, report.Coords, wantCoords[i])
		}
	}

	poly := res.Geometry.Shape.(orb.Polygon)
	if domain.IsCCW(poly[0]) {
		t.Error("exterior should be clockwise after rhr")
	}
}

func TestPipelineMultiPolygonMembers(t *testing.T) {
	pipeline := newTestPipeline(t, "lhr,largest", &mockEngine{})

	cw := square(0, 0, 1)
	cw[0].Reverse()
	in := domain.NewGeometry(orb.MultiPolygon{cw, square(5, 5, 2)}, domain.SRIDWGS84)

	res, err := pipeline.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Geometry.Shape.(orb.Polygon).Equal(square(5, 5, 2)) {
		t.Errorf("Run() = %v, want the larger square", res.Geometry.Shape)
	}
	if res.Steps[0].Type != string(domain.TypeMultiPolygon) || res.Steps[1].Type != string(domain.TypePolygon) {
		t.Errorf("step types = %s, %s", res.Steps[0].Type, res.Steps[1].Type)
	}
}

func TestPipelineEnsureCleanUsesTargetSRID(t *testing.T) {
	engine := &mockEngine{}
	toolkit, _ := newTestToolkit(engine, ToolkitConfig{})
	pipeline := NewPipeline(toolkit, []StepName{StepEnsureClean}, PipelineOptions{TargetSRID: domain.SRIDWebMercator}, testLogger())

	res, err := pipeline.Run(context.Background(), domain.NewGeometry(square(0, 0, 1), domain.SRIDWGS84))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if engine.reprojectCalls != 2 {
		t.Errorf("reprojectCalls = %d, want 2", engine.reprojectCalls)
	}
	if res.Geometry.SRID != domain.SRIDWGS84 {
		t.Errorf("SRID = %d, want %d", res.Geometry.SRID, domain.SRIDWGS84)
	}
}

func TestPipelineErrors(t *testing.T) {
	tests := []struct {
		name    string
		chain   string
		geom    domain.Geometry
		wantErr error
	}{
		{
			name:    "orientation on a line",
			chain:   "rhr",
			geom:    domain.NewGeometry(orb.LineString{{0, 0}, {1, 1}}, domain.SRIDWGS84),
			wantErr: domain.ErrInvalidGeometry,
		},
		{
			name:    "largest of a point",
			chain:   "clean,largest",
			geom:    domain.NewGeometry(orb.Point{1, 1}, domain.SRIDWGS84),
			wantErr: domain.ErrInvalidGeometry,
		},
		{
			name:    "spike removal on an open multipolygon member",
			chain:   "remove-spikes",
			geom:    domain.NewGeometry(orb.MultiPolygon{square(0, 0, 1), {{{0, 0}, {1, 0}, {1, 1}}}}, domain.SRIDWGS84),
			wantErr: domain.ErrInvalidGeometry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := newTestPipeline(t, tt.chain, &mockEngine{})
			if _, err := pipeline.Run(context.Background(), tt.geom); !errors.Is(err, tt.wantErr) {
				t.Errorf("Run error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPipelineCanceled(t *testing.T) {
	pipeline := newTestPipeline(t, "clean", &mockEngine{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pipeline.Run(ctx, domain.NewGeometry(square(0, 0, 1), domain.SRIDWGS84)); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}
