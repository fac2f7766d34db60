package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/input"
)

// StepName identifies a manipulator in a pipeline.
type StepName string

// Pipeline steps.
const (
	StepClean        StepName = "clean"
	StepEnsureClean  StepName = "ensure-clean"
	StepRemoveSpikes StepName = "remove-spikes"
	StepRHR          StepName = "rhr"
	StepLHR          StepName = "lhr"
	StepLargest      StepName = "largest"
)

var knownSteps = map[StepName]struct{}{
	StepClean:        {},
	StepEnsureClean:  {},
	StepRemoveSpikes: {},
	StepRHR:          {},
	StepLHR:          {},
	StepLargest:      {},
}

// ParseSteps parses a comma-separated manipulator chain such as
// "clean,remove-spikes,rhr". Names are case-insensitive and underscores are
// accepted in place of dashes.
func ParseSteps(chain string) ([]StepName, error) {
	var steps []StepName
	for _, part := range strings.Split(chain, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		step := StepName(strings.ReplaceAll(name, "_", "-"))
		if _, ok := knownSteps[step]; !ok {
			return nil, &domain.ValidationError{
				Field:      "steps",
				Value:      part,
				Constraint: "one of clean, ensure-clean, remove-spikes, rhr, lhr, largest",
				Message:    "unknown manipulator",
			}
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, &domain.ValidationError{
			Field:      "steps",
			Value:      chain,
			Constraint: "non-empty",
			Message:    "at least one manipulator is required",
		}
	}
	return steps, nil
}

// PipelineOptions holds per-pipeline parameters.
type PipelineOptions struct {
	TargetSRID     int     // SRID for ensure-clean
	SpikeThreshold float64 // degrees; zero or negative uses the toolkit default
}

// StepReport describes the geometry after one step.
type StepReport struct {
	Step     StepName      `json:"step" yaml:"step"`
	Type     string        `json:"type" yaml:"type"`
	Coords   int           `json:"coords" yaml:"coords"`
	SRID     int           `json:"srid" yaml:"srid"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// PipelineResult holds the output geometry and a report per step.
type PipelineResult struct {
	Geometry domain.Geometry `json:"-" yaml:"-"`
	Steps    []StepReport    `json:"steps" yaml:"steps"`
}

// Pipeline applies a chain of manipulators to geometries.
type Pipeline struct {
	toolkit input.Toolkit
	steps   []StepName
	opts    PipelineOptions
	logger  *slog.Logger
}

// NewPipeline creates a new pipeline.
func NewPipeline(toolkit input.Toolkit, steps []StepName, opts PipelineOptions, logger *slog.Logger) *Pipeline {
	if opts.TargetSRID <= 0 {
		opts.TargetSRID = domain.DefaultWorkingSRID
	}
	return &Pipeline{
		toolkit: toolkit,
		steps:   steps,
		opts:    opts,
		logger:  logger,
	}
}

// Steps returns the pipeline steps in order.
func (p *Pipeline) Steps() []StepName {
	return p.steps
}

// Run applies every step to g in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context, g domain.Geometry) (PipelineResult, error) {
	result := PipelineResult{Steps: make([]StepReport, 0, len(p.steps))}

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return PipelineResult{}, err
		}

		start := time.Now()
		next, err := p.apply(ctx, step, g)
		if err != nil {
			return PipelineResult{}, fmt.Errorf("step %s: %w", step, err)
		}
		g = next

		report := StepReport{
			Step:     step,
			Type:     string(g.Type()),
			Coords:   g.NumCoords(),
			SRID:     g.SRID,
			Duration: time.Since(start),
		}
		p.logger.Debug("pipeline step done", "step", step, "type", report.Type, "coords", report.Coords)
		result.Steps = append(result.Steps, report)
	}

	result.Geometry = g
	return result, nil
}

func (p *Pipeline) spikeThreshold() float64 {
	if p.opts.SpikeThreshold <= 0 {
		return input.ConfiguredThreshold
	}
	return p.opts.SpikeThreshold
}

func (p *Pipeline) apply(ctx context.Context, step StepName, g domain.Geometry) (domain.Geometry, error) {
	switch step {
	case StepClean:
		return p.toolkit.CleanGeometry(ctx, g)
	case StepEnsureClean:
		return p.toolkit.EnsureClean(ctx, g, p.opts.TargetSRID)
	case StepRemoveSpikes:
		return eachPolygon(g, string(step), func(poly orb.Polygon) (orb.Polygon, error) {
			return p.toolkit.RemoveSpikes(poly, p.spikeThreshold())
		})
	case StepRHR:
		return eachPolygon(g, string(step), p.toolkit.ForceRHR)
	case StepLHR:
		return eachPolygon(g, string(step), p.toolkit.ForceLHR)
	case StepLargest:
		return domain.Largest(g)
	}
	return domain.Geometry{}, fmt.Errorf("step %q: %w", step, domain.ErrUnsupported)
}

// eachPolygon applies fn to a polygon or to every member of a multipolygon.
func eachPolygon(g domain.Geometry, op string, fn func(orb.Polygon) (orb.Polygon, error)) (domain.Geometry, error) {
	switch s := g.Shape.(type) {
	case orb.Polygon:
		out, err := fn(s)
		if err != nil {
			return domain.Geometry{}, err
		}
		return g.WithShape(out), nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(s))
		for i, poly := range s {
			res, err := fn(poly)
			if err != nil {
				return domain.Geometry{}, fmt.Errorf("member %d: %w", i, err)
			}
			out[i] = res
		}
		return g.WithShape(out), nil
	}
	return domain.Geometry{}, &domain.GeometryError{
		Op:     op,
		Type:   string(g.Type()),
		Reason: "only polygons and multipolygons are supported",
	}
}
