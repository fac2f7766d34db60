package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/codec"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/app"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/application"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/config"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/input"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

func addCommands(root *cobra.Command) {
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Validate a geometry and repair self-intersections",
		Args:  cobra.NoArgs,
		RunE:  withApp(runClean),
	}

	ensureCleanCmd := &cobra.Command{
		Use:   "ensure-clean",
		Short: "Clean a geometry in a target SRID and again in its own SRID",
		Args:  cobra.NoArgs,
		RunE:  withApp(runEnsureClean),
	}
	ensureCleanCmd.Flags().Int("target-srid", 0, "SRID to clean in (default: geometry.working_srid)")

	spikesCmd := &cobra.Command{
		Use:   "spikes",
		Short: "Report spike vertices of polygon exteriors",
		Args:  cobra.NoArgs,
		RunE:  withConfig(thresholdFlag, runSpikes),
	}
	spikesCmd.Flags().Float64("threshold", domain.DefaultSpikeThreshold, "spike angle threshold in degrees")

	removeSpikesCmd := &cobra.Command{
		Use:   "remove-spikes",
		Short: "Remove spike vertices from polygon exteriors",
		Args:  cobra.NoArgs,
		RunE:  withConfig(thresholdFlag, runRemoveSpikes),
	}
	removeSpikesCmd.Flags().Float64("threshold", domain.DefaultSpikeThreshold, "spike angle threshold in degrees")

	orientCmd := &cobra.Command{
		Use:   "orient",
		Short: "Force the winding order of polygon rings",
		Args:  cobra.NoArgs,
		RunE:  withApp(runOrient),
	}
	orientCmd.Flags().String("rule", "rhr", "winding rule (rhr, lhr)")

	isCCWCmd := &cobra.Command{
		Use:   "is-ccw",
		Short: "Report the winding of every polygon ring",
		Args:  cobra.NoArgs,
		RunE:  withApp(runIsCCW),
	}

	largestCmd := &cobra.Command{
		Use:   "largest",
		Short: "Reduce a multi-geometry to its largest member",
		Args:  cobra.NoArgs,
		RunE:  withApp(runLargest),
	}

	angleCmd := &cobra.Command{
		Use:   "angle",
		Short: "Compute the angle at the middle of three points",
		Args:  cobra.NoArgs,
		RunE:  withApp(runAngle),
	}
	angleCmd.Flags().String("points", "", `three points as "x1 y1,x2 y2,x3 y3"`)
	angleCmd.Flags().Bool("degrees", false, "report degrees instead of radians")
	_ = angleCmd.MarkFlagRequired("points")

	lookAtCmd := &cobra.Command{
		Use:   "lookat",
		Short: "Compute 3D viewer camera parameters framing a geometry",
		Args:  cobra.NoArgs,
		RunE:  withApp(runLookAt),
	}

	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Apply a chain of manipulators to a geometry",
		Long: `Apply a comma-separated chain of manipulators in order.

Steps: clean, ensure-clean, remove-spikes, rhr, lhr, largest`,
		Args: cobra.NoArgs,
		RunE: withApp(runPipeline),
	}
	pipelineCmd.Flags().String("steps", "clean", "comma-separated manipulator chain")
	pipelineCmd.Flags().Int("target-srid", 0, "SRID for ensure-clean (default: geometry.working_srid)")

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply a manipulator chain to every geometry file of the source",
		Args:  cobra.NoArgs,
		RunE:  withConfig(batchFlags, runBatch),
	}
	addBatchFlags(batchCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply a manipulator chain to geometry files as they change",
		Long: `Watch a directory and clean geometry files when they are created or
modified. Remote sources are polled every watch.poll_interval instead.`,
		Args: cobra.NoArgs,
		RunE: withConfig(batchFlags, runWatch),
	}
	addBatchFlags(watchCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the configured geometry engine",
		Args:  cobra.NoArgs,
		RunE:  withApp(runCheck),
	}

	root.AddCommand(
		cleanCmd, ensureCleanCmd, spikesCmd, removeSpikesCmd, orientCmd, isCCWCmd,
		largestCmd, angleCmd, lookAtCmd, pipelineCmd, batchCmd, watchCmd, checkCmd,
	)
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("steps", "clean", "comma-separated manipulator chain")
	cmd.Flags().Int("target-srid", 0, "SRID for ensure-clean (default: geometry.working_srid)")
	cmd.Flags().String("dir", "", "local directory to read (overrides source.type and source.local_path)")
	cmd.Flags().String("out", "", "output directory (default: watch.output_dir)")
	cmd.Flags().String("format", "", "output geometry format (default: the input format)")
}

// thresholdFlag makes --threshold the toolkit default when given.
func thresholdFlag(cmd *cobra.Command, cfg *config.Config) error {
	if !cmd.Flags().Changed("threshold") {
		return nil
	}
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	if threshold <= 0 {
		return &domain.ConfigError{Field: "threshold", Message: "must be positive"}
	}
	cfg.Spikes.Threshold = threshold
	return nil
}

// batchFlags applies --dir and --out.
func batchFlags(cmd *cobra.Command, cfg *config.Config) error {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Source.Type = "local"
		cfg.Source.LocalPath = dir
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.Watch.OutputDir = out
	}
	return nil
}

func runClean(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	g, err := readGeometry(cmd, a)
	if err != nil {
		return err
	}

	ctx, cancel := a.WithTimeout(ctx)
	defer cancel()

	cleaned, err := a.Toolkit.CleanGeometry(ctx, g)
	if err != nil {
		return err
	}
	return writeGeometry(cmd.OutOrStdout(), a, cleaned, nil)
}

func runEnsureClean(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	g, err := readGeometry(cmd, a)
	if err != nil {
		return err
	}

	ctx, cancel := a.WithTimeout(ctx)
	defer cancel()

	cleaned, err := a.Toolkit.EnsureClean(ctx, g, targetSRID(cmd, a))
	if err != nil {
		return err
	}
	return writeGeometry(cmd.OutOrStdout(), a, cleaned, nil)
}

// spikeReport locates one spike vertex.
type spikeReport struct {
	Member int     `json:"member" yaml:"member"`
	Index  int     `json:"index" yaml:"index"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
}

func runSpikes(_ context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	g, err := readGeometry(cmd, a)
	if err != nil {
		return err
	}

	polygons, err := polygonsOf(g, "spikes")
	if err != nil {
		return err
	}

	spikes := []spikeReport{}
	for member, poly := range polygons {
		if len(poly) == 0 {
			continue
		}
		ring := poly[0]
		for i := range a.Toolkit.SpikeIndices(ring, input.ConfiguredThreshold) {
			spikes = append(spikes, spikeReport{Member: member, Index: i, X: ring[i][0], Y: ring[i][1]})
		}
	}

	return writeReport(cmd.OutOrStdout(), a.Config.Output.Format, map[string]any{
		"threshold": a.Toolkit.DefaultThreshold(),
		"spikes":    spikes,
	})
}

func runRemoveSpikes(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	return runSteps(ctx, a, cmd, []application.StepName{application.StepRemoveSpikes})
}

func runOrient(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	rule, _ := cmd.Flags().GetString("rule")
	switch step := application.StepName(strings.ToLower(rule)); step {
	case application.StepRHR, application.StepLHR:
		return runSteps(ctx, a, cmd, []application.StepName{step})
	default:
		return &domain.ConfigError{Field: "rule", Message: fmt.Sprintf("unknown winding rule %q", rule)}
	}
}

// ringsReport holds the winding of each ring of one polygon.
type ringsReport struct {
	ExteriorCCW bool   `json:"exterior_ccw" yaml:"exterior_ccw"`
	HolesCCW    []bool `json:"holes_ccw,omitempty" yaml:"holes_ccw,omitempty"`
}

func runIsCCW(_ context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	g, err := readGeometry(cmd, a)
	if err != nil {
		return err
	}

	polygons, err := polygonsOf(g, "is_ccw")
	if err != nil {
		return err
	}

	reports := make([]ringsReport, 0, len(polygons))
	for _, poly := range polygons {
		if err := domain.ValidatePolygon(poly, "is_ccw"); err != nil {
			return err
		}
		r := ringsReport{ExteriorCCW: a.Toolkit.IsCCW(poly[0])}
		for _, hole := range poly[1:] {
			r.HolesCCW = append(r.HolesCCW, a.Toolkit.IsCCW(hole))
		}
		reports = append(reports, r)
	}
	return writeReport(cmd.OutOrStdout(), a.Config.Output.Format, reports)
}

func runLargest(_ context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	g, err := readGeometry(cmd, a)
	if err != nil {
		return err
	}

	var out domain.Geometry
	switch s := g.Shape.(type) {
	case orb.MultiPolygon:
		poly, err := a.Toolkit.LargestPolygon(s)
		if err != nil {
			return err
		}
		out = g.WithShape(poly)
	case orb.MultiLineString:
		line, err := a.Toolkit.LargestLine(s)
		if err != nil {
			return err
		}
		out = g.WithShape(line)
	default:
		if out, err = domain.Largest(g); err != nil {
			return err
		}
	}
	return writeGeometry(cmd.OutOrStdout(), a, out, nil)
}

// angleReport is the result of the angle command.
type angleReport struct {
	Angle float64 `json:"angle" yaml:"angle"`
	Unit  string  `json:"unit" yaml:"unit"`
}

func runAngle(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("points")
	points, err := parsePoints(raw)
	if err != nil {
		return err
	}
	if len(points) != 3 {
		return &domain.ValidationError{Field: "points", Value: raw, Constraint: "3 points", Message: fmt.Sprintf("got %d points", len(points))}
	}

	ctx, cancel := a.WithTimeout(ctx)
	defer cancel()

	report := angleReport{Unit: "radians"}
	if degrees, _ := cmd.Flags().GetBool("degrees"); degrees {
		report.Unit = "degrees"
		report.Angle, err = a.Toolkit.AngleDegrees(ctx, points[0], points[1], points[2])
	} else {
		report.Angle, err = a.Toolkit.Angle(ctx, points[0], points[1], points[2])
	}
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), a.Config.Output.Format, report)
}

// lookAtReport is a look-at with the SRID its range was measured in.
type lookAtReport struct {
	domain.LookAt `yaml:",inline"`
	WorkingSRID   int `json:"working_srid" yaml:"working_srid"`
}

func runLookAt(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	g, err := readGeometry(cmd, a)
	if err != nil {
		return err
	}

	ctx, cancel := a.WithTimeout(ctx)
	defer cancel()

	lookAt, err := a.Toolkit.ComputeLookAt(ctx, g)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), a.Config.Output.Format, lookAtReport{
		LookAt:      lookAt,
		WorkingSRID: a.Toolkit.WorkingSRID(),
	})
}

func runPipeline(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	chain, _ := cmd.Flags().GetString("steps")
	steps, err := application.ParseSteps(chain)
	if err != nil {
		return err
	}
	return runSteps(ctx, a, cmd, steps)
}

// runSteps runs steps over the input geometry and writes the result.
func runSteps(ctx context.Context, a *app.App, cmd *cobra.Command, steps []application.StepName) error {
	g, err := readGeometry(cmd, a)
	if err != nil {
		return err
	}

	pipeline := application.NewPipeline(a.Toolkit, steps, application.PipelineOptions{
		TargetSRID: targetSRID(cmd, a),
	}, a.Logger)

	ctx, cancel := a.WithTimeout(ctx)
	defer cancel()

	res, err := pipeline.Run(ctx, g)
	if err != nil {
		return err
	}
	return writeGeometry(cmd.OutOrStdout(), a, res.Geometry, res.Steps)
}

func runBatch(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	batch, err := newBatch(ctx, a, cmd)
	if err != nil {
		return err
	}

	res, err := batch.Run(ctx)
	if err != nil {
		return err
	}
	if err := writeReport(cmd.OutOrStdout(), a.Config.Output.Format, res); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", res.Failed, res.Processed+res.Failed)
	}
	return nil
}

func runWatch(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	batch, err := newBatch(ctx, a, cmd)
	if err != nil {
		return err
	}
	return a.Watch(ctx, batch)
}

func newBatch(ctx context.Context, a *app.App, cmd *cobra.Command) (*application.BatchProcessor, error) {
	chain, _ := cmd.Flags().GetString("steps")
	pipeline, err := a.NewPipeline(chain, targetSRID(cmd, a))
	if err != nil {
		return nil, err
	}

	var format output.Format
	if name, _ := cmd.Flags().GetString("format"); name != "" {
		if format, err = codec.ParseFormat(name); err != nil {
			return nil, err
		}
	}

	return a.NewBatch(ctx, pipeline, a.Config.Watch.OutputDir, format)
}

func runCheck(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	ctx, cancel := a.WithTimeout(ctx)
	defer cancel()

	details := a.HealthService.GetHealthDetails(ctx)
	if err := writeReport(cmd.OutOrStdout(), a.Config.Output.Format, details); err != nil {
		return err
	}
	if !details.Ready {
		return fmt.Errorf("engine %s is not ready: %w", details.Engine, domain.ErrEngineUnavailable)
	}
	return nil
}

func targetSRID(cmd *cobra.Command, a *app.App) int {
	if srid, _ := cmd.Flags().GetInt("target-srid"); srid > 0 {
		return srid
	}
	return a.Config.Geometry.WorkingSRID
}

// polygonsOf returns the polygons of a polygon or multipolygon.
func polygonsOf(g domain.Geometry, op string) ([]orb.Polygon, error) {
	switch s := g.Shape.(type) {
	case orb.Polygon:
		return []orb.Polygon{s}, nil
	case orb.MultiPolygon:
		return []orb.Polygon(s), nil
	}
	return nil, &domain.GeometryError{
		Op:     op,
		Type:   string(g.Type()),
		Reason: "only polygons and multipolygons are supported",
	}
}

// parsePoints parses "x1 y1,x2 y2,...".
func parsePoints(s string) ([]orb.Point, error) {
	var points []orb.Point
	for _, pair := range strings.Split(s, ",") {
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			return nil, &domain.ValidationError{Field: "points", Value: strings.TrimSpace(pair), Constraint: "x y", Message: "not a coordinate pair"}
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, &domain.ValidationError{Field: "points", Value: pair, Constraint: "number", Message: err.Error()}
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, &domain.ValidationError{Field: "points", Value: pair, Constraint: "number", Message: err.Error()}
		}
		points = append(points, orb.Point{x, y})
	}
	return points, nil
}
