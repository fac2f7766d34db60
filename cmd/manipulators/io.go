package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/codec"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/app"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/application"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
)

// maxInputSize bounds the bytes read from --in or stdin.
const maxInputSize = 64 << 20

// Report formats. Geometry formats render reports as YAML.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// readGeometry decodes the geometry named by --in, or stdin for "-".
func readGeometry(cmd *cobra.Command, a *app.App) (domain.Geometry, error) {
	path, _ := cmd.Flags().GetString("in")

	var r io.Reader = cmd.InOrStdin()
	name := ""
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return domain.Geometry{}, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
		name = path
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInputSize))
	if err != nil {
		return domain.Geometry{}, fmt.Errorf("reading input: %w", err)
	}

	g, err := a.Codec.Decode(data, name, a.Config.Geometry.InputSRID)
	if err != nil {
		return domain.Geometry{}, err
	}
	a.Logger.Debug("geometry read", "geometry", g.String())
	return g, nil
}

// geometryDoc is the json and yaml rendering of a geometry result.
type geometryDoc struct {
	Type     string                   `json:"type" yaml:"type"`
	SRID     int                      `json:"srid" yaml:"srid"`
	Coords   int                      `json:"coords" yaml:"coords"`
	Geometry string                   `json:"geometry" yaml:"geometry"` // WKT
	Steps    []application.StepReport `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// writeGeometry writes g in the configured output format. The report formats
// wrap the WKT with its type, SRID and pipeline steps.
func writeGeometry(w io.Writer, a *app.App, g domain.Geometry, steps []application.StepReport) error {
	format := a.Config.Output.Format
	if format == formatJSON || format == formatYAML {
		wkt, err := a.Codec.Encode(g, "wkt")
		if err != nil {
			return err
		}
		return writeReport(w, format, geometryDoc{
			Type:     string(g.Type()),
			SRID:     g.SRID,
			Coords:   g.NumCoords(),
			Geometry: string(wkt),
			Steps:    steps,
		})
	}

	f, err := codec.ParseFormat(format)
	if err != nil {
		return err
	}
	data, err := a.Codec.Encode(g, f)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeReport renders v as JSON when format is json and as YAML otherwise.
func writeReport(w io.Writer, format string, v any) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
