package output

import "github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"

// Format names a geometry encoding.
type Format string

// Geometry formats.
const (
	FormatWKT     Format = "wkt"
	FormatEWKT    Format = "ewkt"
	FormatGeoJSON Format = "geojson"
	FormatWKB     Format = "wkb"
	FormatEWKB    Format = "ewkb"
)

// GeometryCodec defines the secondary port for geometry encodings.
type GeometryCodec interface {
	// Decode parses data. name is used to detect the format from its
	// extension; defaultSRID applies when the encoding carries no SRID.
	Decode(data []byte, name string, defaultSRID int) (domain.Geometry, error)

	// Encode writes g in the given format.
	Encode(g domain.Geometry, format Format) ([]byte, error)

	// DetectFormat returns the format of data, using name as a hint.
	DetectFormat(data []byte, name string) (Format, error)
}
