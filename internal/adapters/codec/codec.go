// Package codec reads and writes geometries as WKT, EWKT, GeoJSON and
// hex-encoded WKB/EWKB.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// ewkbSRIDFlag marks an EWKB geometry type that is followed by an SRID.
const ewkbSRIDFlag = 0x20000000

var (
	ewktPrefix = regexp.MustCompile(`(?i)^SRID=(\d+);`)
	epsgName   = regexp.MustCompile(`EPSG:{1,2}(\d+)$`)
)

var extensionFormats = map[string]output.Format{
	".wkt":     output.FormatWKT,
	".ewkt":    output.FormatEWKT,
	".geojson": output.FormatGeoJSON,
	".json":    output.FormatGeoJSON,
	".wkb":     output.FormatWKB,
	".hex":     output.FormatWKB,
	".ewkb":    output.FormatEWKB,
}

// Codec implements output.GeometryCodec.
type Codec struct{}

var _ output.GeometryCodec = Codec{}

// New creates a new codec.
func New() Codec {
	return Codec{}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (output.Format, error) {
	f := output.Format(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case output.FormatWKT, output.FormatEWKT, output.FormatGeoJSON, output.FormatWKB, output.FormatEWKB:
		return f, nil
	}
	return "", fmt.Errorf("%q: %w", name, domain.ErrUnsupportedFormat)
}

// DetectFormat inspects data and falls back to the extension of name.
func (Codec) DetectFormat(data []byte, name string) (output.Format, error) {
	trimmed := bytes.TrimSpace(data)

	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '{':
		return output.FormatGeoJSON, nil
	case ewktPrefix.Match(trimmed):
		return output.FormatEWKT, nil
	case isHex(trimmed):
		raw, err := hex.DecodeString(string(trimmed))
		if err == nil {
			return binaryFormat(raw), nil
		}
	case trimmed[0] == 0x00 || trimmed[0] == 0x01:
		return binaryFormat(data), nil
	case isWKT(trimmed):
		return output.FormatWKT, nil
	}

	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(name))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("cannot detect format of %q: %w", name, domain.ErrUnsupportedFormat)
}

// Decode parses data in the detected format. defaultSRID is used for WKT and
// plain WKB; GeoJSON is EPSG:4326 unless it names another CRS.
func (c Codec) Decode(data []byte, name string, defaultSRID int) (domain.Geometry, error) {
	format, err := c.DetectFormat(data, name)
	if err != nil {
		return domain.Geometry{}, err
	}

	var g domain.Geometry
	switch format {
	case output.FormatWKT:
		g, err = decodeWKT(string(bytes.TrimSpace(data)), defaultSRID)
	case output.FormatEWKT:
		g, err = decodeEWKT(string(bytes.TrimSpace(data)))
	case output.FormatGeoJSON:
		g, err = decodeGeoJSON(data)
	case output.FormatWKB, output.FormatEWKB:
		g, err = decodeWKB(data, defaultSRID)
	}
	if err != nil {
		return domain.Geometry{}, &domain.GeometryError{Op: "decode", Reason: fmt.Sprintf("%s: %v", format, err)}
	}
	if g.SRID <= 0 {
		g.SRID = defaultSRID
	}
	return g, nil
}

// Encode writes g in format. Binary formats are hex encoded.
func (Codec) Encode(g domain.Geometry, format output.Format) ([]byte, error) {
	if g.Shape == nil {
		return nil, &domain.GeometryError{Op: "encode", Reason: "geometry is nil"}
	}

	switch format {
	case output.FormatWKT:
		return []byte(wkt.MarshalString(g.Shape)), nil
	case output.FormatEWKT:
		return []byte(fmt.Sprintf("SRID=%d;%s", g.SRID, wkt.MarshalString(g.Shape))), nil
	case output.FormatGeoJSON:
		return geojson.NewGeometry(g.Shape).MarshalJSON()
	case output.FormatWKB:
		s, err := wkb.MarshalToHex(g.Shape)
		return []byte(s), err
	case output.FormatEWKB:
		s, err := ewkb.MarshalToHex(g.Shape, g.SRID)
		return []byte(s), err
	}
	return nil, fmt.Errorf("%q: %w", format, domain.ErrUnsupportedFormat)
}

func decodeWKT(s string, srid int) (domain.Geometry, error) {
	shape, err := wkt.Unmarshal(s)
	if err != nil {
		return domain.Geometry{}, err
	}
	return domain.NewGeometry(shape, srid), nil
}

func decodeEWKT(s string) (domain.Geometry, error) {
	m := ewktPrefix.FindStringSubmatch(s)
	if m == nil {
		return domain.Geometry{}, fmt.Errorf("missing SRID prefix")
	}
	srid, err := strconv.Atoi(m[1])
	if err != nil {
		return domain.Geometry{}, err
	}
	return decodeWKT(s[len(m[0]):], srid)
}

func decodeWKB(data []byte, defaultSRID int) (domain.Geometry, error) {
	raw := bytes.TrimSpace(data)
	if isHex(raw) {
		decoded, err := hex.DecodeString(string(raw))
		if err != nil {
			return domain.Geometry{}, err
		}
		raw = decoded
	} else {
		raw = data
	}

	shape, srid, err := ewkb.Unmarshal(raw)
	if err != nil {
		return domain.Geometry{}, err
	}
	if srid == 0 {
		srid = defaultSRID
	}
	return domain.NewGeometry(shape, srid), nil
}

// geoJSONDoc holds the members needed to pick a decoder and a CRS.
type geoJSONDoc struct {
	Type string `json:"type"`
	CRS  *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func decodeGeoJSON(data []byte) (domain.Geometry, error) {
	var doc geoJSONDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Geometry{}, err
	}

	srid := domain.SRIDWGS84
	if doc.CRS != nil {
		if m := epsgName.FindStringSubmatch(doc.CRS.Properties.Name); m != nil {
			srid, _ = strconv.Atoi(m[1])
		}
	}

	var shape orb.Geometry
	switch doc.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return domain.Geometry{}, err
		}
		shapes := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				shapes = append(shapes, f.Geometry)
			}
		}
		shape = merge(shapes)
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return domain.Geometry{}, err
		}
		shape = f.Geometry
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return domain.Geometry{}, err
		}
		shape = g.Geometry()
	}

	if shape == nil {
		return domain.Geometry{}, fmt.Errorf("document has no geometry")
	}
	return domain.NewGeometry(shape, srid), nil
}

// merge combines feature geometries: a single geometry is returned as is,
// polygons become a MultiPolygon, lines a MultiLineString and anything else a
// Collection.
func merge(shapes []orb.Geometry) orb.Geometry {
	switch len(shapes) {
	case 0:
		return nil
	case 1:
		return shapes[0]
	}

	var (
		polys orb.MultiPolygon
		lines orb.MultiLineString
		mixed bool
	)
	for _, s := range shapes {
		switch g := s.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		case orb.LineString:
			lines = append(lines, g)
		case orb.MultiLineString:
			lines = append(lines, g...)
		default:
			mixed = true
		}
	}

	switch {
	case !mixed && len(lines) == 0:
		return polys
	case !mixed && len(polys) == 0:
		return lines
	}
	return orb.Collection(shapes)
}

func binaryFormat(raw []byte) output.Format {
	if len(raw) < 5 {
		return output.FormatWKB
	}
	var order binary.ByteOrder = binary.BigEndian
	if raw[0] == 0x01 {
		order = binary.LittleEndian
	}
	if order.Uint32(raw[1:5])&ewkbSRIDFlag != 0 {
		return output.FormatEWKB
	}
	return output.FormatWKB
}

func isHex(b []byte) bool {
	if len(b) < 10 || len(b)%2 != 0 {
		return false
	}
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

var wktKeywords = []string{"POINT", "LINESTRING", "POLYGON", "MULTIPOINT", "MULTILINESTRING", "MULTIPOLYGON", "GEOMETRYCOLLECTION"}

func isWKT(b []byte) bool {
	upper := strings.ToUpper(string(b[:min(len(b), 20)]))
	for _, k := range wktKeywords {
		if strings.HasPrefix(upper, k) {
			return true
		}
	}
	return false
}
