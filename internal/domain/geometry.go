package domain

import (
	"fmt"

	"github.com/paulmach/orb"
)

// GeometryType names a geometry kind using the OGC/GeoJSON type names.
type GeometryType string

// Geometry types.
const (
	TypePoint              GeometryType = "Point"
	TypeMultiPoint         GeometryType = "MultiPoint"
	TypeLineString         GeometryType = "LineString"
	TypeMultiLineString    GeometryType = "MultiLineString"
	TypePolygon            GeometryType = "Polygon"
	TypeMultiPolygon       GeometryType = "MultiPolygon"
	TypeGeometryCollection GeometryType = "GeometryCollection"
)

// IsPolygonal reports whether t is Polygon or MultiPolygon.
func (t GeometryType) IsPolygonal() bool {
	return t == TypePolygon || t == TypeMultiPolygon
}

// IsLineal reports whether t is LineString or MultiLineString.
func (t GeometryType) IsLineal() bool {
	return t == TypeLineString || t == TypeMultiLineString
}

// Repairable reports whether the self-intersection repair applies to t.
func (t GeometryType) Repairable() bool {
	return t.IsPolygonal() || t.IsLineal()
}

// Geometry is a planar shape tagged with the SRID of its coordinates.
// The SRID is a tag: reprojection replaces the shape and updates the tag.
type Geometry struct {
	Shape orb.Geometry
	SRID  int
}

// NewGeometry wraps shape with srid. Rings and bounds are promoted to polygons.
func NewGeometry(shape orb.Geometry, srid int) Geometry {
	switch s := shape.(type) {
	case orb.Ring:
		shape = orb.Polygon{s}
	case orb.Bound:
		shape = s.ToPolygon()
	}
	return Geometry{Shape: shape, SRID: srid}
}

// Type returns the geometry type.
func (g Geometry) Type() GeometryType {
	if g.Shape == nil {
		return ""
	}
	switch g.Shape.(type) {
	case orb.Ring, orb.Bound:
		return TypePolygon
	}
	return GeometryType(g.Shape.GeoJSONType())
}

// IsEmpty reports whether the geometry has no coordinates.
func (g Geometry) IsEmpty() bool {
	return g.NumCoords() == 0
}

// NumCoords returns the total number of coordinates in the geometry.
func (g Geometry) NumCoords() int {
	return countCoords(g.Shape)
}

func countCoords(shape orb.Geometry) int {
	switch s := shape.(type) {
	case nil:
		return 0
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(s)
	case orb.LineString:
		return len(s)
	case orb.Ring:
		return len(s)
	case orb.MultiLineString:
		n := 0
		for _, ls := range s {
			n += len(ls)
		}
		return n
	case orb.Polygon:
		n := 0
		for _, r := range s {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range s {
			n += countCoords(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, c := range s {
			n += countCoords(c)
		}
		return n
	case orb.Bound:
		return 5
	}
	return 0
}

// Clone returns a deep copy of the geometry.
func (g Geometry) Clone() Geometry {
	return Geometry{Shape: orb.Clone(g.Shape), SRID: g.SRID}
}

// WithShape returns a geometry with the same SRID and a new shape.
func (g Geometry) WithShape(shape orb.Geometry) Geometry {
	return NewGeometry(shape, g.SRID)
}

// Extent returns the bounding box of the geometry.
func (g Geometry) Extent() Extent {
	if g.Shape == nil {
		return Extent{SRID: g.SRID}
	}
	return ExtentFromBound(g.Shape.Bound(), g.SRID)
}

// String returns a short description of the geometry.
func (g Geometry) String() string {
	return fmt.Sprintf("%s(%d coords) SRID=%d", g.Type(), g.NumCoords(), g.SRID)
}

// LookAt holds camera parameters framing a geometry in a 3D viewer.
type LookAt struct {
	Range     float64 `json:"range" yaml:"range"`         // meters
	Latitude  float64 `json:"latitude" yaml:"latitude"`   // degrees
	Longitude float64 `json:"longitude" yaml:"longitude"` // degrees
	Tilt      float64 `json:"tilt" yaml:"tilt"`           // degrees, always 0
	Heading   float64 `json:"heading" yaml:"heading"`     // degrees, always 0
}
