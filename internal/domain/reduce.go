package domain

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// LargestPolygon returns the member of multi with the largest area. A single
// member is returned unchanged; ties keep the first maximum.
func LargestPolygon(multi orb.MultiPolygon) (orb.Polygon, error) {
	if len(multi) == 0 {
		return nil, ErrEmptyCollection
	}
	if len(multi) == 1 {
		return multi[0], nil
	}

	largest := multi[0]
	largestArea := planar.Area(largest)
	for _, p := range multi[1:] {
		if a := planar.Area(p); a > largestArea {
			largest, largestArea = p, a
		}
	}
	return largest, nil
}

// LargestLine returns the member of multi with the greatest length. A single
// member is returned unchanged; ties keep the first maximum.
func LargestLine(multi orb.MultiLineString) (orb.LineString, error) {
	if len(multi) == 0 {
		return nil, ErrEmptyCollection
	}
	if len(multi) == 1 {
		return multi[0], nil
	}

	largest := multi[0]
	largestLength := planar.Length(largest)
	for _, ls := range multi[1:] {
		if l := planar.Length(ls); l > largestLength {
			largest, largestLength = ls, l
		}
	}
	return largest, nil
}

// Largest reduces a polygonal or lineal geometry to its largest member.
// Polygons and line strings are returned unchanged.
func Largest(g Geometry) (Geometry, error) {
	switch s := g.Shape.(type) {
	case orb.MultiPolygon:
		p, err := LargestPolygon(s)
		if err != nil {
			return Geometry{}, err
		}
		return g.WithShape(p), nil
	case orb.MultiLineString:
		ls, err := LargestLine(s)
		if err != nil {
			return Geometry{}, err
		}
		return g.WithShape(ls), nil
	case orb.Polygon, orb.LineString, orb.Ring:
		return g, nil
	}
	return Geometry{}, &GeometryError{
		Op:     "largest",
		Type:   string(g.Type()),
		Reason: "only polygonal and lineal geometries can be reduced",
	}
}
