package domain

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// MinRingPoints is the minimum number of points in a valid closed ring:
// three distinct vertices plus the closing duplicate.
const MinRingPoints = 4

// IsCCW reports whether ring is counter-clockwise.
//
// It accumulates Σ(p1.y*p2.x - p1.x*p2.y) over consecutive vertex pairs and
// returns true when the sum is <= 0. Zero-area rings are reported as
// counter-clockwise in both directions.
func IsCCW(ring orb.Ring) bool {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		p1, p2 := ring[i], ring[i+1]
		sum += p1.Y()*p2.X() - p1.X()*p2.Y()
	}
	return sum <= 0
}

// ForceRHR returns a copy of polygon following the right-hand rule: the
// exterior ring clockwise and every interior ring counter-clockwise.
func ForceRHR(polygon orb.Polygon) (orb.Polygon, error) {
	return orient(polygon, "force_rhr", false)
}

// ForceLHR returns a copy of polygon following the left-hand rule: the
// exterior ring counter-clockwise and every interior ring clockwise.
// KML consumers expect this winding.
func ForceLHR(polygon orb.Polygon) (orb.Polygon, error) {
	return orient(polygon, "force_lhr", true)
}

// orient rebuilds polygon with the exterior ring wound CCW when exteriorCCW is
// set, CW otherwise, and the interior rings wound the opposite way.
func orient(polygon orb.Polygon, op string, exteriorCCW bool) (orb.Polygon, error) {
	if err := ValidatePolygon(polygon, op); err != nil {
		return nil, err
	}

	out := make(orb.Polygon, len(polygon))
	for i, ring := range polygon {
		wantCCW := exteriorCCW
		if i > 0 {
			wantCCW = !exteriorCCW
		}

		r := ring.Clone()
		if IsCCW(r) != wantCCW {
			r.Reverse()
		}
		out[i] = r
	}
	return out, nil
}

// ValidatePolygon checks that polygon is non-empty and that every ring is
// closed with at least MinRingPoints points.
func ValidatePolygon(polygon orb.Polygon, op string) error {
	if len(polygon) == 0 || len(polygon[0]) == 0 {
		return &GeometryError{Op: op, Type: string(TypePolygon), Reason: "polygon is empty"}
	}
	for i, ring := range polygon {
		if err := validateRing(ring); err != nil {
			return &GeometryError{
				Op:     op,
				Type:   string(TypePolygon),
				Reason: fmt.Sprintf("ring %d: %s", i, err),
			}
		}
	}
	return nil
}

func validateRing(ring orb.Ring) error {
	if len(ring) < MinRingPoints {
		return fmt.Errorf("has %d points, need at least %d", len(ring), MinRingPoints)
	}
	if !ring.Closed() {
		return errors.New("is not closed")
	}
	return nil
}
