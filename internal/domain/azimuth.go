package domain

import (
	"math"

	"github.com/paulmach/orb"
)

// Azimuth returns the bearing in radians of the segment from -> to, measured
// clockwise from north, in [0, 2π). This matches ST_Azimuth in PostGIS and
// SpatiaLite.
func Azimuth(from, to orb.Point) (float64, error) {
	if from.Equal(to) {
		return 0, &GeometryError{
			Op:     "azimuth",
			Type:   string(TypePoint),
			Reason: "azimuth is undefined for coincident points",
		}
	}

	az := math.Atan2(to.X()-from.X(), to.Y()-from.Y())
	if az < 0 {
		az += 2 * math.Pi
	}
	return az, nil
}

// Angle returns |Azimuth(p2, p1) - Azimuth(p2, p3)|, the absolute difference
// between the rays p2->p1 and p2->p3.
//
// The result is not normalized to [0, π]: reflex configurations yield values
// above π, and spike detection compares this raw difference to its threshold.
func Angle(p1, p2, p3 orb.Point) (float64, error) {
	a, err := Azimuth(p2, p1)
	if err != nil {
		return 0, err
	}
	b, err := Azimuth(p2, p3)
	if err != nil {
		return 0, err
	}
	return math.Abs(a - b), nil
}

// AngleDegrees is Angle expressed in degrees.
func AngleDegrees(p1, p2, p3 orb.Point) (float64, error) {
	rad, err := Angle(p1, p2, p3)
	if err != nil {
		return 0, err
	}
	return RadiansToDegrees(rad), nil
}

// DegreesToRadians converts degrees to radians.
func DegreesToRadians(deg float64) float64 {
	return deg * (math.Pi / 180)
}

// RadiansToDegrees converts radians to degrees.
func RadiansToDegrees(rad float64) float64 {
	return rad * (180 / math.Pi)
}
