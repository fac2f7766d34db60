// Package domain contains the core geometry entities, value objects and
// the pure algorithms that operate on them.
package domain

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Projection represents a coordinate reference system.
type Projection struct {
	SRID  int    // EPSG Code
	Name  string // Human-readable name
	Proj4 string // PROJ.4 definition used by the pure-Go reprojector
}

// Common SRID constants.
const (
	SRIDWGS84            = 4326 // WGS 84
	SRIDWebMercator      = 3857 // Web Mercator
	SRIDCaliforniaAlbers = 3310 // NAD83 / California Albers
	SRIDConusAlbers      = 5070 // NAD83 / Conus Albers
)

// DefaultWorkingSRID is the planar, equal-area SRID used for measurements.
const DefaultWorkingSRID = SRIDConusAlbers

const towgs84Zero = "+towgs84=0,0,0,0,0,0,0"

// CommonProjections contains the built-in projection definitions.
var CommonProjections = map[int]Projection{
	SRIDWGS84: {
		SRID:  SRIDWGS84,
		Name:  "WGS 84",
		Proj4: "+proj=longlat +datum=WGS84 +no_defs",
	},
	SRIDWebMercator: {
		SRID:  SRIDWebMercator,
		Name:  "WGS 84 / Pseudo-Mercator",
		Proj4: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
	},
	SRIDCaliforniaAlbers: {
		SRID:  SRIDCaliforniaAlbers,
		Name:  "NAD83 / California Albers",
		Proj4: "+proj=aea +lat_1=34 +lat_2=40.5 +lat_0=0 +lon_0=-120 +x_0=0 +y_0=-4000000 +ellps=GRS80 " + towgs84Zero + " +units=m +no_defs",
	},
	SRIDConusAlbers: {
		SRID:  SRIDConusAlbers,
		Name:  "NAD83 / Conus Albers",
		Proj4: "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +ellps=GRS80 " + towgs84Zero + " +units=m +no_defs",
	},
}

func init() {
	// NAD83 and WGS 84 UTM zones covering the continental US and its coastal waters.
	for zone := 10; zone <= 19; zone++ {
		nad := 26900 + zone
		CommonProjections[nad] = Projection{
			SRID:  nad,
			Name:  fmt.Sprintf("NAD83 / UTM zone %dN", zone),
			Proj4: fmt.Sprintf("+proj=utm +zone=%d +ellps=GRS80 %s +units=m +no_defs", zone, towgs84Zero),
		}
		wgs := 32600 + zone
		CommonProjections[wgs] = Projection{
			SRID:  wgs,
			Name:  fmt.Sprintf("WGS 84 / UTM zone %dN", zone),
			Proj4: fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone),
		}
	}
}

// IsKnownSRID returns true if the SRID is in the common projections list.
func IsKnownSRID(srid int) bool {
	_, ok := CommonProjections[srid]
	return ok
}

// ProjectionRegistry resolves SRIDs to projection definitions. Overrides take
// precedence over CommonProjections.
type ProjectionRegistry struct {
	overrides map[int]Projection
}

// NewProjectionRegistry creates a registry with optional proj4 overrides keyed by SRID.
func NewProjectionRegistry(overrides map[int]string) *ProjectionRegistry {
	r := &ProjectionRegistry{overrides: make(map[int]Projection, len(overrides))}
	for srid, def := range overrides {
		r.overrides[srid] = Projection{
			SRID:  srid,
			Name:  fmt.Sprintf("EPSG:%d", srid),
			Proj4: def,
		}
	}
	return r
}

// Lookup returns the projection for srid.
func (r *ProjectionRegistry) Lookup(srid int) (Projection, error) {
	if srid <= 0 {
		return Projection{}, &ValidationError{
			Field:      "srid",
			Value:      srid,
			Constraint: "> 0",
			Message:    "srid must be a positive EPSG code",
		}
	}
	if r != nil {
		if p, ok := r.overrides[srid]; ok {
			return p, nil
		}
	}
	if p, ok := CommonProjections[srid]; ok {
		return p, nil
	}
	return Projection{}, fmt.Errorf("EPSG:%d: %w", srid, ErrUnsupportedProjection)
}

// SRIDs returns every SRID the registry can resolve, sorted.
func (r *ProjectionRegistry) SRIDs() []int {
	seen := make(map[int]struct{}, len(CommonProjections))
	for srid := range CommonProjections {
		seen[srid] = struct{}{}
	}
	if r != nil {
		for srid := range r.overrides {
			seen[srid] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for srid := range seen {
		out = append(out, srid)
	}
	sort.Ints(out)
	return out
}

// Extent represents a spatial bounding box.
type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
	SRID int
}

// ExtentFromBound converts an orb.Bound into an Extent tagged with srid.
func ExtentFromBound(b orb.Bound, srid int) Extent {
	return Extent{
		MinX: b.Min.X(),
		MinY: b.Min.Y(),
		MaxX: b.Max.X(),
		MaxY: b.Max.Y(),
		SRID: srid,
	}
}

// IsValid checks if the extent has valid dimensions.
func (e Extent) IsValid() bool {
	return e.MinX <= e.MaxX && e.MinY <= e.MaxY
}

// IsDegenerate reports whether the extent has zero width and zero height or
// contains non-finite values.
func (e Extent) IsDegenerate() bool {
	for _, v := range []float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return e.Width() == 0 && e.Height() == 0
}

// Width returns the width of the extent.
func (e Extent) Width() float64 {
	return math.Abs(e.MaxX - e.MinX)
}

// Height returns the height of the extent.
func (e Extent) Height() float64 {
	return math.Abs(e.MaxY - e.MinY)
}

// Center returns the center point of the extent.
func (e Extent) Center() orb.Point {
	return orb.Point{(e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2}
}
