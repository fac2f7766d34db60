package domain

import (
	"fmt"
	"iter"
	"slices"

	"github.com/paulmach/orb"
)

// DefaultSpikeThreshold is the default spike angle threshold in degrees.
const DefaultSpikeThreshold = 0.01

// SpikeIndices yields, in ascending order, the index of every vertex of ring
// whose angle between its neighbours is at or below thresholdDeg degrees.
//
// The closing vertex is not visited. Vertex 0 takes the second-to-last
// coordinate as its predecessor because the first and last coordinates are the
// same point. A vertex equal to its predecessor is reported as a spike, so a
// repeated coordinate loses exactly one copy.
//
// The sequence is lazy and can be ranged over any number of times.
func SpikeIndices(ring orb.Ring, thresholdDeg float64) iter.Seq[int] {
	threshold := DegreesToRadians(thresholdDeg)

	return func(yield func(int) bool) {
		n := len(ring)
		if n < 2 {
			return
		}
		for i := 0; i < n-1; i++ {
			if isSpike(ring, i, threshold) && !yield(i) {
				return
			}
		}
	}
}

// CollectSpikeIndices returns SpikeIndices as a slice.
func CollectSpikeIndices(ring orb.Ring, thresholdDeg float64) []int {
	var out []int
	for i := range SpikeIndices(ring, thresholdDeg) {
		out = append(out, i)
	}
	return out
}

func isSpike(ring orb.Ring, i int, threshold float64) bool {
	n := len(ring)

	var prev orb.Point
	switch {
	case i == 0 && n > 3:
		prev = ring[n-2]
	case i == 0:
		prev = ring[n-1]
	default:
		prev = ring[i-1]
	}

	curr, next := ring[i], ring[i+1]
	switch {
	case curr.Equal(prev):
		// zero-length edge: the repeated vertex is the spike
		return true
	case curr.Equal(next):
		return false
	}

	angle, err := Angle(prev, curr, next)
	if err != nil {
		return false
	}
	return angle <= threshold
}

// RemoveSpikes removes the spike vertices of polygon's exterior ring one at
// a time.
//
// Spikes are detected once on the input ring. Each detected index is then
// applied to the ring as it stands after the previous removals, so the
// indices shift: once a vertex is gone, a later index names the vertex that
// followed the flagged one. Index 0 drops the first and the closing
// coordinate and recloses the ring on the new first vertex. Any other index
// removes the first coordinate equal to the one found at that position.
// Use RemoveSpikesExact to remove exactly the flagged vertices.
//
// Interior rings are returned untouched. If no spike is found, polygon is
// returned as is.
func RemoveSpikes(polygon orb.Polygon, thresholdDeg float64) (orb.Polygon, error) {
	return removeSpikesWith(polygon, thresholdDeg, removeSequential)
}

// RemoveSpikesExact removes exactly the spike vertices detected on the input
// exterior ring. The ring is rebuilt from the surviving vertices and closed
// with a copy of the first survivor.
func RemoveSpikesExact(polygon orb.Polygon, thresholdDeg float64) (orb.Polygon, error) {
	return removeSpikesWith(polygon, thresholdDeg, rebuildWithout)
}

// RemoveSpikesRepeated runs RemoveSpikesExact until the exterior ring has no
// spike left or maxPasses passes have run. It returns the polygon and the
// number of passes that removed at least one vertex.
func RemoveSpikesRepeated(polygon orb.Polygon, thresholdDeg float64, maxPasses int) (orb.Polygon, int, error) {
	if maxPasses < 1 {
		maxPasses = 1
	}

	current := polygon
	passes := 0
	for passes < maxPasses {
		next, err := RemoveSpikesExact(current, thresholdDeg)
		if err != nil {
			return nil, passes, err
		}
		if len(next[0]) == len(current[0]) {
			break
		}
		current = next
		passes++
	}
	return current, passes, nil
}

func removeSpikesWith(polygon orb.Polygon, thresholdDeg float64, remove func(orb.Ring, []int) (orb.Ring, error)) (orb.Polygon, error) {
	if err := validateSpikeInput(polygon); err != nil {
		return nil, err
	}

	exterior := polygon[0]
	indices := CollectSpikeIndices(exterior, thresholdDeg)
	if len(indices) == 0 {
		return polygon, nil
	}

	ring, err := remove(exterior, indices)
	if err != nil {
		return nil, err
	}

	out := make(orb.Polygon, len(polygon))
	out[0] = ring
	for i := 1; i < len(polygon); i++ {
		out[i] = polygon[i].Clone()
	}
	return out, nil
}

func validateSpikeInput(polygon orb.Polygon) error {
	if len(polygon) == 0 || len(polygon[0]) == 0 {
		return &GeometryError{Op: "remove_spikes", Type: string(TypePolygon), Reason: "polygon is empty"}
	}
	if !polygon[0].Closed() {
		return &GeometryError{Op: "remove_spikes", Type: string(TypePolygon), Reason: "exterior ring is not closed"}
	}
	return nil
}

// removeSequential applies indices to ring in order, each one against the
// ring left by the removals before it.
func removeSequential(ring orb.Ring, indices []int) (orb.Ring, error) {
	cur := ring.Clone()
	for _, idx := range indices {
		if idx == 0 {
			cur = cur[1 : len(cur)-1]
			if len(cur) == 0 {
				break
			}
			cur = append(cur, cur[0])
			continue
		}

		if idx >= len(cur)-1 {
			return nil, &GeometryError{
				Op:     "remove_spikes",
				Type:   string(TypePolygon),
				Reason: fmt.Sprintf("spike index %d is past the ring end after earlier removals", idx),
			}
		}

		j := slices.IndexFunc(cur, func(p orb.Point) bool { return p.Equal(cur[idx]) })
		if j == 0 {
			return nil, &GeometryError{
				Op:     "remove_spikes",
				Type:   string(TypePolygon),
				Reason: fmt.Sprintf("removing spike index %d would open the ring", idx),
			}
		}
		cur = slices.Delete(cur, j, j+1)
	}

	if len(cur) < MinRingPoints {
		return nil, &GeometryError{
			Op:     "remove_spikes",
			Type:   string(TypePolygon),
			Reason: fmt.Sprintf("removing %d spikes leaves %d points", len(indices), len(cur)),
		}
	}
	return cur, nil
}

// rebuildWithout returns a new closed ring made of the vertices of ring whose
// indices are not listed. indices must be ascending and refer to positions in
// ring, excluding the closing vertex.
func rebuildWithout(ring orb.Ring, indices []int) (orb.Ring, error) {
	drop := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		drop[i] = struct{}{}
	}

	out := make(orb.Ring, 0, len(ring))
	for i := 0; i < len(ring)-1; i++ {
		if _, ok := drop[i]; ok {
			continue
		}
		out = append(out, ring[i])
	}
	if len(out) > 0 {
		out = append(out, out[0])
	}

	if len(out) < MinRingPoints {
		return nil, &GeometryError{
			Op:     "remove_spikes",
			Type:   string(TypePolygon),
			Reason: fmt.Sprintf("removing %d spikes leaves %d points", len(indices), len(out)),
		}
	}
	return out, nil
}
