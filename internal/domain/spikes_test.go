package domain

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/paulmach/orb"
)

// spikeOffset is the rise over a 100 unit run that makes a 0.001° needle.
var spikeOffset = 100 * math.Tan(DegreesToRadians(0.001))

// spikeRing returns a closed ring with a needle at index 3 whose tip angle is
// 0.001°.
func spikeRing() orb.Ring {
	return orb.Ring{
		{0, 0},
		{10, 0},
		{10, 5},
		{110, 5},
		{10, 5 + spikeOffset},
		{10, 10},
		{0, 10},
		{0, 0},
	}
}

// rotatedSpikeRing is spikeRing starting at the needle tip.
func rotatedSpikeRing() orb.Ring {
	return orb.Ring{
		{110, 5},
		{10, 5 + spikeOffset},
		{10, 10},
		{0, 10},
		{0, 0},
		{10, 0},
		{10, 5},
		{110, 5},
	}
}

// twoNeedleRing has needles at index 0 and index 5.
func twoNeedleRing() orb.Ring {
	return orb.Ring{
		{110, 5},
		{10, 5 + spikeOffset},
		{10, 10},
		{0, 10},
		{0, 5 + spikeOffset},
		{-100, 5},
		{0, 5},
		{0, 0},
		{10, 0},
		{10, 5},
		{110, 5},
	}
}

func TestSpikeIndices(t *testing.T) {
	tests := []struct {
		name      string
		ring      orb.Ring
		threshold float64
		want      []int
	}{
		{
			name:      "needle found with default threshold",
			ring:      spikeRing(),
			threshold: DefaultSpikeThreshold,
			want:      []int{3},
		},
		{
			name:      "needle ignored with smaller threshold",
			ring:      spikeRing(),
			threshold: 0.0001,
			want:      nil,
		},
		{
			name:      "needle at first vertex",
			ring:      rotatedSpikeRing(),
			threshold: DefaultSpikeThreshold,
			want:      []int{0},
		},
		{
			name:      "needles at first vertex and index five",
			ring:      twoNeedleRing(),
			threshold: DefaultSpikeThreshold,
			want:      []int{0, 5},
		},
		{
			name:      "square has no spikes",
			ring:      square(),
			threshold: DefaultSpikeThreshold,
			want:      nil,
		},
		{
			name:      "repeated vertex flags the second copy",
			ring:      orb.Ring{{0, 0}, {10, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			threshold: DefaultSpikeThreshold,
			want:      []int{2},
		},
		{
			name:      "empty ring",
			ring:      orb.Ring{},
			threshold: DefaultSpikeThreshold,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollectSpikeIndices(tt.ring, tt.threshold)
			if !slices.Equal(got, tt.want) {
				t.Errorf("SpikeIndices() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpikeIndicesRestartable(t *testing.T) {
	seq := SpikeIndices(spikeRing(), DefaultSpikeThreshold)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Errorf("second iteration = %v, want %v", second, first)
	}
}

func TestSpikeIndicesEarlyStop(t *testing.T) {
	// every vertex of a degenerate back-and-forth ring is a spike
	ring := orb.Ring{{0, 0}, {10, 0}, {0, 0}, {10, 0}, {0, 0}}

	count := 0
	for range SpikeIndices(ring, DefaultSpikeThreshold) {
		count++
		break
	}
	if count != 1 {
		t.Errorf("iterations = %d, want 1", count)
	}
}

func TestRemoveSpikes(t *testing.T) {
	tests := []struct {
		name string
		in   orb.Polygon
		want orb.Ring
	}{
		{
			name: "interior index removes one coordinate",
			in:   orb.Polygon{spikeRing()},
			want: orb.Ring{
				{0, 0}, {10, 0}, {10, 5}, {10, 5 + spikeOffset}, {10, 10}, {0, 10}, {0, 0},
			},
		},
		{
			name: "index zero drops first and last and recloses",
			in:   orb.Polygon{rotatedSpikeRing()},
			want: orb.Ring{
				{10, 5 + spikeOffset}, {10, 10}, {0, 10}, {0, 0}, {10, 0}, {10, 5}, {10, 5 + spikeOffset},
			},
		},
		{
			// dropping index 0 shifts the ring, so index 5 names (0,5) and
			// the needle tip at (-100,5) stays
			name: "index zero shifts later indices",
			in:   orb.Polygon{twoNeedleRing()},
			want: orb.Ring{
				{10, 5 + spikeOffset}, {10, 10}, {0, 10}, {0, 5 + spikeOffset},
				{-100, 5},
				{0, 0}, {10, 0}, {10, 5}, {10, 5 + spikeOffset},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RemoveSpikes(tt.in, DefaultSpikeThreshold)
			if err != nil {
				t.Fatalf("RemoveSpikes failed: %v", err)
			}
			if !got[0].Equal(tt.want) {
				t.Errorf("exterior = %v, want %v", got[0], tt.want)
			}
			if !got[0].Closed() {
				t.Error("exterior should stay closed")
			}
		})
	}
}

func TestRemoveSpikesExact(t *testing.T) {
	tests := []struct {
		name string
		in   orb.Polygon
		want orb.Ring
	}{
		{
			name: "interior index",
			in:   orb.Polygon{spikeRing()},
			want: orb.Ring{
				{0, 0}, {10, 0}, {10, 5}, {10, 5 + spikeOffset}, {10, 10}, {0, 10}, {0, 0},
			},
		},
		{
			name: "index zero and index five both go",
			in:   orb.Polygon{twoNeedleRing()},
			want: orb.Ring{
				{10, 5 + spikeOffset}, {10, 10}, {0, 10}, {0, 5 + spikeOffset},
				{0, 5},
				{0, 0}, {10, 0}, {10, 5}, {10, 5 + spikeOffset},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RemoveSpikesExact(tt.in, DefaultSpikeThreshold)
			if err != nil {
				t.Fatalf("RemoveSpikesExact failed: %v", err)
			}
			if !got[0].Equal(tt.want) {
				t.Errorf("exterior = %v, want %v", got[0], tt.want)
			}
			if idx := CollectSpikeIndices(got[0], DefaultSpikeThreshold); len(idx) != 0 {
				t.Errorf("spikes left: %v", idx)
			}
		})
	}
}

func TestRemoveSpikesNoSpikesIsIdentity(t *testing.T) {
	in := polygonWithHole()

	got, err := RemoveSpikes(in, DefaultSpikeThreshold)
	if err != nil {
		t.Fatalf("RemoveSpikes failed: %v", err)
	}
	if !got.Equal(in) {
		t.Errorf("RemoveSpikes() = %v, want %v", got, in)
	}
}

func TestRemoveSpikesLeavesHoles(t *testing.T) {
	hole := orb.Ring{{20, 4}, {30, 4}, {30, 4.5}, {20, 4}}
	in := orb.Polygon{spikeRing(), hole}

	got, err := RemoveSpikes(in, DefaultSpikeThreshold)
	if err != nil {
		t.Fatalf("RemoveSpikes failed: %v", err)
	}
	if len(got) != 2 || !got[1].Equal(hole) {
		t.Errorf("hole = %v, want %v", got[1], hole)
	}
	if len(in[0]) != 8 {
		t.Error("RemoveSpikes should not modify its input")
	}
}

func TestRemoveSpikesErrors(t *testing.T) {
	tests := []struct {
		name string
		in   orb.Polygon
	}{
		{"empty polygon", orb.Polygon{}},
		{"open exterior", orb.Polygon{{{0, 0}, {10, 0}, {10, 10}}}},
		{"collapses below four points", orb.Polygon{{{0, 0}, {10, 0}, {0, 0}, {10, 0}, {0, 0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RemoveSpikes(tt.in, DefaultSpikeThreshold); !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("RemoveSpikes error = %v, want ErrInvalidGeometry", err)
			}
			if _, err := RemoveSpikesExact(tt.in, DefaultSpikeThreshold); !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("RemoveSpikesExact error = %v, want ErrInvalidGeometry", err)
			}
		})
	}
}

func TestRemoveSpikesRepeated(t *testing.T) {
	// Removing the tip at (110,5) turns (100,5+s) into a second needle.
	s := 10 * math.Tan(DegreesToRadians(0.001))
	d := 90 * math.Tan(DegreesToRadians(0.002))
	ring := orb.Ring{
		{0, 0}, {10, 0}, {10, 5},
		{110, 5},
		{100, 5 + s},
		{10, 5 + d},
		{10, 10}, {0, 10}, {0, 0},
	}

	single, err := RemoveSpikes(orb.Polygon{ring}, DefaultSpikeThreshold)
	if err != nil {
		t.Fatalf("RemoveSpikes failed: %v", err)
	}
	if len(single[0]) != 8 {
		t.Errorf("single pass left %d points, want 8", len(single[0]))
	}
	if idx := CollectSpikeIndices(single[0], DefaultSpikeThreshold); !slices.Equal(idx, []int{3}) {
		t.Errorf("spikes after single pass = %v, want [3]", idx)
	}

	repeated, passes, err := RemoveSpikesRepeated(orb.Polygon{ring}, DefaultSpikeThreshold, 10)
	if err != nil {
		t.Fatalf("RemoveSpikesRepeated failed: %v", err)
	}
	if passes != 2 {
		t.Errorf("passes = %d, want 2", passes)
	}
	if len(repeated[0]) != 7 {
		t.Errorf("repeated removal left %d points, want 7", len(repeated[0]))
	}
	if idx := CollectSpikeIndices(repeated[0], DefaultSpikeThreshold); len(idx) != 0 {
		t.Errorf("spikes left after repeated removal: %v", idx)
	}

	limited, passes, err := RemoveSpikesRepeated(orb.Polygon{ring}, DefaultSpikeThreshold, 1)
	if err != nil {
		t.Fatalf("RemoveSpikesRepeated failed: %v", err)
	}
	if passes != 1 || !limited[0].Equal(single[0]) {
		t.Errorf("one pass = %v (%d passes), want %v", limited[0], passes, single[0])
	}
}
