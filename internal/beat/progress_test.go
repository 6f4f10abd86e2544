package beat

import (
	"math"
	"testing"
)

func TestExtrapolate_NonDecreasingWithinSlot(t *testing.T) {
	const (
		n        = 6
		lastBeat = 12.0
		period   = 0.9
	)
	for pos := 1; pos <= n; pos++ {
		prev := math.Inf(-1)
		for i := 0; i <= 100; i++ {
			now := lastBeat + period*float64(i)/100
			p := Extrapolate(now, lastBeat, period, pos, n)
			if p < prev {
				t.Fatalf("pos=%d: progress decreased at now=%v: %v < %v", pos, now, p, prev)
			}
			prev = p
		}
	}
}

func TestExtrapolate_SlotBounds(t *testing.T) {
	const n = 6
	start := Extrapolate(5, 5, 1, 3, n)
	end := Extrapolate(6, 5, 1, 3, n)
	if math.Abs(start-2.0/6) > 1e-12 {
		t.Fatalf("slot start=%v, want %v", start, 2.0/6)
	}
	if math.Abs(end-3.0/6) > 1e-12 {
		t.Fatalf("slot end=%v, want %v", end, 3.0/6)
	}
}

func TestExtrapolate_LateBeatOverrunsSlot(t *testing.T) {
	const n = 6
	// Last beat of the cycle, twice as late as expected.
	p := Extrapolate(2, 0, 1, n, n)
	want := 2*(1.0/6) + 5.0/6
	if math.Abs(p-want) > 1e-12 {
		t.Fatalf("progress=%v, want %v", p, want)
	}
	if p <= 1 {
		t.Fatalf("expected late progress to overrun 1.0, got %v", p)
	}
}

func TestRadius_TriangleWave(t *testing.T) {
	const n = 6
	cases := []struct {
		progress float64
		position int
		want     float64
	}{
		{0, 1, 0},
		{0.25, 2, 0.5},
		{0.5, 3, 1.0},
		{0.5, 4, 1.0},
		{0.75, 5, 0.5},
		{1.0, 6, 0},
	}
	for _, tc := range cases {
		got := Radius(tc.progress, tc.position, n)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Radius(%v, %d)=%v, want %v", tc.progress, tc.position, got, tc.want)
		}
	}
}
