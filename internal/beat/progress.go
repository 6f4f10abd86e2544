package beat

// Extrapolate returns the continuous cycle progress at now.
//
// The current beat occupies the slot [(position-1)/n, position/n] of the
// cycle. Elapsed time since the last beat, divided by the period, is mapped
// linearly into that slot. The result is not clamped: a late beat makes
// progress run past the slot's upper bound (and past 1.0 on the last beat)
// so the display keeps moving instead of stalling.
func Extrapolate(now, lastBeat, period float64, position, n int) float64 {
	minProg := float64(max(0, position-1)) / float64(n)
	maxProg := float64(position) / float64(n)
	raw := (now - lastBeat) / period
	return raw*(maxProg-minProg) + minProg
}

// Radius maps progress to a display radius. During the first half of the
// cycle the radius expands with progress; during the second half it
// contracts, so a full cycle traces a triangle wave peaking at 1.0.
// Marks must be mapped with the same function to line up with the ring.
func Radius(progress float64, position, n int) float64 {
	r := progress
	if 2*position > n {
		r = 1 - progress
	}
	return 2 * r
}
