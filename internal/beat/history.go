package beat

import "fmt"

// History is a fixed-capacity ring buffer of accepted beat timestamps.
// Values are strictly increasing; when full, Record evicts the oldest entry.
type History struct {
	data  []float64
	head  int // index of the oldest entry
	count int
}

// NewHistory creates an empty history with the given capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{data: make([]float64, capacity)}
}

// Cap returns the capacity.
func (h *History) Cap() int { return len(h.data) }

// Len returns the number of stored timestamps.
func (h *History) Len() int { return h.count }

// At returns the i-th oldest stored timestamp (0 is the oldest).
func (h *History) At(i int) float64 {
	if i < 0 || i >= h.count {
		panic(fmt.Sprintf("beat: history index %d out of range [0,%d)", i, h.count))
	}
	return h.data[(h.head+i)%len(h.data)]
}

// Last returns the most recent timestamp, or (0, false) when empty.
func (h *History) Last() (float64, bool) {
	if h.count == 0 {
		return 0, false
	}
	return h.At(h.count - 1), true
}

// Record appends ts, evicting the oldest entry if the buffer is full.
// It rejects timestamps that are not strictly after the last entry.
func (h *History) Record(ts float64) error {
	if last, ok := h.Last(); ok && ts <= last {
		return fmt.Errorf("%w: record %.6f after %.6f", ErrNonMonotonic, ts, last)
	}
	if h.count < len(h.data) {
		h.data[(h.head+h.count)%len(h.data)] = ts
		h.count++
		return nil
	}
	// Full: overwrite the oldest slot and advance head.
	h.data[h.head] = ts
	h.head = (h.head + 1) % len(h.data)
	return nil
}

// Gaps returns the last k consecutive differences, oldest first.
// It returns nil when fewer than k+1 timestamps are stored.
func (h *History) Gaps(k int) []float64 {
	if k <= 0 || h.count < k+1 {
		return nil
	}
	out := make([]float64, k)
	start := h.count - k - 1
	prev := h.At(start)
	for i := 0; i < k; i++ {
		cur := h.At(start + 1 + i)
		out[i] = cur - prev
		prev = cur
	}
	return out
}

// Values returns a copy of the stored timestamps, oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, h.count)
	for i := range out {
		out[i] = h.At(i)
	}
	return out
}
