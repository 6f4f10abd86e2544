package beat

// Mark is a historical beat annotation within the current cycle.
type Mark struct {
	Progress float64 `json:"progress"`
	Position int     `json:"position"`
}

// Cycle tracks the position (1..N) within the repeating breath cycle and
// the marks recorded for the current cycle.
type Cycle struct {
	n        int
	position int
	marks    []Mark
}

// NewCycle creates a counter for n beats per breath, starting at position 1.
func NewCycle(n int) *Cycle {
	if n < 1 {
		n = 1
	}
	return &Cycle{
		n:        n,
		position: 1,
		marks:    make([]Mark, 0, n),
	}
}

// N returns the number of beats per breath.
func (c *Cycle) N() int { return c.n }

// Position returns the current cycle position in [1, N].
func (c *Cycle) Position() int { return c.position }

// Marks returns a copy of the current cycle's marks.
func (c *Cycle) Marks() []Mark {
	return append([]Mark(nil), c.marks...)
}

// Advance records a mark for an accepted beat at the given progress and
// moves to the next position. When the position wraps past N it returns to
// 1, the previous cycle's marks are discarded and the wrapping beat's mark
// (tagged with position 1) becomes the only mark. It reports whether the
// cycle wrapped.
func (c *Cycle) Advance(progress float64) (wrapped bool) {
	c.marks = append(c.marks, Mark{Progress: progress, Position: c.position})
	c.position++
	if c.position > c.n {
		c.position = 1
		c.marks = c.marks[:0]
		c.marks = append(c.marks, Mark{Progress: progress, Position: c.position})
		return true
	}
	return false
}
