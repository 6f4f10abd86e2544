// Package pacer runs the engine: a single-threaded loop that interleaves a
// non-blocking beat source with a fixed-rate render clock.
package pacer

import "time"

// Clock reports seconds elapsed on a monotonic timeline.
type Clock interface {
	Now() float64
}

// MonotonicClock measures seconds since it was created using Go's
// monotonic clock reading.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Now implements Clock.
func (c *MonotonicClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Start returns the wall-clock time at which the clock read zero.
func (c *MonotonicClock) Start() time.Time { return c.start }

// FrameTicker decides when a render frame is due. It fires when more than
// one frame period has elapsed since the last frame it fired for.
type FrameTicker struct {
	period    float64
	lastFrame float64
}

// NewFrameTicker creates a ticker for refreshHz frames per second.
func NewFrameTicker(refreshHz int) *FrameTicker {
	if refreshHz <= 0 {
		refreshHz = 1
	}
	return &FrameTicker{period: 1.0 / float64(refreshHz)}
}

// Period returns the frame period in seconds.
func (f *FrameTicker) Period() float64 { return f.period }

// Due reports whether a frame should be rendered at now. When it returns
// true the ticker records now as the last frame time.
func (f *FrameTicker) Due(now float64) bool {
	if now-f.lastFrame > f.period {
		f.lastFrame = now
		return true
	}
	return false
}
