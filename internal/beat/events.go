package beat

import "fmt"

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// BeatCandidate is a raw beat signal read from the transport at At seconds.
type BeatCandidate struct {
	At float64
}

func (BeatCandidate) eventMarker() {}

// RenderTick asks the reducer for a frame at Now seconds.
type RenderTick struct {
	Now float64
}

func (RenderTick) eventMarker() {}

// ==============================
// Broadcasts
// ==============================

// Broadcast is a reducer-emitted notification for observers (logs, UI).
type Broadcast interface {
	broadcastMarker()
	String() string
}

// BeatAccepted is emitted for every beat that passes the debouncer.
type BeatAccepted struct {
	At            float64 `json:"at"`
	Progress      float64 `json:"progress"` // progress at acceptance
	Position      int     `json:"position"` // cycle position after the advance
	Period        float64 `json:"period_s"`
	BPM           float64 `json:"bpm"`
	DefaultPeriod bool    `json:"default_period"`
	NumMarks      int     `json:"num_marks"`
	Count         uint64  `json:"count"`
}

func (BeatAccepted) broadcastMarker() {}
func (b BeatAccepted) String() string {
	return fmt.Sprintf("BeatAccepted(at=%.3f position=%d period=%.3f bpm=%.1f)", b.At, b.Position, b.Period, b.BPM)
}

// BeatRejected is emitted when a candidate falls inside the debounce window.
type BeatRejected struct {
	At        float64 `json:"at"`
	SinceLast float64 `json:"since_last_s"`
}

func (BeatRejected) broadcastMarker() {}
func (b BeatRejected) String() string {
	return fmt.Sprintf("BeatRejected(at=%.3f since_last=%.3f)", b.At, b.SinceLast)
}

// CycleCompleted is emitted when the cycle position wraps back to 1.
type CycleCompleted struct {
	At     float64 `json:"at"`
	Cycles uint64  `json:"cycles"`
}

func (CycleCompleted) broadcastMarker() {}
func (c CycleCompleted) String() string {
	return fmt.Sprintf("CycleCompleted(at=%.3f cycles=%d)", c.At, c.Cycles)
}

// ==============================
// Frames
// ==============================

// Frame is what the display collaborator receives on each render tick.
// Progress is unbounded above; Marks belong to the current cycle only.
type Frame struct {
	At             float64 `json:"at"`
	Progress       float64 `json:"progress"`
	Radius         float64 `json:"radius"`
	Position       int     `json:"position"`
	BeatsPerBreath int     `json:"beats_per_breath"`
	Marks          []Mark  `json:"marks"`
	JustBeat       bool    `json:"just_beat"`
	Period         float64 `json:"period_s"`
}

// MarkRadius maps a mark to the display radius using the same shape as
// the progress ring.
func (f Frame) MarkRadius(m Mark) float64 {
	return Radius(m.Progress, m.Position, f.BeatsPerBreath)
}
