package beat

import "fmt"

// ReduceResult is the output of Reduce: the next state, an optional frame
// for the display and any broadcasts for observers.
type ReduceResult struct {
	State      *State
	Frame      *Frame
	Broadcasts []Broadcast
}

// Reduce applies one event to s.
//
// Rules:
//   - No I/O, no blocking.
//   - Transient noise (debounced candidates) is not an error.
//   - A non-nil error is fatal: the clock went backwards or the period
//     estimate became non-positive. The state must not be used afterwards.
func Reduce(s *State, e Event) (ReduceResult, error) {
	if s == nil {
		return ReduceResult{}, fmt.Errorf("reduce: nil state")
	}

	switch ev := e.(type) {
	case BeatCandidate:
		return reduceBeat(s, ev)

	case RenderTick:
		return reduceTick(s, ev)

	default:
		// Unknown event type: no-op.
		return ReduceResult{State: s}, nil
	}
}

func reduceBeat(s *State, ev BeatCandidate) (ReduceResult, error) {
	last := s.LastBeat()
	if ev.At < last {
		return ReduceResult{}, fmt.Errorf("%w: beat at %.6f before last beat %.6f", ErrNonMonotonic, ev.At, last)
	}

	// A candidate at exactly the last timestamp is a duplicate, whatever
	// the debounce floor.
	if ev.At == last || !s.debounce.Accept(ev.At, last) {
		s.rejected++
		return ReduceResult{
			State:      s,
			Broadcasts: []Broadcast{BeatRejected{At: ev.At, SinceLast: ev.At - last}},
		}, nil
	}

	// Progress is sampled from the pre-beat state: that is where the ring
	// was when the beat landed.
	progress := Extrapolate(ev.At, last, s.period, s.cycle.Position(), s.cycle.N())

	if err := s.history.Record(ev.At); err != nil {
		return ReduceResult{}, fmt.Errorf("record beat: %w", err)
	}

	period, cold := s.estimator.Estimate(s.history)
	if period <= 0 {
		return ReduceResult{}, fmt.Errorf("%w: %v after beat at %.6f", ErrNonPositivePeriod, period, ev.At)
	}
	s.period = period
	s.coldStart = cold

	wrapped := s.cycle.Advance(progress)
	s.justBeat = true
	s.accepted++

	bpm, err := BPM(period)
	if err != nil {
		return ReduceResult{}, err
	}

	out := []Broadcast{BeatAccepted{
		At:            ev.At,
		Progress:      progress,
		Position:      s.cycle.Position(),
		Period:        period,
		BPM:           bpm,
		DefaultPeriod: cold,
		NumMarks:      len(s.cycle.marks),
		Count:         s.accepted,
	}}
	if wrapped {
		s.cycles++
		out = append(out, CycleCompleted{At: ev.At, Cycles: s.cycles})
	}

	return ReduceResult{State: s, Broadcasts: out}, nil
}

func reduceTick(s *State, ev RenderTick) (ReduceResult, error) {
	last := s.LastBeat()
	if ev.Now < last {
		return ReduceResult{}, fmt.Errorf("%w: tick at %.6f before last beat %.6f", ErrNonMonotonic, ev.Now, last)
	}
	if s.period <= 0 {
		return ReduceResult{}, fmt.Errorf("%w: %v", ErrNonPositivePeriod, s.period)
	}

	pos := s.cycle.Position()
	n := s.cycle.N()
	progress := Extrapolate(ev.Now, last, s.period, pos, n)

	frame := &Frame{
		At:             ev.Now,
		Progress:       progress,
		Radius:         Radius(progress, pos, n),
		Position:       pos,
		BeatsPerBreath: n,
		Marks:          s.cycle.Marks(),
		JustBeat:       s.justBeat,
		Period:         s.period,
	}
	s.justBeat = false

	return ReduceResult{State: s, Frame: frame}, nil
}
