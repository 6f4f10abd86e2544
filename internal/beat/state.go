package beat

import "fmt"

// State is the engine-owned aggregate: beat history, period estimate,
// cycle position, the current cycle's marks and the just-beat flag.
//
// A State is owned by a single goroutine (the run loop). It is only
// mutated through Reduce.
type State struct {
	params    Params
	history   *History
	debounce  Debouncer
	estimator *Estimator
	cycle     *Cycle

	period    float64
	coldStart bool
	justBeat  bool

	accepted uint64
	rejected uint64
	cycles   uint64
}

// NewState validates p and returns a seeded State: history holds the
// synthetic timestamp 0, the period is the cold-start default and the
// cycle starts at position 1.
func NewState(p Params) (*State, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &State{
		params:    p,
		history:   NewHistory(p.BeatRecordCapacity),
		debounce:  Debouncer{MinInterval: p.MinBeatInterval},
		estimator: NewEstimator(p.BPMWindowLength, p.DefaultPeriod()),
		cycle:     NewCycle(p.BeatsPerBreath),
		period:    p.DefaultPeriod(),
		coldStart: true,
	}
	if err := s.history.Record(0); err != nil {
		return nil, fmt.Errorf("seed history: %w", err)
	}
	return s, nil
}

// Params returns the params the state was built with.
func (s *State) Params() Params { return s.params }

// Period returns the current period estimate in seconds.
func (s *State) Period() float64 { return s.period }

// Position returns the current cycle position.
func (s *State) Position() int { return s.cycle.Position() }

// Marks returns a copy of the current cycle's marks.
func (s *State) Marks() []Mark { return s.cycle.Marks() }

// LastBeat returns the timestamp of the most recent accepted beat.
func (s *State) LastBeat() float64 {
	last, _ := s.history.Last()
	return last
}

// JustBeat reports whether a beat was accepted since the last frame.
func (s *State) JustBeat() bool { return s.justBeat }

// Weights returns the estimator's weight vector.
func (s *State) Weights() []float64 { return s.estimator.WeightVector() }

// Snapshot is a read-only copy of the engine state for reporting.
type Snapshot struct {
	Period        float64   `json:"period_s"`
	BPM           float64   `json:"bpm"`
	DefaultPeriod bool      `json:"default_period"`
	Position      int       `json:"position"`
	Marks         []Mark    `json:"marks"`
	LastBeat      float64   `json:"last_beat"`
	History       []float64 `json:"-"`
	Accepted      uint64    `json:"accepted"`
	Rejected      uint64    `json:"rejected"`
	Cycles        uint64    `json:"cycles"`
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	bpm, _ := BPM(s.period)
	return Snapshot{
		Period:        s.period,
		BPM:           bpm,
		DefaultPeriod: s.coldStart,
		Position:      s.cycle.Position(),
		Marks:         s.cycle.Marks(),
		LastBeat:      s.LastBeat(),
		History:       s.history.Values(),
		Accepted:      s.accepted,
		Rejected:      s.rejected,
		Cycles:        s.cycles,
	}
}
