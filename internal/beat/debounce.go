package beat

// Debouncer rejects beat candidates that arrive too soon after the last
// accepted beat. Sensors can double-fire on a single physiological event;
// the default 0.5s floor caps the plausible rate at 120/min.
type Debouncer struct {
	MinInterval float64 // seconds
}

// Accept reports whether a candidate at now should be accepted given the
// last accepted beat time. It has no side effects.
func (d Debouncer) Accept(now, lastAccepted float64) bool {
	return now-lastAccepted >= d.MinInterval
}
