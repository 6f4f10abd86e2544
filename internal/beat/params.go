// Package beat implements the beat-phase estimation and progress
// extrapolation engine.
//
// Timestamps are float64 seconds on a monotonic clock that starts at zero
// when the process starts. All state lives in a single State owned by the
// caller; Reduce is the only function that mutates it.
package beat

import (
	"errors"
	"fmt"
)

// Engine defaults.
const (
	DefaultBeatsPerBreath     = 6
	DefaultBeatRecordCapacity = 128
	DefaultBPMWindowLength    = 16
	DefaultMinBeatInterval    = 0.5  // seconds
	DefaultBPM                = 61.5 // cold-start rate
	DefaultRefreshRateHz      = 30
)

var (
	// ErrInvalidParams wraps every Params validation failure.
	ErrInvalidParams = errors.New("invalid engine params")

	// ErrNonMonotonic is returned when a timestamp is earlier than the last
	// accepted beat. It indicates a broken clock and is fatal.
	ErrNonMonotonic = errors.New("non-monotonic timestamp")

	// ErrNonPositivePeriod is returned when the period estimate is <= 0.
	ErrNonPositivePeriod = errors.New("non-positive period estimate")
)

// Params holds the static engine configuration.
type Params struct {
	BeatsPerBreath     int     // N
	BeatRecordCapacity int     // history capacity
	BPMWindowLength    int     // W
	MinBeatInterval    float64 // seconds; debounce floor
	DefaultBPM         float64 // cold-start estimate
	RefreshRateHz      int
}

// DefaultParams returns Params populated with the engine defaults.
func DefaultParams() Params {
	return Params{
		BeatsPerBreath:     DefaultBeatsPerBreath,
		BeatRecordCapacity: DefaultBeatRecordCapacity,
		BPMWindowLength:    DefaultBPMWindowLength,
		MinBeatInterval:    DefaultMinBeatInterval,
		DefaultBPM:         DefaultBPM,
		RefreshRateHz:      DefaultRefreshRateHz,
	}
}

// Validate checks that the params describe a runnable engine.
func (p Params) Validate() error {
	if p.BeatsPerBreath < 1 {
		return fmt.Errorf("%w: beats_per_breath must be >= 1", ErrInvalidParams)
	}
	if p.BPMWindowLength < 1 {
		return fmt.Errorf("%w: bpm_window_length must be >= 1", ErrInvalidParams)
	}
	// The estimator needs W+1 timestamps to form W gaps.
	if p.BeatRecordCapacity < p.BPMWindowLength+1 {
		return fmt.Errorf("%w: beat_record_capacity must be > bpm_window_length", ErrInvalidParams)
	}
	if p.MinBeatInterval < 0 {
		return fmt.Errorf("%w: min_beat_interval must be >= 0", ErrInvalidParams)
	}
	if p.DefaultBPM <= 0 {
		return fmt.Errorf("%w: default_bpm must be > 0", ErrInvalidParams)
	}
	if p.RefreshRateHz <= 0 || p.RefreshRateHz > 1000 {
		return fmt.Errorf("%w: refresh_rate_hz must be between 1 and 1000", ErrInvalidParams)
	}
	return nil
}

// DefaultPeriod is the cold-start period in seconds derived from DefaultBPM.
func (p Params) DefaultPeriod() float64 {
	return 60.0 / p.DefaultBPM
}

// FramePeriod is the render period in seconds.
func (p Params) FramePeriod() float64 {
	return 1.0 / float64(p.RefreshRateHz)
}
