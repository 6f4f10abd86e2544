package pacer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"breathpacer/internal/beat"
)

// Source is a non-blocking beat signal. Poll must return immediately:
// true when a beat was read, false when nothing (or only noise) was
// available. A non-nil error is a transport failure.
type Source interface {
	Poll() (bool, error)
}

// Display receives one frame per render tick.
type Display interface {
	Render(beat.Frame) error
}

// Notifier observes reducer broadcasts. Notify must not block.
type Notifier interface {
	Notify(beat.Broadcast)
}

// Config wires a Loop.
type Config struct {
	State     *beat.State
	Clock     Clock
	Source    Source
	Display   Display
	Notifiers []Notifier
	Logger    *slog.Logger

	// IdleSleep is how long Run yields when an iteration did no work.
	// Zero busy-polls.
	IdleSleep time.Duration
}

// Loop is the single-threaded scheduler. It is the only owner of the
// engine state for its whole lifetime.
type Loop struct {
	state     *beat.State
	clock     Clock
	ticker    *FrameTicker
	source    Source
	display   Display
	notifiers []Notifier
	logger    *slog.Logger
	idleSleep time.Duration
}

// New validates cfg and builds a Loop.
func New(cfg Config) (*Loop, error) {
	if cfg.State == nil {
		return nil, errors.New("pacer: state is nil")
	}
	if cfg.Clock == nil {
		return nil, errors.New("pacer: clock is nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("pacer: source is nil")
	}
	if cfg.Display == nil {
		return nil, errors.New("pacer: display is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		state:     cfg.State,
		clock:     cfg.Clock,
		ticker:    NewFrameTicker(cfg.State.Params().RefreshRateHz),
		source:    cfg.Source,
		display:   cfg.Display,
		notifiers: cfg.Notifiers,
		logger:    logger,
		idleSleep: cfg.IdleSleep,
	}, nil
}

// Step runs one iteration: poll the source once and reduce any beat, then
// render if a frame is due. Beat processing always completes before the
// render check, so a frame never shows pre-beat state when a beat was
// available in the same iteration. It reports whether any work was done.
func (l *Loop) Step() (bool, error) {
	now := l.clock.Now()
	active := false

	gotBeat, err := l.source.Poll()
	if err != nil {
		return false, fmt.Errorf("poll source: %w", err)
	}
	if gotBeat {
		rr, err := beat.Reduce(l.state, beat.BeatCandidate{At: now})
		if err != nil {
			return false, err
		}
		l.notify(rr.Broadcasts)
		active = true
	}

	if l.ticker.Due(now) {
		rr, err := beat.Reduce(l.state, beat.RenderTick{Now: now})
		if err != nil {
			return false, err
		}
		if rr.Frame != nil {
			if err := l.display.Render(*rr.Frame); err != nil {
				return false, fmt.Errorf("render frame: %w", err)
			}
		}
		active = true
	}

	return active, nil
}

// Run calls Step until ctx is canceled or a fatal error occurs. A canceled
// context is a clean exit and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("engine loop starting",
		"refresh_hz", l.state.Params().RefreshRateHz,
		"beats_per_breath", l.state.Params().BeatsPerBreath,
		"weights", l.state.Weights())

	var idle *time.Timer
	if l.idleSleep > 0 {
		idle = time.NewTimer(l.idleSleep)
		defer idle.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("engine loop stopping (context canceled)")
			return nil
		default:
		}

		active, err := l.Step()
		if err != nil {
			return err
		}
		if active || idle == nil {
			continue
		}

		idle.Reset(l.idleSleep)
		select {
		case <-ctx.Done():
			l.logger.Info("engine loop stopping (context canceled)")
			return nil
		case <-idle.C:
		}
	}
}

// Snapshot returns a copy of the engine state. It must only be called from
// the goroutine running the loop, or after Run has returned.
func (l *Loop) Snapshot() beat.Snapshot {
	return l.state.Snapshot()
}

func (l *Loop) notify(bcs []beat.Broadcast) {
	for _, b := range bcs {
		for _, n := range l.notifiers {
			n.Notify(b)
		}
	}
}
