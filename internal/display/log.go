// Package display holds the collaborators that consume engine frames:
// a terminal ring, a websocket publisher and a structured log sink.
package display

import (
	"errors"
	"log/slog"

	"breathpacer/internal/beat"
)

// Renderer is anything that accepts frames.
type Renderer interface {
	Render(beat.Frame) error
}

// Multi renders each frame to every renderer in order.
type Multi []Renderer

// Render implements pacer.Display. All renderers see the frame even if
// an earlier one fails; the errors are joined.
func (m Multi) Render(f beat.Frame) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every frame.
type Discard struct{}

// Render implements pacer.Display.
func (Discard) Render(beat.Frame) error { return nil }

// LogDisplay writes frames to a slog logger at debug level, one out of
// every Every frames.
type LogDisplay struct {
	Logger *slog.Logger
	Every  int

	n int
}

// Render implements pacer.Display.
func (d *LogDisplay) Render(f beat.Frame) error {
	every := d.Every
	if every <= 0 {
		every = 1
	}
	d.n++
	if d.n%every != 0 && !f.JustBeat {
		return nil
	}
	d.Logger.Debug("frame",
		"at", f.At,
		"progress", f.Progress,
		"radius", f.Radius,
		"position", f.Position,
		"num_marks", len(f.Marks),
		"just_beat", f.JustBeat)
	return nil
}

// LogNotifier reports reducer broadcasts as log lines: one info line per
// accepted beat and per completed breath, debug for rejects.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements pacer.Notifier.
func (n LogNotifier) Notify(b beat.Broadcast) {
	switch ev := b.(type) {
	case beat.BeatAccepted:
		if ev.DefaultPeriod {
			n.Logger.Debug("using default beat period", "period_s", ev.Period)
		}
		n.Logger.Info("beat",
			"beat_count", ev.Position,
			"period_s", ev.Period,
			"bpm", ev.BPM,
			"num_marks", ev.NumMarks,
			"progress", ev.Progress)
	case beat.BeatRejected:
		n.Logger.Debug("beat rejected (debounce)", "at", ev.At, "since_last_s", ev.SinceLast)
	case beat.CycleCompleted:
		n.Logger.Info("breath completed", "cycles", ev.Cycles)
	default:
		n.Logger.Debug("broadcast", "event", b.String())
	}
}
