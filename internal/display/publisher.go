package display

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"breathpacer/internal/beat"
)

// Envelope is the wire format for every websocket message.
type Envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// Message types sent to websocket clients.
const (
	TypeFrame        = "frame"
	TypeBeat         = "beat"
	TypeBeatRejected = "beat_rejected"
	TypeCycle        = "cycle"
)

// DefaultFrameCoalesceWindow limits how often frames are pushed to
// websocket clients. Beat events are never delayed.
const DefaultFrameCoalesceWindow = 50 * time.Millisecond

type outbound struct {
	Type string
	Data any
	At   time.Time
}

// PublisherConfig configures a Publisher. Zero values pick defaults.
type PublisherConfig struct {
	// Start is the wall-clock time at which the engine clock read zero.
	Start time.Time

	// QueueSize bounds frames/broadcasts waiting for the broadcaster.
	QueueSize int

	// FrameCoalesceWindow is the minimum spacing of frame messages.
	// Negative disables coalescing.
	FrameCoalesceWindow time.Duration
}

// Publisher is a Display and Notifier that streams frames and beat events
// to a Hub. Render and Notify never block the engine loop; when the queue
// is full the item is dropped and counted.
type Publisher struct {
	hub    *Hub
	logger *slog.Logger
	start  time.Time
	window time.Duration

	src chan any

	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewPublisher creates a publisher for hub. Call Run(ctx) to start it.
func NewPublisher(hub *Hub, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	window := cfg.FrameCoalesceWindow
	if window == 0 {
		window = DefaultFrameCoalesceWindow
	}
	if window < 0 {
		window = 0
	}
	start := cfg.Start
	if start.IsZero() {
		start = time.Now()
	}
	return &Publisher{
		hub:    hub,
		logger: logger,
		start:  start,
		window: window,
		src:    make(chan any, size),
	}
}

// Render implements pacer.Display.
func (p *Publisher) Render(f beat.Frame) error {
	p.enqueue(f)
	return nil
}

// Notify implements pacer.Notifier.
func (p *Publisher) Notify(b beat.Broadcast) {
	p.enqueue(b)
}

func (p *Publisher) enqueue(v any) {
	select {
	case p.src <- v:
	default:
		p.dropped.Add(1)
	}
}

// PublisherStats counts publisher traffic.
type PublisherStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns traffic counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{Sent: p.sent.Load(), Dropped: p.dropped.Load()}
}

// wallTime maps engine seconds onto the wall clock.
func (p *Publisher) wallTime(sec float64) time.Time {
	return p.start.Add(time.Duration(sec * float64(time.Second))).UTC()
}

func (p *Publisher) convert(v any) (outbound, bool) {
	switch ev := v.(type) {
	case beat.Frame:
		return outbound{Type: TypeFrame, Data: ev, At: p.wallTime(ev.At)}, true
	case beat.BeatAccepted:
		return outbound{Type: TypeBeat, Data: ev, At: p.wallTime(ev.At)}, true
	case beat.BeatRejected:
		return outbound{Type: TypeBeatRejected, Data: ev, At: p.wallTime(ev.At)}, true
	case beat.CycleCompleted:
		return outbound{Type: TypeCycle, Data: ev, At: p.wallTime(ev.At)}, true
	default:
		return outbound{}, false
	}
}

func (p *Publisher) emit(ev outbound) {
	ts := ev.At
	msg, err := json.Marshal(Envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
	if err != nil {
		p.logger.Warn("ws publisher marshal failed", "error", err, "type", ev.Type)
		return
	}
	switch {
	case p.hub == nil:
	case ev.Type == TypeFrame:
		p.hub.PublishFrame(msg)
	default:
		p.hub.PublishEvent(msg)
	}
	p.sent.Add(1)
}

// Run marshals queued items and hands them to the hub until ctx is
// canceled. Frames are coalesced latest-wins and flushed at most once per
// window; a beat event flushes any pending frame first so clients see
// events in engine order.
func (p *Publisher) Run(ctx context.Context) {
	var pending *outbound
	var timer *time.Timer
	var timerCh <-chan time.Time

	flush := func() {
		if pending == nil {
			return
		}
		p.emit(*pending)
		pending = nil
	}
	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerCh:
			timer = nil
			timerCh = nil
			if pending != nil {
				flush()
				timer = time.NewTimer(p.window)
				timerCh = timer.C
			}

		case v := <-p.src:
			ev, ok := p.convert(v)
			if !ok {
				continue
			}

			if ev.Type == TypeFrame && p.window > 0 {
				if timer == nil {
					// Nothing sent recently: send now and open a window.
					p.emit(ev)
					timer = time.NewTimer(p.window)
					timerCh = timer.C
					continue
				}
				pending = &ev
				continue
			}

			flush()
			p.emit(ev)
		}
	}
}
