package display

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"breathpacer/internal/beat"
)

type decoded struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`

	frame bool
}

func recvEnvelope(t *testing.T, hub *Hub) decoded {
	t.Helper()
	select {
	case m := <-hub.in:
		var d decoded
		if err := json.Unmarshal(m.data, &d); err != nil {
			t.Fatalf("bad envelope %q: %v", m.data, err)
		}
		d.frame = m.frame
		if d.frame != (d.Type == TypeFrame) {
			t.Fatalf("%s envelope queued with frame=%v", d.Type, d.frame)
		}
		return d
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for publisher output")
		return decoded{}
	}
}

func TestPublisher_EnvelopeTypesAndTimestamps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The hub is not running; the test reads its inbound queue directly.
	hub := newTestHub(t, 4, 16)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pub := NewPublisher(hub, quietLogger(), PublisherConfig{Start: start, FrameCoalesceWindow: -1})
	go pub.Run(ctx)

	pub.Notify(beat.BeatAccepted{At: 1.5, Position: 2, Period: 1, BPM: 60})
	pub.Notify(beat.BeatRejected{At: 1.7, SinceLast: 0.2})
	pub.Notify(beat.CycleCompleted{At: 6, Cycles: 1})
	if err := pub.Render(beat.Frame{At: 2, Progress: 0.25, Position: 2, BeatsPerBreath: 6}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	want := []string{TypeBeat, TypeBeatRejected, TypeCycle, TypeFrame}
	for _, typ := range want {
		got := recvEnvelope(t, hub)
		if got.Type != typ {
			t.Fatalf("got type %q, want %q", got.Type, typ)
		}
		if typ == TypeBeat && !got.Ts.Equal(start.Add(1500*time.Millisecond)) {
			t.Fatalf("beat ts=%v, want %v", got.Ts, start.Add(1500*time.Millisecond))
		}
		if typ == TypeFrame {
			var f beat.Frame
			if err := json.Unmarshal(got.Data, &f); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			if f.Progress != 0.25 || f.Position != 2 {
				t.Fatalf("unexpected frame %+v", f)
			}
		}
	}

	waitUntil(t, time.Second, func() bool { return pub.Stats().Sent == 4 }, "expected 4 messages sent")
}

func TestPublisher_CoalescesFramesButNotBeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 64)
	pub := NewPublisher(hub, quietLogger(), PublisherConfig{FrameCoalesceWindow: time.Hour})
	go pub.Run(ctx)

	// First frame goes out immediately and opens the window.
	pub.Render(beat.Frame{At: 1})
	if got := recvEnvelope(t, hub); got.Type != TypeFrame {
		t.Fatalf("expected first frame, got %q", got.Type)
	}

	// Later frames are held; a beat flushes the newest one ahead of itself.
	pub.Render(beat.Frame{At: 2})
	pub.Render(beat.Frame{At: 3})
	pub.Notify(beat.BeatAccepted{At: 3.1})

	got := recvEnvelope(t, hub)
	if got.Type != TypeFrame {
		t.Fatalf("expected pending frame flush, got %q", got.Type)
	}
	var f beat.Frame
	if err := json.Unmarshal(got.Data, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if f.At != 3 {
		t.Fatalf("expected latest frame (at=3), got at=%v", f.At)
	}
	if got := recvEnvelope(t, hub); got.Type != TypeBeat {
		t.Fatalf("expected beat after flushed frame, got %q", got.Type)
	}
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	pub := NewPublisher(nil, quietLogger(), PublisherConfig{QueueSize: 1})
	pub.Notify(beat.CycleCompleted{})
	pub.Notify(beat.CycleCompleted{})
	if pub.Stats().Dropped != 1 {
		t.Fatalf("expected one drop, got %+v", pub.Stats())
	}
}
