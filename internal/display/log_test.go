package display

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"breathpacer/internal/beat"
)

func bufferLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})), &buf
}

func TestLogNotifier_BeatStatusLine(t *testing.T) {
	logger, buf := bufferLogger(slog.LevelDebug)
	LogNotifier{Logger: logger}.Notify(beat.BeatAccepted{
		At: 3, Progress: 0.25, Position: 3, Period: 1, BPM: 60, DefaultPeriod: true, NumMarks: 2, Count: 2,
	})

	out := buf.String()
	for _, want := range []string{
		`msg="using default beat period"`,
		"msg=beat",
		"beat_count=3",
		"period_s=1",
		"bpm=60",
		"num_marks=2",
		"progress=0.25",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestLogNotifier_EstimatedPeriodHasNoDefaultNotice(t *testing.T) {
	logger, buf := bufferLogger(slog.LevelDebug)
	LogNotifier{Logger: logger}.Notify(beat.BeatAccepted{Position: 2, Period: 0.8, BPM: 75})
	if strings.Contains(buf.String(), "default beat period") {
		t.Fatalf("unexpected default notice:\n%s", buf.String())
	}
}

func TestLogNotifier_RejectsOnlyAtDebug(t *testing.T) {
	logger, buf := bufferLogger(slog.LevelInfo)
	n := LogNotifier{Logger: logger}
	n.Notify(beat.BeatRejected{At: 1.2, SinceLast: 0.2})
	if buf.Len() != 0 {
		t.Fatalf("rejects must stay below info:\n%s", buf.String())
	}
	n.Notify(beat.CycleCompleted{At: 6, Cycles: 4})
	if !strings.Contains(buf.String(), `msg="breath completed" cycles=4`) {
		t.Fatalf("expected breath line, got:\n%s", buf.String())
	}
}

// A six-beat breath at the default rate, driven through the reducer: every
// cold-start beat carries the default notice, the sixth beat completes a
// breath, and the frame after the seventh sits a quarter beat into slot 2.
func TestLogSinks_FollowReducerOutput(t *testing.T) {
	p := beat.DefaultParams()
	p.BeatsPerBreath = 6
	p.DefaultBPM = 60
	s, err := beat.NewState(p)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	logger, buf := bufferLogger(slog.LevelDebug)
	notifier := LogNotifier{Logger: logger}
	for at := 1.0; at <= 7; at++ {
		res, err := beat.Reduce(s, beat.BeatCandidate{At: at})
		if err != nil {
			t.Fatalf("beat at %v: %v", at, err)
		}
		for _, b := range res.Broadcasts {
			notifier.Notify(b)
		}
	}

	out := buf.String()
	if got := strings.Count(out, "using default beat period"); got != 7 {
		t.Fatalf("expected 7 default notices, got %d:\n%s", got, out)
	}
	if got := strings.Count(out, "breath completed"); got != 1 {
		t.Fatalf("expected one completed breath, got %d:\n%s", got, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var sixth int
	for i, l := range lines {
		if strings.Contains(l, "breath completed") {
			sixth = i
		}
	}
	if sixth == 0 || !strings.Contains(lines[sixth-1], "beat_count=1") {
		t.Fatalf("breath should complete on the beat that wraps to 1:\n%s", out)
	}

	buf.Reset()
	res, err := beat.Reduce(s, beat.RenderTick{Now: 7.25})
	if err != nil || res.Frame == nil {
		t.Fatalf("tick: frame=%v err=%v", res.Frame, err)
	}
	disp := &LogDisplay{Logger: logger, Every: 30}
	if err := disp.Render(*res.Frame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "progress=0.2083") || !strings.Contains(buf.String(), "just_beat=true") {
		t.Fatalf("expected just-beat frame at progress 1.25/6, got:\n%s", buf.String())
	}
}

func TestLogDisplay_SamplesFramesButAlwaysLogsBeats(t *testing.T) {
	logger, buf := bufferLogger(slog.LevelDebug)
	d := &LogDisplay{Logger: logger, Every: 3}

	for i := 1; i <= 6; i++ {
		d.Render(beat.Frame{At: float64(i)})
	}
	if got := strings.Count(buf.String(), "msg=frame"); got != 2 {
		t.Fatalf("expected every 3rd frame logged (2 of 6), got %d:\n%s", got, buf.String())
	}

	buf.Reset()
	d.Render(beat.Frame{At: 7, JustBeat: true})
	if !strings.Contains(buf.String(), "just_beat=true") {
		t.Fatalf("just-beat frame must always be logged, got:\n%s", buf.String())
	}
}

func TestLogDisplay_SilentAboveDebug(t *testing.T) {
	logger, buf := bufferLogger(slog.LevelInfo)
	d := &LogDisplay{Logger: logger, Every: 1}
	d.Render(beat.Frame{JustBeat: true})
	if buf.Len() != 0 {
		t.Fatalf("frames are debug output, got:\n%s", buf.String())
	}
}
