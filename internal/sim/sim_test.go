package sim

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"breathpacer/internal/transport"
)

func TestGenerator_DeterministicForSeed(t *testing.T) {
	a, err := NewGenerator(DefaultConfig())
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	b, _ := NewGenerator(DefaultConfig())
	for i := 0; i < 200; i++ {
		pa, pb := a.Next(), b.Next()
		if pa != pb {
			t.Fatalf("pulse %d differs: %+v vs %+v", i, pa, pb)
		}
	}
}

func TestGenerator_MeanPeriodMatchesBPM(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BPM = 75
	cfg.DoubleFireProb = 0
	cfg.NoiseProb = 0
	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	const beats = 600
	var total time.Duration
	for i := 0; i < beats; i++ {
		p := g.Next()
		if p.Kind != PulseBeat || p.Line != transport.BeatToken {
			t.Fatalf("unexpected pulse %+v", p)
		}
		total += p.Delay
	}
	mean := total.Seconds() / beats
	want := 60.0 / cfg.BPM
	if mean < want*0.97 || mean > want*1.03 {
		t.Fatalf("mean period %.4f, want about %.4f", mean, want)
	}
}

func TestGenerator_NoiseKinds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DoubleFireProb = 1
	cfg.NoiseProb = 1
	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	// With both probabilities at 1 every beat is noise, beat, double fire.
	for i := 0; i < 10; i++ {
		noise, beat, double := g.Next(), g.Next(), g.Next()
		if noise.Kind != PulseNoise || transport.IsBeat([]byte(noise.Line)) {
			t.Fatalf("expected noise line, got %+v", noise)
		}
		if beat.Kind != PulseBeat {
			t.Fatalf("expected beat, got %+v", beat)
		}
		if double.Kind != PulseDoubleFire || double.Delay != cfg.DoubleFireGap {
			t.Fatalf("expected double fire after %v, got %+v", cfg.DoubleFireGap, double)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BPM = 0
	cfg.NoiseProb = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"bpm", "noise probability"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestRun_WritesLimitedPulses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BPM = 400 // keep the test fast
	cfg.Jitter = 0
	cfg.DoubleFireProb = 0
	cfg.NoiseProb = 0
	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	var buf bytes.Buffer
	var seen int
	if err := Run(context.Background(), g, WriterSink{W: &buf}, 3, func(Pulse) { seen++ }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if buf.String() != "BEAT\nBEAT\nBEAT\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if seen != 3 {
		t.Fatalf("expected 3 callbacks, got %d", seen)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BPM = 1
	cfg.NoiseProb = 0
	cfg.DoubleFireProb = 0
	g, _ := NewGenerator(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := Run(ctx, g, WriterSink{W: &buf}, 0, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written after cancel, got %q", buf.String())
	}
}
