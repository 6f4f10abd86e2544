// Package sim is a synthetic beat sensor. It emits BEAT lines at a target
// rate with timing jitter, a slow breathing modulation of the rate, and
// the two kinds of noise a real sensor produces: double triggers shortly
// after a beat and garbage lines.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/nats-io/nats.go"

	"breathpacer/internal/transport"
)

// Config shapes the synthetic signal.
type Config struct {
	BPM            float64 // mean beat rate
	Jitter         float64 // stddev of each gap as a fraction of the period
	RSADepth       float64 // rate modulation depth over one breath, fraction of BPM
	BeatsPerBreath int     // beats per modulation cycle
	DoubleFireProb float64 // chance a beat is followed by a spurious second trigger
	DoubleFireGap  time.Duration
	NoiseProb      float64 // chance a garbage line precedes a beat
	Seed           uint64
}

// DefaultConfig is a resting heart with mild noise.
func DefaultConfig() Config {
	return Config{
		BPM:            61.5,
		Jitter:         0.03,
		RSADepth:       0.05,
		BeatsPerBreath: 6,
		DoubleFireProb: 0.05,
		DoubleFireGap:  120 * time.Millisecond,
		NoiseProb:      0.02,
		Seed:           1,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	var errs []error
	if c.BPM <= 0 || c.BPM > 400 {
		errs = append(errs, fmt.Errorf("bpm must be in (0, 400], got %v", c.BPM))
	}
	if c.Jitter < 0 || c.Jitter >= 0.5 {
		errs = append(errs, fmt.Errorf("jitter must be in [0, 0.5), got %v", c.Jitter))
	}
	if c.RSADepth < 0 || c.RSADepth >= 0.5 {
		errs = append(errs, fmt.Errorf("rsa depth must be in [0, 0.5), got %v", c.RSADepth))
	}
	if c.BeatsPerBreath < 1 {
		errs = append(errs, fmt.Errorf("beats per breath must be >= 1, got %d", c.BeatsPerBreath))
	}
	for name, p := range map[string]float64{"double fire": c.DoubleFireProb, "noise": c.NoiseProb} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s probability must be in [0, 1], got %v", name, p))
		}
	}
	if c.DoubleFireGap < 0 {
		errs = append(errs, fmt.Errorf("double fire gap must be >= 0, got %v", c.DoubleFireGap))
	}
	return errors.Join(errs...)
}

// Pulse is one line to emit after waiting Delay since the previous pulse.
type Pulse struct {
	Delay time.Duration
	Line  string
	Kind  PulseKind
}

// PulseKind tells real beats from injected noise.
type PulseKind int

const (
	PulseBeat PulseKind = iota
	PulseDoubleFire
	PulseNoise
)

func (k PulseKind) String() string {
	switch k {
	case PulseBeat:
		return "beat"
	case PulseDoubleFire:
		return "double_fire"
	case PulseNoise:
		return "noise"
	default:
		return "unknown"
	}
}

var noiseLines = []string{"BEA", "ERR", "\xff\xfe", "beat", "BEAT BEAT", "#"}

// Generator produces a deterministic pulse sequence for a seed.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	beat  int
	queue []Pulse
}

// NewGenerator validates cfg and returns a generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// nextGap returns the gap before the next real beat, including breathing
// modulation and jitter.
func (g *Generator) nextGap() time.Duration {
	phase := 2 * math.Pi * float64(g.beat%g.cfg.BeatsPerBreath) / float64(g.cfg.BeatsPerBreath)
	bpm := g.cfg.BPM * (1 + g.cfg.RSADepth*math.Sin(phase))
	period := 60 / bpm
	period *= 1 + g.cfg.Jitter*g.rng.NormFloat64()
	if floor := 0.05 * 60 / g.cfg.BPM; period < floor {
		period = floor
	}
	return time.Duration(period * float64(time.Second))
}

// Next returns the next pulse.
func (g *Generator) Next() Pulse {
	if len(g.queue) > 0 {
		p := g.queue[0]
		g.queue = g.queue[1:]
		return p
	}

	gap := g.nextGap()
	g.beat++

	var pre []Pulse
	if g.rng.Float64() < g.cfg.NoiseProb {
		noiseAt := time.Duration(g.rng.Float64() * float64(gap))
		pre = append(pre, Pulse{
			Delay: noiseAt,
			Line:  noiseLines[g.rng.IntN(len(noiseLines))],
			Kind:  PulseNoise,
		})
		gap -= noiseAt
	}
	beat := Pulse{Delay: gap, Line: transport.BeatToken, Kind: PulseBeat}

	g.queue = append(g.queue, pre...)
	g.queue = append(g.queue, beat)
	if g.rng.Float64() < g.cfg.DoubleFireProb {
		g.queue = append(g.queue, Pulse{Delay: g.cfg.DoubleFireGap, Line: transport.BeatToken, Kind: PulseDoubleFire})
	}

	p := g.queue[0]
	g.queue = g.queue[1:]
	return p
}

// Sink receives emitted lines.
type Sink interface {
	Emit(line string) error
}

// WriterSink writes newline-terminated lines to W.
type WriterSink struct {
	W io.Writer
}

// Emit implements Sink.
func (s WriterSink) Emit(line string) error {
	_, err := io.WriteString(s.W, line+"\n")
	return err
}

// NATSSink publishes each line as one message on Subject.
type NATSSink struct {
	Conn    *nats.Conn
	Subject string
}

// Emit implements Sink.
func (s NATSSink) Emit(line string) error {
	return s.Conn.Publish(s.Subject, []byte(line))
}

// Run emits pulses to sink in real time until ctx is canceled or limit
// pulses were sent (0 means unlimited). onPulse, if set, is called after
// each emitted pulse.
func Run(ctx context.Context, g *Generator, sink Sink, limit int, onPulse func(Pulse)) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for n := 0; limit == 0 || n < limit; n++ {
		p := g.Next()
		timer.Reset(p.Delay)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if err := sink.Emit(p.Line); err != nil {
			return fmt.Errorf("emit %s: %w", p.Kind, err)
		}
		if onPulse != nil {
			onPulse(p)
		}
	}
	return nil
}
