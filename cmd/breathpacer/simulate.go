package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"breathpacer/internal/logging"
	"breathpacer/internal/sim"
	"breathpacer/internal/transport"
)

func newSimulateCmd() *cobra.Command {
	d := sim.DefaultConfig()
	var (
		cfg         = d
		count       int
		outPath     string
		useNATS     bool
		natsURL     string
		natsSubject string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Emit synthetic BEAT lines",
		Long: "simulate produces a realistic pulse stream: a base rate with jitter, a slow\n" +
			"respiratory modulation, occasional double triggers and garbage lines.\n\n" +
			"  breathpacer simulate | breathpacer --device -",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			g, err := sim.NewGenerator(cfg)
			if err != nil {
				return err
			}

			level := logging.LogLevelInfo
			if logLevel != "" {
				if level, err = logging.ParseLevel(logLevel); err != nil {
					return err
				}
			}
			logger := logging.Setup(level, cmd.ErrOrStderr())

			var sink sim.Sink
			switch {
			case useNATS:
				nc, err := transport.ConnectNATS(natsURL, "breathpacer-sim")
				if err != nil {
					return err
				}
				defer nc.Drain()
				sink = sim.NATSSink{Conn: nc, Subject: natsSubject}
				logger.Info("publishing beats", "url", natsURL, "subject", natsSubject)
			case outPath == "" || outPath == "-":
				sink = sim.WriterSink{W: cmd.OutOrStdout()}
			default:
				f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
				if err != nil {
					return fmt.Errorf("open output: %w", err)
				}
				defer f.Close()
				sink = sim.WriterSink{W: f}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return sim.Run(ctx, g, sink, count, func(p sim.Pulse) {
				logger.Debug("pulse", "kind", p.Kind, "delay", p.Delay)
			})
		},
	}

	fs := cmd.Flags()
	fs.Float64Var(&cfg.BPM, "bpm", d.BPM, "mean heart rate")
	fs.Float64Var(&cfg.Jitter, "jitter", d.Jitter, "gap stddev as a fraction of the period")
	fs.Float64Var(&cfg.RSADepth, "rsa", d.RSADepth, "respiratory rate modulation depth")
	fs.IntVar(&cfg.BeatsPerBreath, "beats-per-breath", d.BeatsPerBreath, "beats per modulation cycle")
	fs.Float64Var(&cfg.DoubleFireProb, "double-fire", d.DoubleFireProb, "probability of a spurious second trigger")
	fs.DurationVar(&cfg.DoubleFireGap, "double-fire-gap", d.DoubleFireGap, "delay of the spurious trigger")
	fs.Float64Var(&cfg.NoiseProb, "noise", d.NoiseProb, "probability of a garbage line")
	fs.Uint64Var(&cfg.Seed, "seed", d.Seed, "random seed")
	fs.IntVar(&count, "count", 0, "stop after this many lines (0 runs until interrupted)")
	fs.StringVarP(&outPath, "out", "o", "-", `write lines here ("-" is stdout; a pty path feeds a serial reader)`)
	fs.BoolVar(&useNATS, "nats", false, "publish to NATS instead of writing lines")
	fs.StringVar(&natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server url")
	fs.StringVar(&natsSubject, "nats-subject", transport.DefaultNATSSubject, "NATS subject")

	return cmd
}
