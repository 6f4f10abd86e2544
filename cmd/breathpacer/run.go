package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"breathpacer/internal/beat"
	"breathpacer/internal/config"
	"breathpacer/internal/display"
	"breathpacer/internal/ipc"
	"breathpacer/internal/logging"
	"breathpacer/internal/pacer"
	"breathpacer/internal/transport"
)

// remoteBeatQueue bounds beats from NATS and the control socket waiting
// for the engine.
const remoteBeatQueue = 64

func runEngineCmd(cmd *cobra.Command, ef *engineFlags) error {
	cfg, err := loadConfig(cmd, ef)
	if err != nil {
		return err
	}

	// The TUI needs a terminal; fall back to log lines otherwise.
	mode := cfg.Display.Mode
	fellBack := false
	if mode == config.DisplayTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
		mode = config.DisplayLog
		fellBack = true
	}

	out, closeLog, err := logging.Output(config.ExpandPath(cfg.Logging.File), mode == config.DisplayTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup(level, out)
	if fellBack {
		logger.Warn("stdout is not a terminal, using log display")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = runEngine(ctx, cfg, mode, logger)
	if err != nil && !isCleanExit(err, display.ErrQuit, transport.ErrClosed) {
		logger.Error("engine stopped", "error", err)
		return err
	}
	if errors.Is(err, transport.ErrClosed) {
		logger.Info("beat source closed")
	}
	return nil
}

// runEngine assembles sources, displays and servers around one pacer loop
// and runs them until the loop ends or ctx is canceled.
func runEngine(ctx context.Context, cfg config.Config, mode string, logger *slog.Logger) error {
	params := cfg.ToParams()
	state, err := beat.NewState(params)
	if err != nil {
		return err
	}
	clock := pacer.NewMonotonicClock()

	logger.Info("starting breathpacer",
		"version", version,
		"beats_per_breath", params.BeatsPerBreath,
		"bpm_window", params.BPMWindowLength,
		"default_bpm", params.DefaultBPM,
		"refresh_hz", params.RefreshRateHz,
	)

	g, gctx := errgroup.WithContext(ctx)

	// Beat sources.
	var sources []transport.Poller
	label := cfg.Serial.Device
	switch dev := cfg.Serial.Device; dev {
	case "":
	case "-":
		label = "stdin"
		sources = append(sources, transport.NewReaderSource(os.Stdin))
	default:
		port, err := transport.OpenSerial(config.ExpandPath(dev), cfg.Serial.Baud)
		if err != nil {
			return err
		}
		defer port.Close()
		logger.Info("serial port open", "device", port.Device(), "baud", cfg.Serial.Baud)
		sources = append(sources, transport.NewLineSource(port))
	}

	var remote *transport.ChanSource
	if cfg.NATS.Enabled || cfg.IPC.Enabled {
		remote = transport.NewChanSource(remoteBeatQueue)
		sources = append(sources, remote)
	}

	if cfg.NATS.Enabled {
		nc, err := transport.ConnectNATS(cfg.NATS.URL, "breathpacer")
		if err != nil {
			return err
		}
		defer nc.Drain()
		if _, err := transport.SubscribeBeats(nc, cfg.NATS.Subject, remote); err != nil {
			return err
		}
		logger.Info("subscribed to beats", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
		if label == "" {
			label = "nats:" + cfg.NATS.Subject
		}
	}

	if cfg.IPC.Enabled {
		srv := ipc.NewServer(config.ExpandPath(cfg.IPC.SocketPath), remote, logger)
		g.Go(func() error { return srv.Run(gctx) })
		if label == "" {
			label = "ipc"
		}
	}

	// Displays and listeners.
	var displays display.Multi
	notifiers := []pacer.Notifier{display.LogNotifier{Logger: logger}}

	switch mode {
	case config.DisplayTUI:
		opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithoutSignalHandler()}
		if cfg.Serial.Device == "-" {
			// stdin carries beats, so keys cannot be read from it.
			opts = append(opts, tea.WithInput(nil))
		}
		tui := display.NewTUIDisplay(label, opts...)
		displays = append(displays, tui)
		notifiers = append(notifiers, tui)
		g.Go(func() error { return tui.Run(gctx) })
	case config.DisplayLog:
		displays = append(displays, &display.LogDisplay{Logger: logger, Every: params.RefreshRateHz})
	}

	if cfg.WebSocket.Enabled {
		hub := display.NewHub(logger, display.HubConfig{})
		pub := display.NewPublisher(hub, logger, display.PublisherConfig{
			Start:               clock.Start(),
			FrameCoalesceWindow: cfg.FrameInterval(),
		})
		displays = append(displays, pub)
		notifiers = append(notifiers, pub)

		mux := http.NewServeMux()
		display.NewServer(logger, hub).Register(mux, cfg.WebSocket.Path)
		mux.Handle("/status", display.StatusHandler(hub, pub))

		g.Go(func() error { hub.Run(gctx); return nil })
		g.Go(func() error { pub.Run(gctx); return nil })
		g.Go(func() error { return display.RunHTTPServer(gctx, cfg.WebSocket.Addr, mux, logger) })
	}

	var disp pacer.Display = display.Discard{}
	if len(displays) > 0 {
		disp = displays
	}

	loop, err := pacer.New(pacer.Config{
		State:     state,
		Clock:     clock,
		Source:    transport.Merge(sources...),
		Display:   disp,
		Notifiers: notifiers,
		Logger:    logger,
		IdleSleep: cfg.IdleSleep(),
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		if err := loop.Run(gctx); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		// A clean loop exit ends every other goroutine too.
		return context.Canceled
	})

	err = g.Wait()

	snap := loop.Snapshot()
	logger.Info("breathpacer stopped",
		"accepted", snap.Accepted,
		"rejected", snap.Rejected,
		"cycles", snap.Cycles,
		"bpm", snap.BPM,
	)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
