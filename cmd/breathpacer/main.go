// Package main is the breathpacer CLI: it turns a stream of heartbeat
// pulses into a breathing guide that expands and contracts over a fixed
// number of beats.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"breathpacer/internal/config"
)

const version = "0.3.0"

var (
	configPath string
	logLevel   string
	logFile    string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	ef := &engineFlags{}
	rootCmd := &cobra.Command{
		Use:           "breathpacer",
		Short:         "Heartbeat-paced breathing display",
		Long:          "breathpacer reads BEAT lines from a pulse sensor, estimates the beat period and\ndrives a ring that grows and shrinks once every N beats.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEngineCmd(cmd, ef)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml or .toml; default $XDG_CONFIG_HOME/breathpacer/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: error, warn, info, debug")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file")
	ef.register(rootCmd)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	ef := &engineFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEngineCmd(cmd, ef)
		},
	}
	ef.register(cmd)
	return cmd
}

func newConfigCmd() *cobra.Command {
	ef := &engineFlags{}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, ef)
			if err != nil {
				return err
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	ef.register(cmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "breathpacer v%s\n", version)
		},
	}
}

// loadConfig layers defaults, the config file and set flags, then
// validates.
func loadConfig(cmd *cobra.Command, ef *engineFlags) (config.Config, error) {
	cfg := config.DefaultConfig()

	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
			path = config.DefaultConfigPath()
		}
	}
	if path != "" {
		loaded, err := config.LoadConfigFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	o := ef.overrides(cmd)
	if cmd.Flags().Changed("log-level") {
		o.LogLevel = &logLevel
	}
	if cmd.Flags().Changed("log-file") {
		o.LogFile = &logFile
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// engineFlags binds the config overrides to one command's flag set.
type engineFlags struct {
	device string
	baud   int

	beatsPerBreath int
	capacity       int
	window         int
	minInterval    float64
	defaultBPM     float64
	refreshHz      int
	idleSleepMS    int

	display string

	ws     bool
	wsAddr string

	nats        bool
	natsURL     string
	natsSubject string

	ipc       bool
	ipcSocket string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	d := config.DefaultConfig()
	fs := cmd.Flags()

	fs.StringVarP(&f.device, "device", "d", d.Serial.Device, `serial device with the pulse sensor ("-" reads stdin, "" disables)`)
	fs.IntVar(&f.baud, "baud", d.Serial.Baud, "serial baud rate")

	fs.IntVarP(&f.beatsPerBreath, "beats-per-breath", "n", d.Engine.BeatsPerBreath, "beats in one breath cycle")
	fs.IntVar(&f.capacity, "beat-record-capacity", d.Engine.BeatRecordCapacity, "beat timestamps kept in history")
	fs.IntVar(&f.window, "bpm-window", d.Engine.BPMWindowLength, "gaps used for the period estimate")
	fs.Float64Var(&f.minInterval, "min-beat-interval", d.Engine.MinBeatIntervalSec, "debounce window in seconds")
	fs.Float64Var(&f.defaultBPM, "default-bpm", d.Engine.DefaultBPM, "assumed rate before enough beats arrive")
	fs.IntVar(&f.refreshHz, "refresh-hz", d.Engine.RefreshRateHz, "display refresh rate")
	fs.IntVar(&f.idleSleepMS, "idle-sleep-ms", d.Engine.IdleSleepMS, "loop sleep when idle, in ms")

	fs.StringVar(&f.display, "display", d.Display.Mode, "local display: tui, log or none")

	fs.BoolVar(&f.ws, "ws", d.WebSocket.Enabled, "serve frames over websocket")
	fs.StringVar(&f.wsAddr, "ws-addr", d.WebSocket.Addr, "websocket listen address")

	fs.BoolVar(&f.nats, "nats", d.NATS.Enabled, "also take beats from NATS")
	fs.StringVar(&f.natsURL, "nats-url", d.NATS.URL, "NATS server url")
	fs.StringVar(&f.natsSubject, "nats-subject", d.NATS.Subject, "NATS subject carrying BEAT messages")

	fs.BoolVar(&f.ipc, "ipc", d.IPC.Enabled, "accept beats on the control socket")
	fs.StringVar(&f.ipcSocket, "ipc-socket", d.IPC.SocketPath, "control socket path")
}

// overrides returns only the flags the user actually set, so file values
// survive flag defaults.
func (f *engineFlags) overrides(cmd *cobra.Command) config.FlagOverrides {
	fs := cmd.Flags()
	var o config.FlagOverrides
	if fs.Changed("device") {
		o.SerialDevice = &f.device
	}
	if fs.Changed("baud") {
		o.SerialBaud = &f.baud
	}
	if fs.Changed("beats-per-breath") {
		o.BeatsPerBreath = &f.beatsPerBreath
	}
	if fs.Changed("beat-record-capacity") {
		o.BeatRecordCapacity = &f.capacity
	}
	if fs.Changed("bpm-window") {
		o.BPMWindowLength = &f.window
	}
	if fs.Changed("min-beat-interval") {
		o.MinBeatIntervalSec = &f.minInterval
	}
	if fs.Changed("default-bpm") {
		o.DefaultBPM = &f.defaultBPM
	}
	if fs.Changed("refresh-hz") {
		o.RefreshRateHz = &f.refreshHz
	}
	if fs.Changed("idle-sleep-ms") {
		o.IdleSleepMS = &f.idleSleepMS
	}
	if fs.Changed("display") {
		o.DisplayMode = &f.display
	}
	if fs.Changed("ws") {
		o.WebSocketEnabled = &f.ws
	}
	if fs.Changed("ws-addr") {
		o.WebSocketAddr = &f.wsAddr
	}
	if fs.Changed("nats") {
		o.NATSEnabled = &f.nats
	}
	if fs.Changed("nats-url") {
		o.NATSURL = &f.natsURL
	}
	if fs.Changed("nats-subject") {
		o.NATSSubject = &f.natsSubject
	}
	if fs.Changed("ipc") {
		o.IPCEnabled = &f.ipc
	}
	if fs.Changed("ipc-socket") {
		o.IPCSocketPath = &f.ipcSocket
	}
	return o
}

// isCleanExit reports errors that end a run normally.
func isCleanExit(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
