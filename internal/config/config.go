// Package config loads the breathpacer configuration: defaults, a YAML or
// TOML file, and command-line overrides, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"breathpacer/internal/beat"
	"breathpacer/internal/ipc"
	"breathpacer/internal/logging"
	"breathpacer/internal/transport"
)

// Display modes.
const (
	DisplayTUI  = "tui"
	DisplayLog  = "log"
	DisplayNone = "none"
)

// Config is the top-level configuration for the breathpacer daemon.
//
// Keep defaults and validation here so the rest of the code can assume a
// well-formed config.
type Config struct {
	Serial    SerialConfig    `yaml:"serial" toml:"serial"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Display   DisplayConfig   `yaml:"display" toml:"display"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	NATS      NATSConfig      `yaml:"nats" toml:"nats"`
	IPC       IPCConfig       `yaml:"ipc" toml:"ipc"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// SerialConfig selects the beat line source. Device "-" reads stdin and
// an empty device disables the line source.
type SerialConfig struct {
	Device string `yaml:"device" toml:"device"`
	Baud   int    `yaml:"baud" toml:"baud"`
}

// EngineConfig maps onto beat.Params plus loop timing.
type EngineConfig struct {
	BeatsPerBreath     int     `yaml:"beats_per_breath" toml:"beats_per_breath"`
	BeatRecordCapacity int     `yaml:"beat_record_capacity" toml:"beat_record_capacity"`
	BPMWindowLength    int     `yaml:"bpm_window_length" toml:"bpm_window_length"`
	MinBeatIntervalSec float64 `yaml:"min_beat_interval_sec" toml:"min_beat_interval_sec"`
	DefaultBPM         float64 `yaml:"default_bpm" toml:"default_bpm"`
	RefreshRateHz      int     `yaml:"refresh_rate_hz" toml:"refresh_rate_hz"`
	IdleSleepMS        int     `yaml:"idle_sleep_ms" toml:"idle_sleep_ms"`
}

// DisplayConfig picks the local display.
type DisplayConfig struct {
	Mode string `yaml:"mode" toml:"mode"` // tui, log or none
}

// WebSocketConfig controls the frame stream for browsers.
type WebSocketConfig struct {
	Enabled         bool   `yaml:"enabled" toml:"enabled"`
	Addr            string `yaml:"addr" toml:"addr"`
	Path            string `yaml:"path" toml:"path"`
	FrameIntervalMS int    `yaml:"frame_interval_ms" toml:"frame_interval_ms"`
}

// NATSConfig enables NATS as an extra beat source.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	URL     string `yaml:"url" toml:"url"`
	Subject string `yaml:"subject" toml:"subject"`
}

// IPCConfig enables the control socket.
type IPCConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	SocketPath string `yaml:"socket_path" toml:"socket_path"`
}

// LoggingConfig sets level and destination. An empty file means stdout,
// or nowhere while the terminal display owns the screen.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	p := beat.DefaultParams()
	return Config{
		Serial: SerialConfig{
			Device: "/dev/ttyACM0",
			Baud:   115200,
		},
		Engine: EngineConfig{
			BeatsPerBreath:     p.BeatsPerBreath,
			BeatRecordCapacity: p.BeatRecordCapacity,
			BPMWindowLength:    p.BPMWindowLength,
			MinBeatIntervalSec: p.MinBeatInterval,
			DefaultBPM:         p.DefaultBPM,
			RefreshRateHz:      p.RefreshRateHz,
			IdleSleepMS:        1,
		},
		Display: DisplayConfig{
			Mode: DisplayTUI,
		},
		WebSocket: WebSocketConfig{
			Enabled:         false,
			Addr:            "127.0.0.1:8088",
			Path:            "/ws",
			FrameIntervalMS: 50,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: transport.DefaultNATSSubject,
		},
		IPC: IPCConfig{
			Enabled:    false,
			SocketPath: ipc.DefaultSocketPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/breathpacer/config.yaml.
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return filepath.Join(".", "breathpacer.yaml")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "breathpacer", "config.yaml")
}

// LoadConfigFile reads a config file on top of the defaults. Files ending
// in .toml are decoded as TOML, everything else as YAML. Unknown keys are
// rejected in both formats.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	path = ExpandPath(path)
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(b), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return Config{}, fmt.Errorf("decode config toml: unknown keys: %s", strings.Join(keys, ", "))
		}
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments may follow the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from flags the user actually set. Nil
// pointers are ignored; non-nil pointers are applied even if zero.
type FlagOverrides struct {
	SerialDevice *string
	SerialBaud   *int

	BeatsPerBreath     *int
	BeatRecordCapacity *int
	BPMWindowLength    *int
	MinBeatIntervalSec *float64
	DefaultBPM         *float64
	RefreshRateHz      *int
	IdleSleepMS        *int

	DisplayMode *string

	WebSocketEnabled *bool
	WebSocketAddr    *string

	NATSEnabled *bool
	NATSURL     *string
	NATSSubject *string

	IPCEnabled    *bool
	IPCSocketPath *string

	LogLevel *string
	LogFile  *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	setString(&cfg.Serial.Device, o.SerialDevice)
	setInt(&cfg.Serial.Baud, o.SerialBaud)

	setInt(&cfg.Engine.BeatsPerBreath, o.BeatsPerBreath)
	setInt(&cfg.Engine.BeatRecordCapacity, o.BeatRecordCapacity)
	setInt(&cfg.Engine.BPMWindowLength, o.BPMWindowLength)
	setFloat(&cfg.Engine.MinBeatIntervalSec, o.MinBeatIntervalSec)
	setFloat(&cfg.Engine.DefaultBPM, o.DefaultBPM)
	setInt(&cfg.Engine.RefreshRateHz, o.RefreshRateHz)
	setInt(&cfg.Engine.IdleSleepMS, o.IdleSleepMS)

	setString(&cfg.Display.Mode, o.DisplayMode)

	setBool(&cfg.WebSocket.Enabled, o.WebSocketEnabled)
	setString(&cfg.WebSocket.Addr, o.WebSocketAddr)

	setBool(&cfg.NATS.Enabled, o.NATSEnabled)
	setString(&cfg.NATS.URL, o.NATSURL)
	setString(&cfg.NATS.Subject, o.NATSSubject)

	setBool(&cfg.IPC.Enabled, o.IPCEnabled)
	setString(&cfg.IPC.SocketPath, o.IPCSocketPath)

	setString(&cfg.Logging.Level, o.LogLevel)
	setString(&cfg.Logging.File, o.LogFile)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Serial
	if c.Serial.Device != "" && c.Serial.Device != "-" && c.Serial.Baud <= 0 {
		return errors.New("serial.baud must be > 0")
	}

	// Engine
	if err := c.ToParams().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Engine.IdleSleepMS < 0 {
		return errors.New("engine.idle_sleep_ms must be >= 0")
	}

	// Display
	switch c.Display.Mode {
	case DisplayTUI, DisplayLog, DisplayNone:
	default:
		return fmt.Errorf("display.mode must be %q, %q or %q", DisplayTUI, DisplayLog, DisplayNone)
	}

	// WebSocket
	if c.WebSocket.Enabled {
		if c.WebSocket.Addr == "" {
			return errors.New("websocket.enabled is true but websocket.addr is empty")
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return errors.New("websocket.path must start with /")
		}
	}
	if c.WebSocket.FrameIntervalMS < 0 {
		return errors.New("websocket.frame_interval_ms must be >= 0")
	}

	// NATS
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.New("nats.enabled is true but nats.url is empty")
		}
		if c.NATS.Subject == "" {
			return errors.New("nats.enabled is true but nats.subject is empty")
		}
	}

	// IPC
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return errors.New("ipc.enabled is true but ipc.socket_path is empty")
	}

	// A run needs at least one way to receive beats.
	if c.Serial.Device == "" && !c.NATS.Enabled && !c.IPC.Enabled {
		return errors.New("no beat source: set serial.device or enable nats or ipc")
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToParams converts the engine section into engine parameters.
func (c *Config) ToParams() beat.Params {
	return beat.Params{
		BeatsPerBreath:     c.Engine.BeatsPerBreath,
		BeatRecordCapacity: c.Engine.BeatRecordCapacity,
		BPMWindowLength:    c.Engine.BPMWindowLength,
		MinBeatInterval:    c.Engine.MinBeatIntervalSec,
		DefaultBPM:         c.Engine.DefaultBPM,
		RefreshRateHz:      c.Engine.RefreshRateHz,
	}
}

// IdleSleep returns the loop's idle yield.
func (c *Config) IdleSleep() time.Duration {
	return time.Duration(c.Engine.IdleSleepMS) * time.Millisecond
}

// FrameInterval returns the websocket frame coalescing window. A
// frame_interval_ms of 0 maps to a negative window, which disables
// coalescing.
func (c *Config) FrameInterval() time.Duration {
	if c.WebSocket.FrameIntervalMS == 0 {
		return -1
	}
	return time.Duration(c.WebSocket.FrameIntervalMS) * time.Millisecond
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
