// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaperone-project/chaperone/wire"
)

// Config is the master configuration for the chaperone daemon.
type Config struct {
	// Frame configures the capture pipeline.
	Frame FrameConfig `yaml:"frame"`

	// Gate configures the input gate and control modes.
	Gate GateConfig `yaml:"gate"`

	// Channel configures the three control channel endpoints.
	Channel ChannelConfig `yaml:"channel"`

	// Log configures daemon logging.
	Log LogConfig `yaml:"log"`
}

// FrameConfig configures the capture pipeline.
type FrameConfig struct {
	// Rate is the maximum sampling frequency in frames per second.
	// Unchanged windows publish nothing regardless of the rate.
	// Default: 3.0
	Rate float64 `yaml:"rate"`

	// Codec selects the frame encoding: jpeg, png, or raw.
	// Default: jpeg
	Codec string `yaml:"codec"`

	// Quality is the JPEG quality, 1 to 100.
	// Default: 70
	Quality int `yaml:"quality"`

	// Scale multiplies the captured resolution before encoding.
	// Must be in (0, 1].
	// Default: 1.0
	Scale float64 `yaml:"scale"`

	// MaxDimension caps the longer edge of encoded frames in pixels;
	// larger surfaces are scaled down to fit.
	// Default: 1920
	MaxDimension int `yaml:"max_dimension"`

	// Compression applies to raw-codec pixel data: none, lz4, or zstd.
	// Default: none
	Compression string `yaml:"compression"`

	// QueueDepth is the per-window frame ring size. When a consumer
	// falls behind, the oldest retained frame is dropped first.
	// Default: 5
	QueueDepth int `yaml:"queue_depth"`
}

// GateConfig configures the input gate.
type GateConfig struct {
	// DefaultMode is the control mode at startup: observer,
	// supervised, autonomous, or collaborative.
	// Default: observer
	DefaultMode string `yaml:"default_mode"`

	// KillSwitch is the key combination that forces observer mode
	// from any other mode.
	// Default: ctrl+Pause
	KillSwitch string `yaml:"kill_switch"`

	// ApprovalTimeout is how long a supervised action waits for an
	// operator decision before timing out.
	// Default: 30s
	ApprovalTimeout string `yaml:"approval_timeout"`

	// ConflictWindow is the collaborative-mode interval within which
	// a human action suppresses agent actions on the same window.
	// Default: 500ms
	ConflictWindow string `yaml:"conflict_window"`

	// AgentMaySetMode allows agent sessions to switch modes over the
	// command channel. Operators always can.
	// Default: true
	AgentMaySetMode bool `yaml:"agent_may_set_mode"`
}

// ChannelConfig configures the three control channel endpoints.
// Endpoints use unix:///absolute/path or tcp://host:port form.
type ChannelConfig struct {
	// Commands is the request/response endpoint.
	// Default: unix:///tmp/chaperone/commands.sock
	Commands string `yaml:"commands"`

	// Events is the event stream endpoint.
	// Default: unix:///tmp/chaperone/events.sock
	Events string `yaml:"events"`

	// Frames is the frame stream endpoint.
	// Default: unix:///tmp/chaperone/frames.sock
	Frames string `yaml:"frames"`

	// EventQueue is the per-subscriber event buffer size. A slow
	// subscriber loses its oldest events, never the daemon's time.
	// Default: 100
	EventQueue int `yaml:"event_queue"`

	// OperatorUIDs lists the uids allowed to claim the operator role
	// over unix sockets, checked via SO_PEERCRED. Empty disables the
	// check and any peer may claim operator.
	OperatorUIDs []uint32 `yaml:"operator_uids"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// StatsInterval is how often pipeline counters are logged.
	// Default: 30s
	StatsInterval string `yaml:"stats_interval"`
}

// Default returns the default configuration. These defaults are a
// complete working setup for a local daemon; the config file only
// needs to name what differs.
func Default() *Config {
	return &Config{
		Frame: FrameConfig{
			Rate:         3.0,
			Codec:        "jpeg",
			Quality:      70,
			Scale:        1.0,
			MaxDimension: 1920,
			Compression:  "none",
			QueueDepth:   5,
		},
		Gate: GateConfig{
			DefaultMode:     "observer",
			KillSwitch:      "ctrl+Pause",
			ApprovalTimeout: "30s",
			ConflictWindow:  "500ms",
			AgentMaySetMode: true,
		},
		Channel: ChannelConfig{
			Commands:   "unix:///tmp/chaperone/commands.sock",
			Events:     "unix:///tmp/chaperone/events.sock",
			Frames:     "unix:///tmp/chaperone/frames.sock",
			EventQueue: 100,
		},
		Log: LogConfig{
			Level:         "info",
			StatsInterval: "30s",
		},
	}
}

// Load loads configuration from the CHAPERONE_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks - if CHAPERONE_CONFIG is not set, this
// fails. This ensures deterministic, auditable configuration with no
// hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("CHAPERONE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CHAPERONE_CONFIG environment variable not set; " +
			"set it to the path of your chaperone.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The file is parsed over [Default], so absent keys keep their
// defaults. Environment variables do not override config values; the
// only expansion performed is ${HOME} and similar variables in
// endpoint addresses, for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand ${HOME} and similar variables in endpoint addresses.
	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// endpoint addresses.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
	}

	c.Channel.Commands = expandVars(c.Channel.Commands, vars)
	c.Channel.Events = expandVars(c.Channel.Events, vars)
	c.Channel.Frames = expandVars(c.Channel.Frames, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once, joined into a single error.
func (c *Config) Validate() error {
	var errs []error

	if c.Frame.Rate <= 0 {
		errs = append(errs, fmt.Errorf("frame.rate must be positive, got %v", c.Frame.Rate))
	}
	if _, err := wire.ParseCodec(c.Frame.Codec); err != nil {
		errs = append(errs, fmt.Errorf("frame.codec: %w", err))
	}
	if c.Frame.Quality < 1 || c.Frame.Quality > 100 {
		errs = append(errs, fmt.Errorf("frame.quality must be in 1..100, got %d", c.Frame.Quality))
	}
	if c.Frame.Scale <= 0 || c.Frame.Scale > 1 {
		errs = append(errs, fmt.Errorf("frame.scale must be in (0, 1], got %v", c.Frame.Scale))
	}
	if c.Frame.MaxDimension < 1 {
		errs = append(errs, fmt.Errorf("frame.max_dimension must be at least 1, got %d", c.Frame.MaxDimension))
	}
	if _, err := wire.ParseCompression(c.Frame.Compression); err != nil {
		errs = append(errs, fmt.Errorf("frame.compression: %w", err))
	}
	if c.Frame.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("frame.queue_depth must be at least 1, got %d", c.Frame.QueueDepth))
	}

	if _, err := wire.ParseMode(c.Gate.DefaultMode); err != nil {
		errs = append(errs, fmt.Errorf("gate.default_mode: %w", err))
	}
	if _, err := wire.ParseCombo(c.Gate.KillSwitch); err != nil {
		errs = append(errs, fmt.Errorf("gate.kill_switch: %w", err))
	}
	if err := validateDuration("gate.approval_timeout", c.Gate.ApprovalTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := validateDuration("gate.conflict_window", c.Gate.ConflictWindow); err != nil {
		errs = append(errs, err)
	}

	if _, err := wire.ParseEndpoint(c.Channel.Commands); err != nil {
		errs = append(errs, fmt.Errorf("channel.commands: %w", err))
	}
	if _, err := wire.ParseEndpoint(c.Channel.Events); err != nil {
		errs = append(errs, fmt.Errorf("channel.events: %w", err))
	}
	if _, err := wire.ParseEndpoint(c.Channel.Frames); err != nil {
		errs = append(errs, fmt.Errorf("channel.frames: %w", err))
	}
	if c.Channel.EventQueue < 1 {
		errs = append(errs, fmt.Errorf("channel.event_queue must be at least 1, got %d", c.Channel.EventQueue))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := validateDuration("log.stats_interval", c.Log.StatsInterval); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateDuration(name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return nil
}

// The typed accessors below parse string fields into their wire or
// time forms. They are meant for use after Validate has passed;
// values that fail to parse fall back to the documented default, so
// a daemon never starts with a zero mode or a zero timeout.

// Mode returns the parsed gate.default_mode.
func (c *Config) Mode() wire.Mode {
	mode, err := wire.ParseMode(c.Gate.DefaultMode)
	if err != nil {
		return wire.ModeObserver
	}
	return mode
}

// KillSwitch returns the parsed gate.kill_switch combination.
func (c *Config) KillSwitch() wire.Combo {
	combo, err := wire.ParseCombo(c.Gate.KillSwitch)
	if err != nil {
		combo, _ = wire.ParseCombo("ctrl+Pause")
	}
	return combo
}

// ApprovalTimeout returns the parsed gate.approval_timeout.
func (c *Config) ApprovalTimeout() time.Duration {
	return parseDuration(c.Gate.ApprovalTimeout, 30*time.Second)
}

// ConflictWindow returns the parsed gate.conflict_window.
func (c *Config) ConflictWindow() time.Duration {
	return parseDuration(c.Gate.ConflictWindow, 500*time.Millisecond)
}

// StatsInterval returns the parsed log.stats_interval.
func (c *Config) StatsInterval() time.Duration {
	return parseDuration(c.Log.StatsInterval, 30*time.Second)
}

// Codec returns the parsed frame.codec.
func (c *Config) Codec() wire.Codec {
	codec, err := wire.ParseCodec(c.Frame.Codec)
	if err != nil {
		return wire.CodecJPEG
	}
	return codec
}

// Compression returns the parsed frame.compression.
func (c *Config) Compression() wire.Compression {
	compression, err := wire.ParseCompression(c.Frame.Compression)
	if err != nil {
		return wire.CompressionNone
	}
	return compression
}

// LogLevel returns the parsed log.level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
