// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Chaperone-daemon is the display-side control process. It owns the
// display connection, samples window content for frame subscribers,
// and arbitrates every synthetic input action against the current
// control mode before anything reaches the display.
//
// On startup:
//  1. Loads configuration from --config (or CHAPERONE_CONFIG, or
//     built-in defaults).
//  2. Connects to the display host: X11, or a synthetic in-process
//     display with --host fake for protocol development.
//  3. Builds the pipeline: event hub, frame capture, injector, gate.
//  4. Opens the command, event, and frame channel listeners.
//  5. Runs until SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaperone-project/chaperone/capture"
	"github.com/chaperone-project/chaperone/control"
	"github.com/chaperone-project/chaperone/gate"
	"github.com/chaperone-project/chaperone/host"
	"github.com/chaperone-project/chaperone/host/x11"
	"github.com/chaperone-project/chaperone/inject"
	"github.com/chaperone-project/chaperone/lib/config"
	"github.com/chaperone-project/chaperone/lib/version"
	"github.com/chaperone-project/chaperone/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		hostKind    string
		display     string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to chaperone.yaml (default $CHAPERONE_CONFIG, else built-in defaults)")
	flag.StringVar(&hostKind, "host", "x11", "display host backend: x11 or fake")
	flag.StringVar(&display, "display", "", "X display to connect to (default $DISPLAY)")
	flag.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("chaperone-daemon %s\n", version.Info())
		return nil
	}

	cfg, source, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.LogLevel()
	if logLevel != "" {
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "source", source)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	displayHost, err := openHost(hostKind, display, cfg, logger)
	if err != nil {
		return err
	}
	defer displayHost.Close()

	hub := control.NewHub(control.HubOptions{
		QueueDepth: cfg.Channel.EventQueue,
		Logger:     logger,
	})

	capturer := capture.New(capture.Options{
		Host: displayHost,
		Encoder: capture.NewEncoder(capture.EncoderOptions{
			Codec:        cfg.Codec(),
			Quality:      cfg.Frame.Quality,
			Scale:        cfg.Frame.Scale,
			MaxDimension: cfg.Frame.MaxDimension,
			Compression:  cfg.Compression(),
		}),
		Emitter:    hub,
		Logger:     logger,
		FrameRate:  cfg.Frame.Rate,
		QueueDepth: cfg.Frame.QueueDepth,
	})

	injector := inject.New(inject.Options{
		Host:    displayHost,
		Emitter: hub,
		Logger:  logger,
	})

	arbiter := gate.New(gate.Options{
		Mode:            cfg.Mode(),
		KillSwitch:      cfg.KillSwitch(),
		ConflictWindow:  cfg.ConflictWindow(),
		ApprovalTimeout: cfg.ApprovalTimeout(),
		AgentMaySetMode: cfg.Gate.AgentMaySetMode,
		Windows:         capturer,
		Injector:        injector,
		Emitter:         hub,
		Logger:          logger,
	})

	// The endpoints were checked by Validate; parse cannot fail here.
	commandEndpoint, _ := wire.ParseEndpoint(cfg.Channel.Commands)
	eventEndpoint, _ := wire.ParseEndpoint(cfg.Channel.Events)
	frameEndpoint, _ := wire.ParseEndpoint(cfg.Channel.Frames)

	commandServer, err := control.NewCommandServer(control.CommandOptions{
		Endpoint:     commandEndpoint,
		Gate:         arbiter,
		Capture:      capturer,
		Clipboard:    displayHost,
		OperatorUIDs: cfg.Channel.OperatorUIDs,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("opening command endpoint: %w", err)
	}
	eventServer, err := control.NewEventServer(control.EventOptions{
		Endpoint: eventEndpoint,
		Hub:      hub,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening event endpoint: %w", err)
	}
	frameServer, err := control.NewFrameServer(control.FrameOptions{
		Endpoint: frameEndpoint,
		Capture:  capturer,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening frame endpoint: %w", err)
	}

	go injector.Run(ctx)
	go capturer.Run(ctx)
	go func() {
		if err := commandServer.Serve(ctx); err != nil {
			logger.Error("command channel failed", "error", err)
		}
	}()
	go func() {
		if err := eventServer.Serve(ctx); err != nil {
			logger.Error("event channel failed", "error", err)
		}
	}()
	go func() {
		if err := frameServer.Serve(ctx); err != nil {
			logger.Error("frame channel failed", "error", err)
		}
	}()

	// Host callbacks start flowing here; everything downstream of the
	// sink must already be in place.
	sink := &pipelineSink{
		capture:  capturer,
		gate:     arbiter,
		injector: injector,
		hub:      hub,
	}
	if err := displayHost.Start(sink); err != nil {
		return fmt.Errorf("starting display host: %w", err)
	}

	logger.Info("daemon ready",
		"host", hostKind,
		"mode", cfg.Mode(),
		"kill_switch", cfg.KillSwitch().String(),
		"commands", commandServer.Addr().String(),
		"events", eventServer.Addr().String(),
		"frames", frameServer.Addr().String(),
	)

	go statsLoop(ctx, cfg.StatsInterval(), logger, arbiter, capturer, injector, hub)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// loadConfig resolves the configuration source: the --config flag,
// then CHAPERONE_CONFIG, then built-in defaults. The returned source
// string names which one won, for the startup log.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", path, err)
		}
		return cfg, path, nil
	}
	if os.Getenv("CHAPERONE_CONFIG") != "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, "", err
		}
		return cfg, os.Getenv("CHAPERONE_CONFIG"), nil
	}
	return config.Default(), "defaults", nil
}

// openHost connects the selected display backend.
func openHost(kind, display string, cfg *config.Config, logger *slog.Logger) (host.Host, error) {
	switch kind {
	case "x11":
		h, err := x11.New(x11.Options{
			Display:    display,
			KillSwitch: cfg.KillSwitch(),
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to display: %w", err)
		}
		return h, nil
	case "fake":
		logger.Warn("running against a synthetic display; nothing real is captured or injected")
		return host.NewFake(), nil
	}
	return nil, fmt.Errorf("unknown host backend %q (want x11 or fake)", kind)
}

// pipelineSink fans host callbacks out to the pipeline stages.
// Window lifecycle and damage feed the capture registry, human input
// feeds the gate, and display state gates the injector. Clipboard and
// display transitions are also published on the event channel.
type pipelineSink struct {
	capture  *capture.Capture
	gate     *gate.Gate
	injector *inject.Injector
	hub      *control.Hub
}

var _ host.Sink = (*pipelineSink)(nil)

func (s *pipelineSink) WindowCreated(info wire.WindowInfo) {
	s.capture.WindowCreated(info)
}

func (s *pipelineSink) WindowUpdated(info wire.WindowInfo) {
	s.capture.WindowUpdated(info)
}

func (s *pipelineSink) WindowDestroyed(window uint32) {
	s.capture.WindowDestroyed(window)
}

func (s *pipelineSink) FocusChanged(window uint32) {
	s.capture.FocusChanged(window)
}

func (s *pipelineSink) Damage(window uint32) {
	s.capture.Damage(window)
}

func (s *pipelineSink) HumanInput(action wire.Action) {
	s.gate.HumanInput(action)
}

func (s *pipelineSink) ClipboardChanged(content string) {
	s.hub.Emit(wire.EventClipboardChanged, wire.ClipboardEvent{Content: content})
}

func (s *pipelineSink) DisplayState(online bool, reason string) {
	s.injector.SetOnline(online)
	s.hub.Emit(wire.EventDisplayState, wire.DisplayStateEvent{Online: online, Reason: reason})
}

// statsLoop periodically logs pipeline counters.
func statsLoop(ctx context.Context, interval time.Duration, logger *slog.Logger, arbiter *gate.Gate, capturer *capture.Capture, injector *inject.Injector, hub *control.Hub) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gateStats := arbiter.Stats()
			captureStats := capturer.Stats()
			injectStats := injector.Stats()
			hubStats := hub.Stats()
			logger.Debug("pipeline stats",
				"mode", gateStats.Mode,
				"latched", gateStats.Latched,
				"approvals_pending", gateStats.ApprovalsPending,
				"agent_forwarded", gateStats.AgentForwarded,
				"agent_rejected", gateStats.AgentRejected,
				"human_forwarded", gateStats.HumanForwarded,
				"conflicts", gateStats.Conflicts,
				"windows", captureStats.Windows,
				"frames_published", captureStats.Published,
				"frames_unchanged", captureStats.Unchanged,
				"capture_errors", captureStats.Errors,
				"injected", injectStats.Injected,
				"inject_failed", injectStats.Failed,
				"events_published", hubStats.Published,
				"events_dropped", hubStats.Dropped,
			)
		}
	}
}
