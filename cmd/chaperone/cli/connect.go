// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/chaperone-project/chaperone/control"
	"github.com/chaperone-project/chaperone/lib/config"
	"github.com/chaperone-project/chaperone/wire"
)

// Endpoints is the shared connection parameter block embedded in every
// command that talks to a daemon. It binds the --config, --commands,
// --events, and --frames flags and resolves them to concrete endpoint
// URLs with the same precedence everywhere:
//
//  1. An explicit endpoint flag (--commands, --events, --frames).
//  2. The configuration file named by --config.
//  3. The configuration file named by $CHAPERONE_CONFIG.
//  4. Built-in defaults (sockets under /tmp/chaperone).
//
// This keeps the CLI and the daemon in agreement about where the
// sockets live: point both at the same configuration file and every
// subcommand finds the daemon without further flags.
type Endpoints struct {
	Config   string
	Commands string
	Events   string
	Frames   string
}

// AddFlags binds the connection flags, satisfying [FlagBinder] so that
// parameter structs can embed Endpoints.
func (e *Endpoints) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&e.Config, "config", "", "daemon configuration file (default $CHAPERONE_CONFIG)")
	flagSet.StringVar(&e.Commands, "commands", "", "command endpoint URL (overrides configuration)")
	flagSet.StringVar(&e.Events, "events", "", "event endpoint URL (overrides configuration)")
	flagSet.StringVar(&e.Frames, "frames", "", "frame endpoint URL (overrides configuration)")
}

// Resolve returns the endpoint URLs after applying the precedence rules
// described on [Endpoints].
func (e *Endpoints) Resolve() (config.ChannelConfig, error) {
	channel := config.Default().Channel

	switch {
	case e.Config != "":
		cfg, err := config.LoadFile(e.Config)
		if err != nil {
			return config.ChannelConfig{}, err
		}
		channel = cfg.Channel
	case os.Getenv("CHAPERONE_CONFIG") != "":
		cfg, err := config.Load()
		if err != nil {
			return config.ChannelConfig{}, err
		}
		channel = cfg.Channel
	}

	if e.Commands != "" {
		channel.Commands = e.Commands
	}
	if e.Events != "" {
		channel.Events = e.Events
	}
	if e.Frames != "" {
		channel.Frames = e.Frames
	}
	return channel, nil
}

// DialCommands connects to the daemon's command endpoint with the given
// role and completes the protocol handshake. Dial failures are wrapped
// with a diagnosis of the most common causes.
func (e *Endpoints) DialCommands(ctx context.Context, role wire.Role) (*control.Client, error) {
	channel, err := e.Resolve()
	if err != nil {
		return nil, err
	}
	client, err := control.Dial(ctx, channel.Commands, role)
	if err != nil {
		return nil, diagnoseDial(channel.Commands, err)
	}
	return client, nil
}

// DialEvents connects to the daemon's event endpoint.
func (e *Endpoints) DialEvents(ctx context.Context) (*control.EventStream, error) {
	channel, err := e.Resolve()
	if err != nil {
		return nil, err
	}
	stream, err := control.DialEvents(ctx, channel.Events)
	if err != nil {
		return nil, diagnoseDial(channel.Events, err)
	}
	return stream, nil
}

// DialFrames connects to the daemon's frame endpoint, subscribed to the
// given windows (nil subscribes to all windows).
func (e *Endpoints) DialFrames(ctx context.Context, windows []uint32) (*control.FrameStream, error) {
	channel, err := e.Resolve()
	if err != nil {
		return nil, err
	}
	stream, err := control.DialFrames(ctx, channel.Frames, windows)
	if err != nil {
		return nil, diagnoseDial(channel.Frames, err)
	}
	return stream, nil
}

// diagnoseDial wraps a dial error with a hint for the failure modes an
// operator actually hits: daemon not started, daemon crashed leaving a
// stale socket, or a socket owned by another user.
func diagnoseDial(endpoint string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("dial %s: %w (is chaperone-daemon running?)", endpoint, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("dial %s: %w (socket exists but nothing is accepting; restart chaperone-daemon)", endpoint, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("dial %s: %w (check the socket's owner and mode)", endpoint, err)
	default:
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
}
