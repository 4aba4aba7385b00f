// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like propose) return an
		// ExitError with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

// root builds the complete chaperone CLI command tree.
func root() *cli.Command {
	return &cli.Command{
		Name: "chaperone",
		Description: `Chaperone: arbitrated control of an X11 display.

Inspect and steer a chaperone daemon: switch control modes, decide
pending agent actions, watch windows and events, pull frames, and
push test actions through the arbitration gate.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			windowsCommand(),
			clipboardCommand(),
			setModeCommand(),
			approvalsCommand(),
			approveCommand(),
			rejectCommand(),
			screenshotCommand(),
			eventsCommand(),
			proposeCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("chaperone %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Show the control mode and what the daemon is tracking",
				Command:     "chaperone status",
			},
			{
				Description: "Put the display under supervised control",
				Command:     "chaperone set-mode supervised",
			},
			{
				Description: "Decide a pending agent action",
				Command:     "chaperone approve 7",
			},
			{
				Description: "Save a screenshot of window 0x2a",
				Command:     "chaperone screenshot 0x2a -o shot.jpg",
			},
			{
				Description: "Watch the event stream, reconnecting across daemon restarts",
				Command:     "chaperone events --follow",
			},
			{
				Description: "Run a scripted action sequence through the gate",
				Command:     "chaperone propose --file smoke.jsonc",
			},
		},
	}
}

// commandContext returns a context cancelled by SIGINT or SIGTERM,
// additionally bounded by timeout when positive. Streaming commands
// pass zero and run until interrupted.
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
