// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/wire"
)

type statusParams struct {
	cli.JSONOutput
	cli.Endpoints
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

// statusReport is the assembled status snapshot. The daemon has no
// single status command; this is three queries over one session.
type statusReport struct {
	Session   string           `json:"session"`
	Mode      wire.Mode        `json:"mode"`
	Latched   bool             `json:"latched"`
	Windows   int              `json:"windows"`
	Focused   *wire.WindowInfo `json:"focused,omitempty"`
	Approvals int              `json:"approvals"`
}

func statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show control mode, tracked windows, and pending approvals",
		Description: `Show a snapshot of the daemon's state: the active control mode, the
kill-switch latch, how many windows are tracked and which one holds
focus, and how many agent actions are waiting for a decision.

The kill-switch latch reads "latched" after the emergency combo fired;
it stays latched (refusing mode changes from the agent) until an
operator runs set-mode.`,
		Usage: "chaperone status [flags]",
		Examples: []cli.Example{
			{
				Description: "Human-readable snapshot",
				Command:     "chaperone status",
			},
			{
				Description: "Snapshot as JSON for scripting",
				Command:     "chaperone status --json",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := commandContext(params.Timeout)
			defer cancel()

			client, err := params.DialCommands(ctx, wire.RoleOperator)
			if err != nil {
				return err
			}
			defer client.Close()

			mode, err := client.Mode(ctx)
			if err != nil {
				return err
			}
			windows, err := client.Windows(ctx)
			if err != nil {
				return err
			}
			approvals, err := client.Approvals(ctx)
			if err != nil {
				return err
			}

			report := statusReport{
				Session:   client.Session(),
				Mode:      mode.Mode,
				Latched:   mode.Latched,
				Windows:   len(windows),
				Approvals: len(approvals),
			}
			for i := range windows {
				if windows[i].Focused {
					report.Focused = &windows[i]
					break
				}
			}

			if done, err := params.EmitJSON(report); done {
				return err
			}

			latch := "clear"
			if report.Latched {
				latch = "latched (set-mode to release)"
			}
			fmt.Printf("mode:        %s\n", report.Mode)
			fmt.Printf("kill switch: %s\n", latch)
			fmt.Printf("windows:     %d tracked\n", report.Windows)
			if report.Focused != nil {
				fmt.Printf("focused:     %s %q (%s)\n",
					formatWindow(report.Focused.ID), report.Focused.Title, report.Focused.Class)
			} else {
				fmt.Printf("focused:     none\n")
			}
			fmt.Printf("approvals:   %d pending\n", report.Approvals)
			if report.Approvals > 0 {
				fmt.Printf("\nRun 'chaperone approvals' to list them.\n")
			}
			return nil
		},
	}
}
