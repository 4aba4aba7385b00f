// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/wire"
)

type setModeParams struct {
	cli.Endpoints
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

func setModeCommand() *cli.Command {
	var params setModeParams

	return &cli.Command{
		Name:    "set-mode",
		Summary: "Switch the control mode",
		Description: `Switch the display's control mode. The modes:

  observer       The agent watches but cannot act. Human input passes
                 through untouched. The safe default.
  supervised     Every agent action waits for approve/reject.
  autonomous     The agent acts freely; ordinary human input is
                 suppressed. The kill switch always works.
  collaborative  Both act; the human wins conflicts over the same
                 window.

An operator set-mode also releases the kill-switch latch. Leaving
supervised mode cancels any still-pending approvals.`,
		Usage: "chaperone set-mode <mode> [flags]",
		Examples: []cli.Example{
			{
				Description: "Hold every agent action for approval",
				Command:     "chaperone set-mode supervised",
			},
			{
				Description: "Hand the display to the agent",
				Command:     "chaperone set-mode autonomous",
			},
			{
				Description: "Release a kill-switch latch and go back to watching",
				Command:     "chaperone set-mode observer",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("mode argument required (observer, supervised, autonomous, or collaborative)")
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}
			mode, err := wire.ParseMode(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(params.Timeout)
			defer cancel()

			client, err := params.DialCommands(ctx, wire.RoleOperator)
			if err != nil {
				return err
			}
			defer client.Close()

			previous := client.InitialMode()
			result, err := client.SetMode(ctx, mode)
			if err != nil {
				return err
			}

			if result.Mode == previous {
				fmt.Printf("mode: %s (unchanged)\n", result.Mode)
			} else {
				fmt.Printf("mode: %s (was %s)\n", result.Mode, previous)
			}
			return nil
		},
	}
}
