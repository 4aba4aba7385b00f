// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/wire"
)

type windowsParams struct {
	cli.JSONOutput
	cli.Endpoints
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

func windowsCommand() *cli.Command {
	var params windowsParams

	return &cli.Command{
		Name:    "windows",
		Summary: "List the windows the daemon tracks",
		Description: `List the visible top-level windows on the supervised display, with
their ids, geometry, and focus state. These ids are what screenshot
and propose take as targets.`,
		Usage: "chaperone windows [flags]",
		Examples: []cli.Example{
			{
				Description: "List tracked windows",
				Command:     "chaperone windows",
			},
			{
				Description: "Window list as JSON",
				Command:     "chaperone windows --json",
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

			windows, err := client.Windows(ctx)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(windows); done {
				return err
			}

			if len(windows) == 0 {
				fmt.Println("No windows tracked.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGEOMETRY\tFOCUS\tCLASS\tTITLE")
			for _, window := range windows {
				focus := ""
				if window.Focused {
					focus = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					formatWindow(window.ID), formatGeometry(window), focus, window.Class, window.Title)
			}
			return tw.Flush()
		},
	}
}
