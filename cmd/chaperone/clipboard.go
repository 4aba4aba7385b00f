// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/wire"
)

type clipboardParams struct {
	cli.JSONOutput
	cli.Endpoints
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

func clipboardCommand() *cli.Command {
	var params clipboardParams

	return &cli.Command{
		Name:    "clipboard",
		Summary: "Print the display's clipboard content",
		Description: `Print the current clipboard selection of the mediated display.
Writing the clipboard goes through the gate instead:

    chaperone propose set_clipboard --text "..."`,
		Usage: "chaperone clipboard [flags]",
		Examples: []cli.Example{
			{
				Description: "Pipe the clipboard into a file",
				Command:     "chaperone clipboard > selection.txt",
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

			content, err := client.ClipboardContent(ctx)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(struct {
				Content string `json:"content"`
			}{content}); done {
				return err
			}

			// Raw content for pipes; a newline for humans so the shell
			// prompt does not glue onto the last line.
			os.Stdout.WriteString(content)
			if term.IsTerminal(int(os.Stdout.Fd())) && content != "" && !strings.HasSuffix(content, "\n") {
				fmt.Println()
			}
			return nil
		},
	}
}
