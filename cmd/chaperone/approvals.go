// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/control"
	"github.com/chaperone-project/chaperone/wire"
)

type approvalsParams struct {
	cli.JSONOutput
	cli.Endpoints
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

func approvalsCommand() *cli.Command {
	var params approvalsParams

	return &cli.Command{
		Name:    "approvals",
		Summary: "List agent actions waiting for a decision",
		Description: `List the supervised-mode queue: agent actions the gate is holding
until an operator approves or rejects them. Each entry expires at its
deadline and resolves as timed out if nobody decides.`,
		Usage: "chaperone approvals [flags]",
		Examples: []cli.Example{
			{
				Description: "Show the pending queue",
				Command:     "chaperone approvals",
			},
			{
				Description: "Pending queue as JSON",
				Command:     "chaperone approvals --json",
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

			approvals, err := client.Approvals(ctx)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(approvals); done {
				return err
			}

			if len(approvals) == 0 {
				fmt.Println("No approvals pending.")
				return nil
			}

			now := time.Now()
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEXPIRES IN\tACTION")
			for _, pending := range approvals {
				fmt.Fprintf(tw, "%d\t%s\t%s\n",
					pending.Approval,
					formatCountdown(pending.Deadline, now),
					describeAction(pending.Request.Action))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Printf("\nDecide with 'chaperone approve <id>' or 'chaperone reject <id>'.\n")
			return nil
		},
	}
}

type decisionParams struct {
	cli.Endpoints
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

func approveCommand() *cli.Command {
	var params decisionParams

	return &cli.Command{
		Name:    "approve",
		Summary: "Release a pending agent action to the display",
		Description: `Approve a pending supervised-mode action by id. The action is handed
to the injector immediately; the resolution is also announced on the
event stream.`,
		Usage: "chaperone approve <id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Approve entry 7",
				Command:     "chaperone approve 7",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			return decide(&params, args, "approve", (*control.Client).Approve)
		},
	}
}

func rejectCommand() *cli.Command {
	var params decisionParams

	return &cli.Command{
		Name:    "reject",
		Summary: "Discard a pending agent action",
		Description: `Reject a pending supervised-mode action by id. The action is dropped
without touching the display; the agent sees the rejection on the
event stream.`,
		Usage: "chaperone reject <id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Reject entry 7",
				Command:     "chaperone reject 7",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			return decide(&params, args, "reject", (*control.Client).Reject)
		},
	}
}

// decide is the shared approve/reject body: parse the id, dial, call,
// and translate an unknown-approval refusal into a pointer at the
// listing command (the entry usually expired or was decided already).
func decide(params *decisionParams, args []string, verb string,
	call func(*control.Client, context.Context, uint64) error) error {

	if len(args) == 0 {
		return fmt.Errorf("approval id required (run 'chaperone approvals' to list)")
	}
	if len(args) > 1 {
		return fmt.Errorf("unexpected argument: %s", args[1])
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid approval id %q", args[0])
	}

	ctx, cancel := commandContext(params.Timeout)
	defer cancel()

	client, err := params.DialCommands(ctx, wire.RoleOperator)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := call(client, ctx, id); err != nil {
		if wire.IsGating(err, wire.ReasonUnknownApproval) {
			return fmt.Errorf("%w (already decided, expired, or flushed; run 'chaperone approvals')", err)
		}
		return err
	}
	fmt.Printf("approval %d: %sd\n", id, verb)
	return nil
}
