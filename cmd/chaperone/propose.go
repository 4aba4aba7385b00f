// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/wire"
)

type proposeParams struct {
	cli.Endpoints
	File    string        `flag:"file,f" desc:"JSONC action script: one action object or an array"`
	Window  string        `flag:"window,w" desc:"target window id (hex 0x.. or decimal)"`
	X       int           `flag:"x" desc:"x coordinate"`
	Y       int           `flag:"y" desc:"y coordinate"`
	Button  int           `flag:"button" desc:"pointer button (1 left, 2 middle, 3 right)"`
	DeltaX  int           `flag:"dx" desc:"horizontal scroll delta"`
	DeltaY  int           `flag:"dy" desc:"vertical scroll delta"`
	Key     string        `flag:"key" desc:"key combination, e.g. Return or ctrl+shift+t"`
	Text    string        `flag:"text" desc:"text for type_text or set_clipboard"`
	Width   int           `flag:"width" desc:"width for move_resize_window"`
	Height  int           `flag:"height" desc:"height for move_resize_window"`
	Timeout time.Duration `flag:"timeout" desc:"command timeout" default:"10s"`
}

func proposeCommand() *cli.Command {
	var params proposeParams

	return &cli.Command{
		Name:    "propose",
		Summary: "Submit actions through the gate, as an agent would",
		Description: `Submit input actions on the agent channel and report each outcome.
This exercises the same arbitration path a connected agent uses, which
makes it the tool for testing mode policy: in observer mode every
action is refused, in supervised mode it parks in the approval queue,
in autonomous mode it forwards immediately.

A single action is described by flags: the action kind as the
argument, the target and parameters as flags. Kinds: click,
double_click, right_click, mouse_move, mouse_down, mouse_up, scroll,
key_press, key_down, key_up, type_text, set_clipboard, focus_window,
close_window, move_resize_window.

With --file, actions come from a JSONC script (JSON with comments and
trailing commas): either one action object or an array, executed in
order. Fields mirror the flags: kind, window, x, y, button, dx, dy,
key, text, width, height.

Exit status is 0 when every action forwarded to the display, 2 when
any action was refused or parked for approval or arbitration.`,
		Usage: "chaperone propose <kind> [flags] | chaperone propose --file <script>",
		Examples: []cli.Example{
			{
				Description: "Click inside a window",
				Command:     "chaperone propose click -w 0x1a00003 --x 120 --y 40",
			},
			{
				Description: "Press a key combination",
				Command:     "chaperone propose key_press --key ctrl+s",
			},
			{
				Description: "Run a scripted sequence",
				Command:     "chaperone propose --file fill-form.jsonc",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			var actions []wire.Action
			switch {
			case params.File != "" && len(args) > 0:
				return errors.New("pass an action kind or --file, not both")
			case params.File != "":
				var err error
				actions, err = readActionScript(params.File)
				if err != nil {
					return err
				}
			case len(args) == 0:
				return errors.New("action kind required (or --file); see 'chaperone help propose'")
			case len(args) > 1:
				return fmt.Errorf("unexpected argument: %s", args[1])
			default:
				action, err := buildAction(&params, args[0])
				if err != nil {
					return err
				}
				actions = []wire.Action{action}
			}

			// Validate the whole script before touching the daemon so
			// a typo in action 7 does not leave actions 1..6 executed.
			for i, action := range actions {
				if err := action.Validate(); err != nil {
					if len(actions) == 1 {
						return err
					}
					return fmt.Errorf("action %d: %w", i+1, err)
				}
			}

			ctx, cancel := commandContext(params.Timeout)
			defer cancel()

			client, err := params.DialCommands(ctx, wire.RoleAgent)
			if err != nil {
				return err
			}
			defer client.Close()

			parked := 0
			for i, action := range actions {
				result, err := client.Propose(ctx, action)
				var outcome string
				switch {
				case err == nil && result.Status == wire.ProposeForwarded:
					outcome = "forwarded"
				case err == nil && result.Status == wire.ProposePending:
					parked++
					outcome = fmt.Sprintf("pending approval #%d", result.Approval)
				case err == nil && result.Status == wire.ProposeHeld:
					parked++
					outcome = "held for arbitration"
				case err == nil:
					return fmt.Errorf("action %d: unknown propose status %q", i+1, result.Status)
				case isRefusal(err):
					parked++
					detail := wire.DetailOf(err)
					outcome = fmt.Sprintf("refused (%s: %s)", detail.Reason, detail.Message)
				default:
					// Transport failure: the session is gone, stop.
					return fmt.Errorf("action %d: %w", i+1, err)
				}
				fmt.Printf("[%d] %s: %s\n", i+1, describeAction(action), outcome)
			}

			if parked > 0 {
				return &cli.ExitError{Code: 2}
			}
			return nil
		},
	}
}

// isRefusal reports whether err is a structured refusal (policy or
// target) rather than transport trouble; refusals are per-action, the
// rest of a script can still run.
func isRefusal(err error) bool {
	var gatingErr *wire.GatingError
	var actuationErr *wire.ActuationError
	var protocolErr *wire.ProtocolError
	return errors.As(err, &gatingErr) || errors.As(err, &actuationErr) || errors.As(err, &protocolErr)
}

// buildAction assembles one action from the flag set.
func buildAction(params *proposeParams, kind string) (wire.Action, error) {
	action := wire.Action{
		Kind:   wire.ActionKind(kind),
		X:      params.X,
		Y:      params.Y,
		DeltaX: params.DeltaX,
		DeltaY: params.DeltaY,
		Key:    params.Key,
		Text:   params.Text,
		Width:  params.Width,
		Height: params.Height,
	}
	if !action.Kind.Valid() {
		return wire.Action{}, fmt.Errorf("unknown action kind %q (see 'chaperone help propose')", kind)
	}
	if params.Window != "" {
		window, err := parseWindowID(params.Window)
		if err != nil {
			return wire.Action{}, err
		}
		action.Window = window
	}
	if params.Button != 0 {
		if params.Button < 1 || params.Button > 255 {
			return wire.Action{}, fmt.Errorf("button %d out of range (1..255)", params.Button)
		}
		action.Button = uint8(params.Button)
	}
	return action, nil
}

// readActionScript loads a JSONC action script: one action object or
// an array of them.
func readActionScript(path string) ([]wire.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(stripped) == 0 {
		return nil, fmt.Errorf("%s: empty action script", path)
	}

	if stripped[0] == '[' {
		var actions []wire.Action
		if err := strictDecode(stripped, &actions); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(actions) == 0 {
			return nil, fmt.Errorf("%s: empty action script", path)
		}
		return actions, nil
	}

	var action wire.Action
	if err := strictDecode(stripped, &action); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []wire.Action{action}, nil
}

// strictDecode unmarshals JSON rejecting unknown fields, so a typo in
// a script fails loudly instead of silently dropping a field.
func strictDecode(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("unexpected data after the action value")
	}
	return nil
}
