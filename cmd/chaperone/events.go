// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chaperone-project/chaperone/cmd/chaperone/cli"
	"github.com/chaperone-project/chaperone/lib/codec"
	"github.com/chaperone-project/chaperone/wire"
)

type eventsParams struct {
	cli.JSONOutput
	cli.Endpoints
	Follow bool `flag:"follow,f" desc:"reconnect when the daemon goes away instead of exiting"`
}

func eventsCommand() *cli.Command {
	var params eventsParams

	return &cli.Command{
		Name:    "events",
		Summary: "Stream daemon events to stdout",
		Description: `Subscribe to the event channel and print every notification as it
arrives: window lifecycle, focus, clipboard, approvals, mode changes,
kill-switch firings, conflicts, and injection failures.

With --json each event is one compact JSON object per line, suitable
for piping into jq or a log collector. Interrupt with ctrl-C.`,
		Usage: "chaperone events [flags]",
		Examples: []cli.Example{
			{
				Description: "Watch events in the terminal",
				Command:     "chaperone events",
			},
			{
				Description: "Follow across daemon restarts, as JSON lines",
				Command:     "chaperone events --follow --json",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := commandContext(0)
			defer cancel()

			logger := cli.NewCommandLogger().With("command", "events")
			for {
				err := streamEvents(ctx, &params)
				if ctx.Err() != nil {
					// Interrupted: a clean exit, whatever the
					// stream was doing.
					return nil
				}
				if !params.Follow {
					return err
				}
				if err != nil {
					logger.Warn("event stream interrupted, retrying", "error", err)
				}
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

// streamEvents runs one subscription until the connection drops or the
// context ends.
func streamEvents(ctx context.Context, params *eventsParams) error {
	stream, err := params.DialEvents(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		event, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("daemon closed the event stream")
			}
			return err
		}
		if err := printEvent(event, params.OutputJSON); err != nil {
			return err
		}
	}
}

// eventEnvelope is the JSON-lines form of an event: the wire envelope
// with the payload decoded into its typed form.
type eventEnvelope struct {
	Kind      wire.EventKind `json:"kind"`
	Sequence  uint64         `json:"sequence"`
	Timestamp int64          `json:"timestamp"`
	Payload   any            `json:"payload,omitempty"`
}

func printEvent(event wire.Event, asJSON bool) error {
	payload, err := decodeEventPayload(event)
	if err != nil {
		return err
	}

	if asJSON {
		line, err := json.Marshal(eventEnvelope{
			Kind:      event.Kind,
			Sequence:  event.Sequence,
			Timestamp: event.Timestamp,
			Payload:   payload,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(line))
		return nil
	}

	fmt.Printf("%s  %s\n", formatClock(event.Timestamp), formatEvent(event.Kind, payload))
	return nil
}

// decodeEventPayload maps an event to its typed payload. Unknown kinds
// decode to a generic map so newer daemons stay readable.
func decodeEventPayload(event wire.Event) (any, error) {
	var payload any
	switch event.Kind {
	case wire.EventWindowCreated, wire.EventWindowUpdated:
		payload = &wire.WindowEvent{}
	case wire.EventWindowDestroyed:
		payload = &wire.WindowDestroyedEvent{}
	case wire.EventFocusChanged:
		payload = &wire.FocusEvent{}
	case wire.EventClipboardChanged:
		payload = &wire.ClipboardEvent{}
	case wire.EventApprovalRequired:
		payload = &wire.ApprovalRequiredEvent{}
	case wire.EventApprovalResolved:
		payload = &wire.ApprovalResolvedEvent{}
	case wire.EventModeChanged:
		payload = &wire.ModeChangedEvent{}
	case wire.EventKillSwitch:
		payload = &wire.KillSwitchEvent{}
	case wire.EventActionConflict:
		payload = &wire.ActionConflictEvent{}
	case wire.EventActionFailed:
		payload = &wire.ActionFailedEvent{}
	case wire.EventDisplayState:
		payload = &wire.DisplayStateEvent{}
	default:
		payload = &map[string]any{}
	}

	if len(event.Payload) == 0 {
		return nil, nil
	}
	if err := codec.Unmarshal(event.Payload, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.Kind, err)
	}
	return payload, nil
}

// formatEvent renders the one-line text form of an event.
func formatEvent(kind wire.EventKind, payload any) string {
	switch p := payload.(type) {
	case *wire.WindowEvent:
		return fmt.Sprintf("%s %s %s %s", kind,
			formatWindow(p.Window.ID),
			formatGeometry(p.Window),
			windowLabel(p.Window.Class, p.Window.Title))

	case *wire.WindowDestroyedEvent:
		return fmt.Sprintf("%s %s", kind, formatWindow(p.Window))

	case *wire.FocusEvent:
		if p.Window == 0 {
			return fmt.Sprintf("%s (no tracked window)", kind)
		}
		return fmt.Sprintf("%s %s", kind, formatWindow(p.Window))

	case *wire.ClipboardEvent:
		return fmt.Sprintf("%s %s", kind, truncateQuoted(p.Content, 48))

	case *wire.ApprovalRequiredEvent:
		return fmt.Sprintf("%s #%d: %s (expires in %s)", kind, p.Approval,
			describeAction(p.Request.Action),
			formatCountdown(p.Deadline, time.Now()))

	case *wire.ApprovalResolvedEvent:
		return fmt.Sprintf("%s #%d: %s", kind, p.Approval, p.Resolution)

	case *wire.ModeChangedEvent:
		return fmt.Sprintf("%s %s -> %s (%s)", kind, p.Previous, p.Mode, p.Origin)

	case *wire.KillSwitchEvent:
		return fmt.Sprintf("%s (%s)", kind, p.Combo)

	case *wire.ActionConflictEvent:
		return fmt.Sprintf("%s window %s: %s", kind, formatWindow(p.Window),
			describeAction(p.Request.Action))

	case *wire.ActionFailedEvent:
		return fmt.Sprintf("%s %s: %s: %s", kind,
			describeAction(p.Request.Action), p.Error.Reason, p.Error.Message)

	case *wire.DisplayStateEvent:
		if p.Online {
			return fmt.Sprintf("%s online", kind)
		}
		if p.Reason != "" {
			return fmt.Sprintf("%s offline (%s)", kind, p.Reason)
		}
		return fmt.Sprintf("%s offline", kind)

	default:
		return string(kind)
	}
}

// windowLabel joins class and title for display, handling either being
// empty.
func windowLabel(class, title string) string {
	switch {
	case class != "" && title != "":
		return class + ": " + title
	case class != "":
		return class
	case title != "":
		return title
	default:
		return "(unnamed)"
	}
}
