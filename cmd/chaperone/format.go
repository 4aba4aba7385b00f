// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/chaperone-project/chaperone/wire"
)

// parseWindowID parses a window id argument. X11 tools conventionally
// print window ids in hex, so both "0x2a00003" and plain decimal are
// accepted.
func parseWindowID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q (expected hex like 0x2a00003 or decimal)", s)
	}
	return uint32(id), nil
}

// formatWindow renders a window id the way xwininfo and friends do.
func formatWindow(id uint32) string {
	return fmt.Sprintf("0x%08x", id)
}

// formatClock renders a Unix-millisecond timestamp as local wall time
// for event lines.
func formatClock(unixMilli int64) string {
	return time.UnixMilli(unixMilli).Format("15:04:05.000")
}

// formatCountdown renders the time remaining until a Unix-millisecond
// deadline, clamped at zero once passed.
func formatCountdown(deadline int64, now time.Time) string {
	remaining := time.UnixMilli(deadline).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Truncate(100 * time.Millisecond).String()
}

// describeAction renders an action as a compact one-liner for approval
// tables, propose results, and event lines.
func describeAction(action wire.Action) string {
	where := ""
	if action.Window != 0 {
		where = " " + formatWindow(action.Window)
	}

	switch action.Kind {
	case wire.ActionClick, wire.ActionDoubleClick, wire.ActionRightClick,
		wire.ActionMouseDown, wire.ActionMouseUp:
		detail := fmt.Sprintf(" (%d,%d)", action.X, action.Y)
		if action.Button != 0 {
			detail += fmt.Sprintf(" button %d", action.Button)
		}
		return string(action.Kind) + where + detail
	case wire.ActionMouseMove:
		return fmt.Sprintf("%s (%d,%d)", action.Kind, action.X, action.Y)
	case wire.ActionScroll:
		return fmt.Sprintf("%s%s (%+d,%+d)", action.Kind, where, action.DeltaX, action.DeltaY)
	case wire.ActionKeyPress, wire.ActionKeyDown, wire.ActionKeyUp:
		return fmt.Sprintf("%s%s %s", action.Kind, where, action.Key)
	case wire.ActionTypeText:
		return fmt.Sprintf("%s%s %s", action.Kind, where, truncateQuoted(action.Text, 32))
	case wire.ActionSetClipboard:
		return fmt.Sprintf("%s %s", action.Kind, truncateQuoted(action.Text, 32))
	case wire.ActionMoveResizeWindow:
		return fmt.Sprintf("%s%s %dx%d%+d%+d", action.Kind, where,
			action.Width, action.Height, action.X, action.Y)
	default:
		return string(action.Kind) + where
	}
}

// truncateQuoted quotes s, eliding the tail of long strings so table
// rows stay on one line.
func truncateQuoted(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return strconv.Quote(s)
	}
	return strconv.Quote(string(runes[:max])) + "..."
}

// formatGeometry renders a window geometry in X11 notation, signed
// offsets included.
func formatGeometry(w wire.WindowInfo) string {
	return fmt.Sprintf("%dx%d%+d%+d", w.Width, w.Height, w.X, w.Y)
}
