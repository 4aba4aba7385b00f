// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"github.com/chaperone-project/chaperone/wire"
)

// Surface is one window's composited pixels: RGBA, 4 bytes per pixel,
// rows top-to-bottom, no padding. len(RGBA) is Width*Height*4.
type Surface struct {
	Width  int
	Height int
	RGBA   []byte
}

// Host is the display side of the control plane. Implementations
// must be safe for concurrent use: the capture pipeline calls
// Snapshot from its sampling loop while the injector calls Inject
// from its own goroutine.
//
// Snapshot and Inject report structured failures as *wire.ActuationError
// (unknown_target, display_rejected, display_disconnected,
// unsupported_action); any other error is treated as display_rejected
// by the caller.
type Host interface {
	// Windows enumerates the currently known windows.
	Windows() []wire.WindowInfo

	// Snapshot returns the window's current composited surface.
	Snapshot(window uint32) (*Surface, error)

	// Inject applies one synthetic input action to the display.
	Inject(action wire.Action) error

	// Clipboard returns the current clipboard content.
	Clipboard() (string, error)

	// SetClipboard replaces the clipboard content.
	SetClipboard(content string) error

	// Start begins delivering callbacks to sink. Callbacks may arrive
	// from the host's own goroutines; they stop after Close returns.
	Start(sink Sink) error

	// Close releases the display connection. Safe to call more than
	// once.
	Close() error
}

// Sink receives the host's notifications. The daemon implements it
// and fans the calls out to the capture pipeline (lifecycle, damage,
// clipboard), the gate (human input), and the injector (display
// state).
//
// Implementations must not call back into the Host from within a
// callback; hosts may hold internal locks while delivering.
type Sink interface {
	// WindowCreated announces a new window.
	WindowCreated(info wire.WindowInfo)

	// WindowUpdated announces a geometry, title, or class change.
	WindowUpdated(info wire.WindowInfo)

	// WindowDestroyed announces a closed window.
	WindowDestroyed(window uint32)

	// FocusChanged announces the newly focused window; 0 means no
	// tracked window holds focus.
	FocusChanged(window uint32)

	// Damage marks a window's content as changed since its last
	// snapshot. Coalescing is the receiver's business: repeated
	// damage before the next sample is one dirty flag.
	Damage(window uint32)

	// HumanInput delivers one raw human input action from the
	// display's input pipeline, before any synthetic injection. The
	// receiver decides whether it proceeds (gate policy, kill
	// switch).
	HumanInput(action wire.Action)

	// ClipboardChanged announces new clipboard content.
	ClipboardChanged(content string)

	// DisplayState announces loss (online=false) or recovery of the
	// underlying display connection.
	DisplayState(online bool, reason string)
}
