// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// ActionKind tags the closed set of input actions. The gate's policy
// table and the injector's dispatch switch over this set exhaustively;
// adding a kind means extending both.
type ActionKind string

const (
	ActionClick            ActionKind = "click"
	ActionDoubleClick      ActionKind = "double_click"
	ActionRightClick       ActionKind = "right_click"
	ActionMouseMove        ActionKind = "mouse_move"
	ActionMouseDown        ActionKind = "mouse_down"
	ActionMouseUp          ActionKind = "mouse_up"
	ActionScroll           ActionKind = "scroll"
	ActionKeyPress         ActionKind = "key_press"
	ActionKeyDown          ActionKind = "key_down"
	ActionKeyUp            ActionKind = "key_up"
	ActionTypeText         ActionKind = "type_text"
	ActionSetClipboard     ActionKind = "set_clipboard"
	ActionFocusWindow      ActionKind = "focus_window"
	ActionCloseWindow      ActionKind = "close_window"
	ActionMoveResizeWindow ActionKind = "move_resize_window"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionClick, ActionDoubleClick, ActionRightClick, ActionMouseMove,
		ActionMouseDown, ActionMouseUp, ActionScroll, ActionKeyPress,
		ActionKeyDown, ActionKeyUp, ActionTypeText, ActionSetClipboard,
		ActionFocusWindow, ActionCloseWindow, ActionMoveResizeWindow:
		return true
	}
	return false
}

// Action is the tagged variant describing one input action. Which
// fields are meaningful depends on Kind; Validate enforces the
// per-kind requirements.
//
// Coordinates on window-targeted kinds (click, double_click,
// right_click, mouse_down, mouse_up) are window-relative; the injector
// translates them against the window's current geometry. mouse_move
// coordinates are display-absolute. Key carries a key combination in
// "ctrl+shift+t" syntax (see ParseCombo); a bare keysym name like
// "Return" or "a" is the common case.
//
// The JSON tags mirror the CBOR names: actions also appear in CLI
// --json output and in the JSONC scripts fed to "chaperone propose".
type Action struct {
	Kind   ActionKind `json:"kind"             cbor:"kind"`
	Window uint32     `json:"window,omitempty" cbor:"window,omitempty"`
	X      int        `json:"x,omitempty"      cbor:"x,omitempty"`
	Y      int        `json:"y,omitempty"      cbor:"y,omitempty"`
	Button uint8      `json:"button,omitempty" cbor:"button,omitempty"`
	DeltaX int        `json:"dx,omitempty"     cbor:"dx,omitempty"`
	DeltaY int        `json:"dy,omitempty"     cbor:"dy,omitempty"`
	Key    string     `json:"key,omitempty"    cbor:"key,omitempty"`
	Text   string     `json:"text,omitempty"   cbor:"text,omitempty"`
	Width  int        `json:"width,omitempty"  cbor:"width,omitempty"`
	Height int        `json:"height,omitempty" cbor:"height,omitempty"`
}

// windowRequired lists the kinds that must name a target window.
// Window 0 means "no specific window" and is legal only for global
// kinds (pointer moves, scrolls, key input, text, clipboard).
func (k ActionKind) windowRequired() bool {
	switch k {
	case ActionClick, ActionDoubleClick, ActionRightClick,
		ActionMouseDown, ActionMouseUp,
		ActionFocusWindow, ActionCloseWindow, ActionMoveResizeWindow:
		return true
	}
	return false
}

// TargetsWindow reports whether the action names a specific window
// (and therefore participates in target validation and conflict
// arbitration keyed by window id).
func (a Action) TargetsWindow() bool {
	return a.Window != 0
}

// Validate checks the per-kind field requirements. A failure is a
// *ProtocolError with reason ReasonMalformedRequest: malformed actions
// never reach the gate's policy logic.
func (a Action) Validate() error {
	if !a.Kind.Valid() {
		return Protocol(ReasonMalformedRequest, "unknown action kind %q", a.Kind)
	}
	if a.Kind.windowRequired() && a.Window == 0 {
		return Protocol(ReasonMalformedRequest, "%s requires a target window", a.Kind)
	}

	switch a.Kind {
	case ActionClick, ActionDoubleClick, ActionRightClick,
		ActionMouseMove, ActionMouseDown, ActionMouseUp:
		if a.X < 0 || a.Y < 0 {
			return Protocol(ReasonMalformedRequest, "%s coordinates must be non-negative, got (%d, %d)", a.Kind, a.X, a.Y)
		}
	case ActionScroll:
		if a.DeltaX == 0 && a.DeltaY == 0 {
			return Protocol(ReasonMalformedRequest, "scroll requires a non-zero delta")
		}
	case ActionKeyPress, ActionKeyDown, ActionKeyUp:
		if a.Key == "" {
			return Protocol(ReasonMalformedRequest, "%s requires a key", a.Kind)
		}
		if _, err := ParseCombo(a.Key); err != nil {
			return Protocol(ReasonMalformedRequest, "%s key: %v", a.Kind, err)
		}
	case ActionTypeText:
		if a.Text == "" {
			return Protocol(ReasonMalformedRequest, "type_text requires text")
		}
	case ActionMoveResizeWindow:
		if a.Width <= 0 || a.Height <= 0 {
			return Protocol(ReasonMalformedRequest, "move_resize_window requires positive dimensions, got %dx%d", a.Width, a.Height)
		}
	}
	return nil
}

// ActionRequest is one action submitted for arbitration. The core
// creates it on receipt — from the host's input tap (human) or from a
// propose_action command (agent) — stamps it with its own clock, and
// consumes it exactly once: every request terminates as forwarded,
// rejected, or expired.
type ActionRequest struct {
	Source Source `json:"source" cbor:"source"`
	Action Action `json:"action" cbor:"action"`

	// Timestamp is the receipt time in Unix milliseconds, assigned by
	// the core's clock. Collaborative-mode conflict arbitration
	// compares these, not arrival instants, so out-of-order delivery
	// does not change outcomes.
	Timestamp int64 `json:"timestamp" cbor:"timestamp"`

	// Sequence is the client-assigned command sequence that carried
	// an agent request, echoed for traceability in events. Zero for
	// human input.
	Sequence uint64 `json:"sequence,omitempty" cbor:"sequence,omitempty"`
}
