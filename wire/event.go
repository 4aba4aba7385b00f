// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/chaperone-project/chaperone/lib/codec"

// EventKind tags the asynchronous notifications on the event channel.
type EventKind string

const (
	EventWindowCreated    EventKind = "window_created"
	EventWindowUpdated    EventKind = "window_updated"
	EventWindowDestroyed  EventKind = "window_destroyed"
	EventFocusChanged     EventKind = "focus_changed"
	EventClipboardChanged EventKind = "clipboard_changed"
	EventApprovalRequired EventKind = "approval_required"
	EventApprovalResolved EventKind = "approval_resolved"
	EventModeChanged      EventKind = "mode_changed"
	EventKillSwitch       EventKind = "kill_switch_triggered"
	EventActionConflict   EventKind = "action_conflict"
	EventActionFailed     EventKind = "action_failed"
	EventDisplayState     EventKind = "display_state"
)

// Event is one notification on the event channel. Sequence is global
// and monotonic across all kinds; subscribers receive events in
// generation order. Responses and events interleave without ordering
// guarantees relative to each other.
type Event struct {
	Kind      EventKind        `cbor:"kind"`
	Sequence  uint64           `cbor:"sequence"`
	Timestamp int64            `cbor:"timestamp"`
	Payload   codec.RawMessage `cbor:"payload,omitempty"`
}

// Event payloads carry JSON tags alongside CBOR so the CLI can render
// decoded events in --json mode without a parallel type set.

// WindowEvent is the payload of window_created and window_updated.
type WindowEvent struct {
	Window WindowInfo `json:"window" cbor:"window"`
}

// WindowDestroyedEvent is the payload of window_destroyed.
type WindowDestroyedEvent struct {
	Window uint32 `json:"window" cbor:"window"`
}

// FocusEvent is the payload of focus_changed. Window 0 means focus
// left every tracked window.
type FocusEvent struct {
	Window uint32 `json:"window" cbor:"window"`
}

// ClipboardEvent is the payload of clipboard_changed.
type ClipboardEvent struct {
	Content string `json:"content" cbor:"content"`
}

// ApprovalRequiredEvent announces a pending agent action awaiting a
// human decision. Deadline is Unix milliseconds; past it the entry
// resolves as timed_out.
type ApprovalRequiredEvent struct {
	Approval uint64        `json:"approval" cbor:"approval"`
	Request  ActionRequest `json:"request"  cbor:"request"`
	Deadline int64         `json:"deadline" cbor:"deadline"`
}

// Resolution is the terminal outcome of an approval entry.
type Resolution string

const (
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
	ResolutionTimedOut Resolution = "timed_out"
	// ResolutionCancelled is the kill-switch flush (and the
	// leave-supervised flush): the queue was cleared without a
	// per-entry decision.
	ResolutionCancelled Resolution = "cancelled"
)

// ApprovalResolvedEvent reports the outcome of a pending approval.
type ApprovalResolvedEvent struct {
	Approval   uint64     `json:"approval"   cbor:"approval"`
	Resolution Resolution `json:"resolution" cbor:"resolution"`
}

// Mode-change origins.
const (
	OriginOperator   = "operator"
	OriginAgent      = "agent"
	OriginKillSwitch = "kill_switch"
)

// ModeChangedEvent reports a control-mode transition.
type ModeChangedEvent struct {
	Mode     Mode   `json:"mode"     cbor:"mode"`
	Previous Mode   `json:"previous" cbor:"previous"`
	Origin   string `json:"origin"   cbor:"origin"`
}

// KillSwitchEvent reports a kill-switch firing. The mode transition
// it forces is reported separately as mode_changed.
type KillSwitchEvent struct {
	Combo string `json:"combo" cbor:"combo"`
}

// ActionConflictEvent reports an agent action dropped by
// collaborative-mode arbitration in favor of contending human input.
type ActionConflictEvent struct {
	Window  uint32        `json:"window"  cbor:"window"`
	Request ActionRequest `json:"request" cbor:"request"`
}

// ActionFailedEvent reports an injection failure after the gate
// accepted the action.
type ActionFailedEvent struct {
	Request ActionRequest `json:"request" cbor:"request"`
	Error   ErrorDetail   `json:"error"   cbor:"error"`
}

// DisplayStateEvent reports loss or recovery of the display
// connection. While offline, injections fail fast with
// display_disconnected; frames stop flowing.
type DisplayStateEvent struct {
	Online bool   `json:"online"           cbor:"online"`
	Reason string `json:"reason,omitempty" cbor:"reason,omitempty"`
}
