// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/chaperone-project/chaperone/lib/codec"

// Role identifies what a command-channel session is allowed to do.
// Operators decide approvals and may always change mode; agents
// propose actions and queries.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAgent || r == RoleOperator
}

// ProtocolVersion is the current channel protocol version, declared
// in Hello and echoed in HelloAck. There is exactly one version; the
// field exists so a future incompatible change can be refused at
// handshake instead of mid-stream.
const ProtocolVersion = 1

// Hello opens a connection on any channel. Role matters only on the
// command channel; Windows only on the frame channel (empty = all
// windows).
type Hello struct {
	Role     Role     `cbor:"role,omitempty"`
	Protocol int      `cbor:"protocol"`
	Windows  []uint32 `cbor:"windows,omitempty"`
}

// HelloAck is the Data payload of the sequence-0 response that
// accepts a Hello.
type HelloAck struct {
	// Session is the server-assigned session identifier, for log
	// correlation across reconnects.
	Session string `cbor:"session"`

	Protocol int `cbor:"protocol"`

	// Mode is the control mode at accept time, set on the command
	// channel only. A snapshot: subscribe to events for changes.
	Mode Mode `cbor:"mode,omitempty"`
}

// Command kinds accepted on the command channel.
const (
	CmdQueryWindows   = "query_windows"
	CmdQueryWindow    = "query_window"
	CmdQueryFocused   = "query_focused"
	CmdQueryClipboard = "query_clipboard"
	CmdQueryMode      = "query_mode"
	CmdQueryApprovals = "query_approvals"
	CmdGetFrame       = "get_frame"
	CmdProposeAction  = "propose_action"
	CmdApprove        = "approve"
	CmdReject         = "reject"
	CmdSetMode        = "set_mode"
	CmdRefresh        = "refresh"
)

// Request is a command-channel request. Type is one of the Cmd
// constants. Sequence is assigned by the client, starts at 1, and
// must strictly increase within the session; the server refuses
// regressions with a sequence_violation ProtocolError.
type Request struct {
	Type     string           `cbor:"type"`
	Sequence uint64           `cbor:"sequence"`
	Payload  codec.RawMessage `cbor:"payload,omitempty"`
}

// Response is the correlated reply to a Request. Sequence echoes the
// request (0 for hello replies and for requests whose sequence could
// not be read). Exactly one of Error or Data is meaningful: Error
// when OK is false, Data (possibly empty) when OK is true.
//
// Responses for a session are written in the order the requests were
// received, regardless of internal completion order.
type Response struct {
	Sequence uint64           `cbor:"sequence"`
	OK       bool             `cbor:"ok"`
	Error    *ErrorDetail     `cbor:"error,omitempty"`
	Data     codec.RawMessage `cbor:"data,omitempty"`
}

// WindowInfo describes one tracked window. Served by query_windows
// and query_window, carried in window lifecycle events, and embedded
// in frame envelopes. JSON tags support CLI --json output.
type WindowInfo struct {
	ID      uint32 `json:"id"                cbor:"id"`
	X       int    `json:"x"                 cbor:"x"`
	Y       int    `json:"y"                 cbor:"y"`
	Width   int    `json:"width"             cbor:"width"`
	Height  int    `json:"height"            cbor:"height"`
	Title   string `json:"title,omitempty"   cbor:"title,omitempty"`
	Class   string `json:"class,omitempty"   cbor:"class,omitempty"`
	Focused bool   `json:"focused,omitempty" cbor:"focused,omitempty"`
}

// Command payloads.

// GetFramePayload requests the most recent frame for a window.
// Refresh forces a fresh capture and encode even if the content is
// unchanged.
type GetFramePayload struct {
	Window  uint32 `cbor:"window"`
	Refresh bool   `cbor:"refresh,omitempty"`
}

// ProposePayload submits an agent action for arbitration. The core
// stamps the resulting ActionRequest with its own clock; agents do
// not supply timestamps.
type ProposePayload struct {
	Action Action `cbor:"action"`
}

// DecisionPayload names a pending approval for approve/reject.
type DecisionPayload struct {
	Approval uint64 `cbor:"approval"`
}

// SetModePayload requests a control-mode change.
type SetModePayload struct {
	Mode Mode `cbor:"mode"`
}

// QueryWindowPayload names the window for query_window.
type QueryWindowPayload struct {
	Window uint32 `cbor:"window"`
}

// RefreshPayload forces re-publication of current content. Window 0
// refreshes every tracked window.
type RefreshPayload struct {
	Window uint32 `cbor:"window,omitempty"`
}

// Command response data.

// WindowListResult is the query_windows result.
type WindowListResult struct {
	Windows []WindowInfo `cbor:"windows"`
}

// WindowResult is the query_window and query_focused result. Focused
// may legitimately find no window (nothing focused): Window is nil
// then.
type WindowResult struct {
	Window *WindowInfo `cbor:"window,omitempty"`
}

// ClipboardResult is the query_clipboard result.
type ClipboardResult struct {
	Content string `cbor:"content"`
}

// ModeResult is the query_mode result.
type ModeResult struct {
	Mode Mode `cbor:"mode"`
	// Latched is true after a kill-switch firing until an operator
	// sets a mode.
	Latched bool `cbor:"latched,omitempty"`
}

// PendingApproval describes one queued supervised-mode entry.
// Deadline is Unix milliseconds.
type PendingApproval struct {
	Approval uint64        `json:"approval" cbor:"approval"`
	Request  ActionRequest `json:"request"  cbor:"request"`
	Deadline int64         `json:"deadline" cbor:"deadline"`
}

// ApprovalListResult is the query_approvals result, ordered by id.
type ApprovalListResult struct {
	Approvals []PendingApproval `cbor:"approvals"`
}

// Propose outcome status values.
const (
	// ProposeForwarded: the action passed the gate and was handed to
	// the injector.
	ProposeForwarded = "forwarded"

	// ProposePending: supervised mode holds the action for a human
	// decision; Approval identifies it. The outcome arrives later as
	// an approval_resolved event.
	ProposePending = "pending"

	// ProposeHeld: collaborative mode holds the action for the
	// conflict window. It is forwarded when the window passes without
	// contention, or dropped with an action_conflict event.
	ProposeHeld = "held"
)

// ProposeResult is the propose_action result. Refusals (observer
// mode, unknown target, malformed action) are errors, not results.
type ProposeResult struct {
	Status string `cbor:"status"`
	// Approval is set when Status is pending.
	Approval uint64 `cbor:"approval,omitempty"`
}
