// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the control-plane protocol: the framed message
// format shared by all three channels, the command and event
// envelopes, the action model, the control modes, and the structured
// error taxonomy.
//
// Every channel speaks the same frame format — a 5-byte header (1 byte
// message type + 4 byte big-endian payload length) followed by a CBOR
// payload:
//
//   - command channel: MsgHello, then MsgRequest/MsgResponse pairs.
//     Requests carry a client-assigned, strictly increasing sequence
//     number; the matching response echoes it, and responses for one
//     session are written in request order.
//   - event channel: MsgHello, then a one-way stream of MsgEvent in
//     generation order.
//   - frame channel: MsgHello (optionally naming a window filter),
//     then a one-way stream of MsgFrame.
//
// The package is organized by concern:
//
//   - protocol.go: frame format, message type constants, Send helper
//   - message.go: hello/request/response envelopes, command payloads
//   - action.go: the tagged action variant and its validation
//   - event.go: event envelope and payloads
//   - frame.go: encoded frame envelope, codec and compression names
//   - mode.go: control modes
//   - combo.go: kill-switch key combination syntax
//   - errors.go: GatingError, ActuationError, ProtocolError
package wire
