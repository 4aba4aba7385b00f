// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// The error taxonomy mirrors the three ways a command can fail:
//
//   - GatingError: the arbitration policy refused the action, or the
//     caller is not allowed to change policy. Always recoverable;
//     returned as a structured response.
//   - ActuationError: the target is invalid, or the display layer
//     rejected the injected action. Surfaced to the caller (response
//     or event) and logged, never fatal to the gate or injector.
//   - ProtocolError: the request itself is broken — malformed payload,
//     unknown command, sequence violation. Never reaches policy logic.
//
// Callers use errors.As to extract the structured information:
//
//	var gatingErr *GatingError
//	if errors.As(err, &gatingErr) {
//	    if gatingErr.Reason == wire.ReasonModeForbids { ... }
//	}
//
// or the IsGating/IsActuation/IsProtocol helpers for a single reason.

// Machine-readable reason codes. These are protocol constants: agents
// branch on them, so changing one is a wire-format break.
const (
	// GatingError reasons.
	ReasonModeForbids       = "mode_forbids_actuation"
	ReasonUnauthorized      = "unauthorized"
	ReasonUnknownApproval   = "unknown_approval"
	ReasonKillSwitchLatched = "kill_switch_latched"

	// ActuationError reasons.
	ReasonUnknownTarget       = "unknown_target"
	ReasonDisplayRejected     = "display_rejected"
	ReasonDisplayDisconnected = "display_disconnected"
	ReasonInjectorOverrun     = "injector_overrun"
	ReasonUnsupportedAction   = "unsupported_action"

	// ProtocolError reasons.
	ReasonMalformedRequest  = "malformed_request"
	ReasonUnknownCommand    = "unknown_command"
	ReasonSequenceViolation = "sequence_violation"
)

// GatingError is a refusal by the arbitration policy.
type GatingError struct {
	Reason  string
	Message string
}

func (e *GatingError) Error() string {
	return fmt.Sprintf("gating: %s: %s", e.Reason, e.Message)
}

// ActuationError is a failure to act on the display: an invalid
// target, or the display layer rejecting an injected action.
type ActuationError struct {
	Reason  string
	Message string
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("actuation: %s: %s", e.Reason, e.Message)
}

// ProtocolError is a broken request: malformed payload, unknown
// command kind, or a sequence violation.
type ProtocolError struct {
	Reason  string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Reason, e.Message)
}

// Gating constructs a *GatingError with a formatted message.
func Gating(reason, format string, args ...any) *GatingError {
	return &GatingError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Actuation constructs an *ActuationError with a formatted message.
func Actuation(reason, format string, args ...any) *ActuationError {
	return &ActuationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Protocol constructs a *ProtocolError with a formatted message.
func Protocol(reason, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsGating checks whether err is a *GatingError with the given reason.
func IsGating(err error, reason string) bool {
	var gatingErr *GatingError
	return errors.As(err, &gatingErr) && gatingErr.Reason == reason
}

// IsActuation checks whether err is an *ActuationError with the given
// reason.
func IsActuation(err error, reason string) bool {
	var actuationErr *ActuationError
	return errors.As(err, &actuationErr) && actuationErr.Reason == reason
}

// IsProtocol checks whether err is a *ProtocolError with the given
// reason.
func IsProtocol(err error, reason string) bool {
	var protocolErr *ProtocolError
	return errors.As(err, &protocolErr) && protocolErr.Reason == reason
}

// Error classes as they appear on the wire.
const (
	ClassGating    = "gating"
	ClassActuation = "actuation"
	ClassProtocol  = "protocol"
)

// ErrorDetail is the wire form of a structured error, carried in
// command responses and action_failed events.
type ErrorDetail struct {
	Class   string `json:"class"             cbor:"class"`
	Reason  string `json:"reason"            cbor:"reason"`
	Message string `json:"message,omitempty" cbor:"message,omitempty"`
}

// DetailOf converts an error into its wire form. Errors outside the
// taxonomy map to a protocol-class detail with an empty reason; the
// server should not leak internal errors this way, so callers wrap
// unexpected failures before responding.
func DetailOf(err error) ErrorDetail {
	var gatingErr *GatingError
	if errors.As(err, &gatingErr) {
		return ErrorDetail{Class: ClassGating, Reason: gatingErr.Reason, Message: gatingErr.Message}
	}
	var actuationErr *ActuationError
	if errors.As(err, &actuationErr) {
		return ErrorDetail{Class: ClassActuation, Reason: actuationErr.Reason, Message: actuationErr.Message}
	}
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) {
		return ErrorDetail{Class: ClassProtocol, Reason: protocolErr.Reason, Message: protocolErr.Message}
	}
	return ErrorDetail{Class: ClassProtocol, Message: err.Error()}
}

// AsError converts a wire detail back into the matching error type.
// Used by clients to restore errors.As behavior across the channel.
func (d ErrorDetail) AsError() error {
	switch d.Class {
	case ClassGating:
		return &GatingError{Reason: d.Reason, Message: d.Message}
	case ClassActuation:
		return &ActuationError{Reason: d.Reason, Message: d.Message}
	default:
		return &ProtocolError{Reason: d.Reason, Message: d.Message}
	}
}
