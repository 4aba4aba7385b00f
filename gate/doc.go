// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate arbitrates control of the display between a human and
// an agent.
//
// Every action — raw human input from the display's tap, or an agent
// proposal from the command channel — passes through one Gate, which
// applies the current control mode's policy in a single critical
// section: forward to the injector, reject, queue for approval, or
// hold for conflict arbitration. Because decisions and injector
// submissions happen under the same lock, injection order is exactly
// acceptance order.
//
// The kill switch is checked before anything else on the human path.
// Its combo always reaches the display, from any mode, and firing it
// forces observer mode, flushes all pending work, and latches: agents
// cannot change the mode again until an operator does.
//
// The Gate calls its Emitter and Submitter while holding its lock, so
// both must be non-blocking; the event hub and injector queue satisfy
// this by bounding and dropping rather than waiting.
package gate
