// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package x11 adapts a live X server to the host contract.
//
// The adapter runs outside the server, so everything it knows comes
// from polling and standard extensions: window lifecycle and focus
// from EWMH properties, content snapshots from the drawable, synthetic
// input through XTEST, and window management through EWMH client
// messages. Content damage is approximated by marking every tracked
// window on each poll tick; the capture pipeline's fingerprint test
// turns that into real change detection.
//
// An out-of-process client cannot intercept the human's input: what
// the human types reaches applications whether or not the gate would
// have forwarded it. The adapter therefore taps exactly one thing, the
// configured kill-switch chord, by watching the server's keyboard
// state. Full input interception and collaborative-mode conflict
// signals need a deployment that owns the input path (a nested server
// or an input proxy in front of this one).
package x11
