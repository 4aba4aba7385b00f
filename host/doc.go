// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package host defines the narrow contract between the control plane
// and a display server. The core never assumes a concrete display
// implementation beyond these interfaces: a Host hands out window
// snapshots and accepts synthetic input, and a Sink receives the
// host's window lifecycle, damage, raw human input, and clipboard
// notifications.
//
// Two implementations exist: host/x11 adapts a live X server, and
// Fake (in this package, next to the contract the way clock.Fake
// sits next to clock.Real) is a fully scriptable host for tests.
package host
