// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture turns display damage into a bounded, change-aware
// frame stream.
//
// A Capture tracks windows from the host's lifecycle callbacks and
// samples them on a fixed tick. A window is only snapshotted when the
// host reported damage since the last tick, and a snapshot is only
// encoded and published when its content fingerprint differs from the
// window's last published frame — so a static screen costs nothing
// per tick, and a busy screen costs at most one frame per window per
// tick.
//
// Published frames land in per-window rings that drop the oldest
// frame on overflow. Subscribers keep their own cursors into the
// rings; a slow subscriber loses old frames, never stalls the
// pipeline, and always observes frames for one window in order.
//
// Forced refresh (the refresh command, or get_frame with refresh set)
// bypasses the fingerprint test: the next publication may repeat
// identical content. That is the only way two successive frames for
// one window can carry equal fingerprints.
package capture
