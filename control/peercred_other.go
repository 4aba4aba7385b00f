// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package control

import "net"

// peerUID is unavailable off Linux: with operator uids configured,
// every operator hello is refused.
func peerUID(conn net.Conn) (uint32, bool) {
	return 0, false
}
