// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package control

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerUID reads the connecting process's uid via SO_PEERCRED. Only
// unix-domain connections carry credentials; everything else reports
// false and the caller fails closed.
func peerUID(conn net.Conn) (uint32, bool) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, false
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, false
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return 0, false
	}
	return cred.Uid, true
}
