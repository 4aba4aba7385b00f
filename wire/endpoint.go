// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"net"
	"strings"
)

// Endpoint names a listenable or dialable channel address. Two schemes
// are recognized:
//
//	unix:///absolute/path.sock
//	tcp://host:port
//
// Network and Address are in the form net.Listen and net.Dial expect.
type Endpoint struct {
	Network string
	Address string
}

// ParseEndpoint parses an endpoint URL.
func ParseEndpoint(s string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("endpoint %q missing scheme (want unix:// or tcp://)", s)
	}

	switch scheme {
	case "unix":
		if rest == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q has no socket path", s)
		}
		if !strings.HasPrefix(rest, "/") {
			return Endpoint{}, fmt.Errorf("endpoint %q: unix socket path must be absolute", s)
		}
		return Endpoint{Network: "unix", Address: rest}, nil

	case "tcp":
		host, port, err := net.SplitHostPort(rest)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
		}
		if host == "" || port == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q needs both host and port", s)
		}
		return Endpoint{Network: "tcp", Address: rest}, nil
	}

	return Endpoint{}, fmt.Errorf("endpoint %q has unknown scheme %q", s, scheme)
}

// String renders the canonical URL form.
func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}
