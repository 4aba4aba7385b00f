// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, time.NewTicker, time.AfterFunc, or time.Sleep
// directly. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a deterministic clock that
// advances only when Advance is called.
//
// Everything time-driven in the control plane runs through a Clock:
// approval deadlines and collaborative-mode holds in the gate, the
// frame sampling ticker in capture, and the daemon's stats interval.
// That makes "no decision arrived for 30 seconds" a single Advance
// call in a test rather than a real half-minute wait.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Gate struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	g := gate.New(gate.Options{Clock: clock.Real()})
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
//	g := gate.New(gate.Options{Clock: c})
//	// ... propose an agent action, creating a deadline ...
//	c.WaitForTimers(1)             // deadline registered
//	c.Advance(30 * time.Second)    // deterministically expires it
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, NewTicker, or AfterFunc on a
// FakeClock, it registers a pending waiter. Use WaitForTimers to block
// until a specific number of waiters are registered before calling
// Advance. This eliminates the race between timer registration and
// time advancement that plagues tests using time.Sleep for
// synchronization.
package clock
