// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"slices"
	"time"

	"github.com/chaperone-project/chaperone/lib/clock"
	"github.com/chaperone-project/chaperone/wire"
)

// Collaborative arbitration compares receipt timestamps, not arrival
// order, so the same contention resolves the same way however the two
// sides interleave. Two mechanisms together cover both orders:
//
//   - Agent actions are held for the conflict window before
//     injection. Human input arriving during the hold sweeps
//     conflicting holds (human first reaches the display, agent is
//     dropped).
//   - Forwarded human actions are remembered for the window. An agent
//     proposal stamped within the window of a remembered human touch
//     on the same window is dropped at once.

// heldAction is an agent action waiting out its conflict window.
type heldAction struct {
	request wire.ActionRequest
	timer   *clock.Timer
}

// humanTouch is one forwarded human action, kept for conflict
// lookback until the window passes.
type humanTouch struct {
	window uint32
	at     int64
}

// holdLocked parks an agent request until its conflict window
// elapses.
func (g *Gate) holdLocked(request wire.ActionRequest) {
	hold := &heldAction{request: request}
	hold.timer = g.clock.AfterFunc(g.conflictWindow, func() {
		g.releaseHold(hold)
	})
	g.held = append(g.held, hold)
	g.logger.Debug("action held",
		"kind", request.Action.Kind,
		"window", request.Action.Window,
		"hold", g.conflictWindow)
}

// releaseHold runs when a hold's window elapses without contention.
// A sweep that won the race already removed the hold; the stale timer
// is a no-op then.
func (g *Gate) releaseHold(hold *heldAction) {
	g.mu.Lock()
	defer g.mu.Unlock()

	index := slices.Index(g.held, hold)
	if index < 0 {
		return
	}
	g.held = slices.Delete(g.held, index, index+1)
	g.forwardLocked(hold.request)
}

// sweepConflictsLocked drops held agent actions contending with
// arriving human input. The human action itself is forwarded by the
// caller regardless.
func (g *Gate) sweepConflictsLocked(human wire.ActionRequest) {
	if len(g.held) == 0 {
		return
	}
	kept := g.held[:0]
	for _, hold := range g.held {
		if !conflicting(hold.request.Timestamp, human.Timestamp, g.conflictWindow) ||
			hold.request.Action.Window != human.Action.Window {
			kept = append(kept, hold)
			continue
		}
		hold.timer.Stop()
		g.dropConflictLocked(hold.request)
	}
	g.held = kept
}

// noteHumanLocked remembers a forwarded human action for lookback.
func (g *Gate) noteHumanLocked(request wire.ActionRequest) {
	g.humanLog = append(g.humanLog, humanTouch{
		window: request.Action.Window,
		at:     request.Timestamp,
	})
	g.pruneHumanLocked(request.Timestamp)
}

// pruneHumanLocked drops touches older than the conflict window.
// Touches at exactly the horizon stay: the boundary is inclusive.
func (g *Gate) pruneHumanLocked(now int64) {
	horizon := now - g.conflictWindow.Milliseconds()
	kept := g.humanLog[:0]
	for _, touch := range g.humanLog {
		if touch.at >= horizon {
			kept = append(kept, touch)
		}
	}
	g.humanLog = kept
}

// humanConflictLocked reports whether a remembered human touch
// already contends with an arriving agent request.
func (g *Gate) humanConflictLocked(agent wire.ActionRequest) bool {
	g.pruneHumanLocked(agent.Timestamp)
	for _, touch := range g.humanLog {
		if touch.window == agent.Action.Window &&
			conflicting(touch.at, agent.Timestamp, g.conflictWindow) {
			return true
		}
	}
	return false
}

// conflicting reports whether two receipt timestamps (Unix
// milliseconds) fall within the conflict window of each other,
// boundary inclusive.
func conflicting(a, b int64, window time.Duration) bool {
	delta := a - b
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta)*time.Millisecond <= window
}

// dropConflictLocked reports one agent request dropped in favor of
// human input.
func (g *Gate) dropConflictLocked(request wire.ActionRequest) {
	g.stats.conflicts++
	g.logger.Info("action conflict",
		"window", request.Action.Window,
		"kind", request.Action.Kind)
	g.emit(wire.EventActionConflict, wire.ActionConflictEvent{
		Window:  request.Action.Window,
		Request: request,
	})
}

// flushHeldLocked drops every held action on the way out of
// collaborative mode. Each is reported as failed: the mode that
// promised to forward it is gone.
func (g *Gate) flushHeldLocked() {
	if len(g.held) == 0 {
		return
	}
	count := len(g.held)
	for _, hold := range g.held {
		hold.timer.Stop()
		g.emit(wire.EventActionFailed, wire.ActionFailedEvent{
			Request: hold.request,
			Error:   wire.DetailOf(wire.Gating(wire.ReasonModeForbids, "mode changed while action was held")),
		})
	}
	g.held = nil
	g.logger.Info("held actions flushed", "count", count)
}
