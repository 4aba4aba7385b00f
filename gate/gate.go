// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chaperone-project/chaperone/lib/clock"
	"github.com/chaperone-project/chaperone/wire"
)

// Defaults applied by New for zero Options fields.
const (
	defaultConflictWindow  = 500 * time.Millisecond
	defaultApprovalTimeout = 30 * time.Second
)

// Submitter accepts actions for serialized injection. Satisfied by
// *inject.Injector. Submit must not block.
type Submitter interface {
	Submit(request wire.ActionRequest) error
}

// Emitter publishes asynchronous notifications. Satisfied by the
// event hub. Emit must not block.
type Emitter interface {
	Emit(kind wire.EventKind, payload any)
}

// WindowIndex answers whether a window id currently exists. Satisfied
// by the capture registry.
type WindowIndex interface {
	HasWindow(id uint32) bool
}

// Options configures a Gate.
type Options struct {
	// Mode is the initial control mode. Defaults to observer.
	Mode wire.Mode

	// KillSwitch is the combo that always reaches the display and
	// forces observer mode.
	KillSwitch wire.Combo

	// ConflictWindow bounds collaborative-mode contention: an agent
	// action and a human action for the same window whose receipt
	// timestamps differ by at most this much are in conflict.
	ConflictWindow time.Duration

	// ApprovalTimeout is how long a supervised-mode entry waits for a
	// decision before resolving timed_out.
	ApprovalTimeout time.Duration

	// AgentMaySetMode permits set_mode from agent sessions (subject
	// to the kill-switch latch).
	AgentMaySetMode bool

	Windows  WindowIndex
	Injector Submitter
	Emitter  Emitter
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Gate is the arbitration state machine. One instance serves the
// whole daemon; all methods are safe for concurrent use.
type Gate struct {
	windows  WindowIndex
	injector Submitter
	emitter  Emitter
	clock    clock.Clock
	logger   *slog.Logger

	killSwitch      wire.Combo
	conflictWindow  time.Duration
	approvalTimeout time.Duration
	agentMaySetMode bool

	mu           sync.Mutex
	mode         wire.Mode
	latched      bool
	nextApproval uint64
	approvals    map[uint64]*approval
	held         []*heldAction
	humanLog     []humanTouch
	stats        counters
}

type counters struct {
	humanForwarded  uint64
	humanSuppressed uint64
	agentForwarded  uint64
	agentRejected   uint64
	conflicts       uint64
	killSwitch      uint64
}

// New builds a Gate.
func New(options Options) *Gate {
	mode := options.Mode
	if mode == "" {
		mode = wire.ModeObserver
	}
	conflictWindow := options.ConflictWindow
	if conflictWindow <= 0 {
		conflictWindow = defaultConflictWindow
	}
	approvalTimeout := options.ApprovalTimeout
	if approvalTimeout <= 0 {
		approvalTimeout = defaultApprovalTimeout
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		windows:         options.Windows,
		injector:        options.Injector,
		emitter:         options.Emitter,
		clock:           clk,
		logger:          logger,
		killSwitch:      options.KillSwitch,
		conflictWindow:  conflictWindow,
		approvalTimeout: approvalTimeout,
		agentMaySetMode: options.AgentMaySetMode,
		mode:            mode,
		approvals:       make(map[uint64]*approval),
	}
}

// Mode returns the current control mode and whether the kill-switch
// latch is set.
func (g *Gate) Mode() (wire.Mode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode, g.latched
}

// SetMode changes the control mode on behalf of role. Operators may
// always set the mode, and doing so clears the kill-switch latch.
// Agents may set it only when configured to and not latched. Setting
// the current mode is a no-op (but still clears the latch for
// operators).
func (g *Gate) SetMode(role wire.Role, mode wire.Mode) error {
	if !mode.Valid() {
		return wire.Protocol(wire.ReasonMalformedRequest, "unknown mode %q", mode)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var origin string
	switch role {
	case wire.RoleOperator:
		g.latched = false
		origin = wire.OriginOperator
	case wire.RoleAgent:
		if !g.agentMaySetMode {
			return wire.Gating(wire.ReasonUnauthorized, "agents may not change the control mode")
		}
		if g.latched {
			return wire.Gating(wire.ReasonKillSwitchLatched, "kill switch fired; an operator must set the mode")
		}
		origin = wire.OriginAgent
	default:
		return wire.Gating(wire.ReasonUnauthorized, "unknown role %q", role)
	}

	g.transitionLocked(mode, origin)
	return nil
}

// transitionLocked applies a mode change, flushing state the old mode
// owned. Same-mode transitions emit nothing.
func (g *Gate) transitionLocked(mode wire.Mode, origin string) {
	previous := g.mode
	if mode == previous {
		return
	}
	g.mode = mode

	// Pending work belongs to the mode that created it.
	if previous == wire.ModeSupervised {
		g.flushApprovalsLocked(wire.ResolutionCancelled)
	}
	if previous == wire.ModeCollaborative {
		g.flushHeldLocked()
	}

	g.logger.Info("mode changed", "mode", mode, "previous", previous, "origin", origin)
	g.emit(wire.EventModeChanged, wire.ModeChangedEvent{
		Mode:     mode,
		Previous: previous,
		Origin:   origin,
	})
}

// HumanInput arbitrates one raw input event from the display's tap.
// The kill switch is checked before any policy: its combo always
// reaches the display and forces observer mode.
func (g *Gate) HumanInput(action wire.Action) {
	g.mu.Lock()
	defer g.mu.Unlock()

	request := wire.ActionRequest{
		Source:    wire.SourceHuman,
		Action:    action,
		Timestamp: g.clock.Now().UnixMilli(),
	}

	if keystroke(action.Kind) && g.killSwitch.MatchesKey(action.Key) {
		g.fireKillSwitchLocked(request)
		return
	}

	switch g.mode {
	case wire.ModeAutonomous:
		g.stats.humanSuppressed++
		g.logger.Debug("human input suppressed", "kind", action.Kind, "mode", g.mode)
		return
	case wire.ModeCollaborative:
		g.sweepConflictsLocked(request)
	}
	g.noteHumanLocked(request)
	g.forwardLocked(request)
}

func keystroke(kind wire.ActionKind) bool {
	return kind == wire.ActionKeyPress || kind == wire.ActionKeyDown
}

// fireKillSwitchLocked is the emergency path: force observer, flush
// everything pending, latch, and pass the keystroke through.
func (g *Gate) fireKillSwitchLocked(request wire.ActionRequest) {
	g.stats.killSwitch++
	g.logger.Warn("kill switch triggered", "combo", g.killSwitch.String(), "mode", g.mode)
	g.emit(wire.EventKillSwitch, wire.KillSwitchEvent{Combo: g.killSwitch.String()})

	g.transitionLocked(wire.ModeObserver, wire.OriginKillSwitch)
	g.flushApprovalsLocked(wire.ResolutionCancelled)
	g.latched = true

	// The combo itself reaches the display exactly once, regardless
	// of mode: the human must never find their escape hatch eaten.
	g.forwardLocked(request)
}

// Propose arbitrates an agent action from the command channel. The
// result reports immediate disposition; deferred outcomes (approval
// decisions, conflict expiry) arrive as events.
func (g *Gate) Propose(action wire.Action, sequence uint64) (wire.ProposeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	request := wire.ActionRequest{
		Source:    wire.SourceAgent,
		Action:    action,
		Timestamp: g.clock.Now().UnixMilli(),
		Sequence:  sequence,
	}

	// Target validation precedes policy: a stale window id is an
	// actuation fault in every mode, not a policy decision.
	if action.TargetsWindow() && g.windows != nil && !g.windows.HasWindow(action.Window) {
		g.stats.agentRejected++
		return wire.ProposeResult{}, wire.Actuation(wire.ReasonUnknownTarget, "window %d does not exist", action.Window)
	}

	switch g.mode {
	case wire.ModeObserver:
		g.stats.agentRejected++
		return wire.ProposeResult{}, wire.Gating(wire.ReasonModeForbids, "observer mode forbids agent actuation")

	case wire.ModeSupervised:
		id := g.enqueueApprovalLocked(request)
		return wire.ProposeResult{Status: wire.ProposePending, Approval: id}, nil

	case wire.ModeCollaborative:
		// A human touch inside the window that already happened
		// resolves the contention now; otherwise hold and wait.
		if g.humanConflictLocked(request) {
			g.dropConflictLocked(request)
		} else {
			g.holdLocked(request)
		}
		return wire.ProposeResult{Status: wire.ProposeHeld}, nil

	default: // autonomous
		if err := g.submitLocked(request); err != nil {
			return wire.ProposeResult{}, err
		}
		return wire.ProposeResult{Status: wire.ProposeForwarded}, nil
	}
}

// submitLocked hands an accepted request to the injector and counts
// the outcome. The caller decides how a submission error surfaces.
func (g *Gate) submitLocked(request wire.ActionRequest) error {
	if err := g.injector.Submit(request); err != nil {
		return err
	}
	if request.Source == wire.SourceHuman {
		g.stats.humanForwarded++
	} else {
		g.stats.agentForwarded++
	}
	return nil
}

// forwardLocked submits a request on a path with no requester to
// answer: failures become action_failed events.
func (g *Gate) forwardLocked(request wire.ActionRequest) {
	if err := g.submitLocked(request); err != nil {
		g.logger.Warn("forward failed",
			"source", request.Source,
			"kind", request.Action.Kind,
			"error", err)
		g.emit(wire.EventActionFailed, wire.ActionFailedEvent{
			Request: request,
			Error:   wire.DetailOf(err),
		})
	}
}

func (g *Gate) emit(kind wire.EventKind, payload any) {
	if g.emitter != nil {
		g.emitter.Emit(kind, payload)
	}
}

// Stats is a snapshot of gate counters. ApprovalsPending and
// ActionsHeld are live gauges.
type Stats struct {
	Mode             wire.Mode
	Latched          bool
	HumanForwarded   uint64
	HumanSuppressed  uint64
	AgentForwarded   uint64
	AgentRejected    uint64
	Conflicts        uint64
	KillSwitch       uint64
	ApprovalsPending int
	ActionsHeld      int
}

// Stats returns current counters.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Mode:             g.mode,
		Latched:          g.latched,
		HumanForwarded:   g.stats.humanForwarded,
		HumanSuppressed:  g.stats.humanSuppressed,
		AgentForwarded:   g.stats.agentForwarded,
		AgentRejected:    g.stats.agentRejected,
		Conflicts:        g.stats.conflicts,
		KillSwitch:       g.stats.killSwitch,
		ApprovalsPending: len(g.approvals),
		ActionsHeld:      len(g.held),
	}
}
