// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"testing"
	"time"

	"github.com/chaperone-project/chaperone/wire"
)

func TestCollaborativeHoldsThenForwards(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	result, err := f.gate.Propose(click(10), 1)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if result.Status != wire.ProposeHeld {
		t.Fatalf("status = %q, want held", result.Status)
	}
	if len(f.injector.all()) != 0 {
		t.Fatal("held action injected before its window elapsed")
	}

	f.clock.Advance(500 * time.Millisecond)

	submitted := f.injector.all()
	if len(submitted) != 1 {
		t.Fatalf("injector got %d requests after the window, want 1", len(submitted))
	}
	if submitted[0].Source != wire.SourceAgent {
		t.Fatalf("forwarded source = %q, want agent", submitted[0].Source)
	}
	if len(f.emitter.ofKind(wire.EventActionConflict)) != 0 {
		t.Fatal("uncontended hold reported a conflict")
	}
}

// Agent proposes first, human input arrives inside the window: the
// human action reaches the display, the agent action is dropped.
func TestConflictAgentFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	if _, err := f.gate.Propose(click(10), 1); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	f.clock.Advance(200 * time.Millisecond)
	f.gate.HumanInput(click(10))

	assertHumanWon(t, f)
}

// Human acts first, agent proposes inside the window: same outcome.
func TestConflictHumanFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	f.gate.HumanInput(click(10))
	f.clock.Advance(200 * time.Millisecond)
	if _, err := f.gate.Propose(click(10), 1); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	assertHumanWon(t, f)
}

// assertHumanWon checks the shared outcome of both arrival orders:
// exactly the human action injected, the agent action reported as a
// conflict, and nothing more appearing later.
func assertHumanWon(t *testing.T, f *fixture) {
	t.Helper()

	f.clock.Advance(time.Second)

	submitted := f.injector.all()
	if len(submitted) != 1 {
		t.Fatalf("injector got %d requests, want only the human action", len(submitted))
	}
	if submitted[0].Source != wire.SourceHuman {
		t.Fatalf("injected source = %q, want human", submitted[0].Source)
	}

	conflicts := f.emitter.ofKind(wire.EventActionConflict)
	if len(conflicts) != 1 {
		t.Fatalf("action_conflict emitted %d times, want 1", len(conflicts))
	}
	conflict := conflicts[0].(wire.ActionConflictEvent)
	if conflict.Window != 10 {
		t.Fatalf("conflict window = %d, want 10", conflict.Window)
	}
	if conflict.Request.Source != wire.SourceAgent {
		t.Fatalf("conflict request source = %q, want agent", conflict.Request.Source)
	}
}

func TestConflictBoundaryInclusive(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	f.gate.HumanInput(click(10))
	f.clock.Advance(500 * time.Millisecond)
	if _, err := f.gate.Propose(click(10), 1); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	// Exactly the window apart still conflicts.
	assertHumanWon(t, f)
}

func TestNoConflictPastWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	f.gate.HumanInput(click(10))
	f.clock.Advance(501 * time.Millisecond)
	if _, err := f.gate.Propose(click(10), 1); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	f.clock.Advance(500 * time.Millisecond)

	if submitted := f.injector.all(); len(submitted) != 2 {
		t.Fatalf("injector got %d requests, want both sides", len(submitted))
	}
	if len(f.emitter.ofKind(wire.EventActionConflict)) != 0 {
		t.Fatal("actions past the window reported a conflict")
	}
}

func TestNoConflictAcrossWindows(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	if _, err := f.gate.Propose(click(10), 1); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	f.gate.HumanInput(click(11))
	f.clock.Advance(500 * time.Millisecond)

	submitted := f.injector.all()
	if len(submitted) != 2 {
		t.Fatalf("injector got %d requests, want both sides", len(submitted))
	}
	// Human forwarded first, agent at hold expiry.
	if submitted[0].Source != wire.SourceHuman || submitted[1].Source != wire.SourceAgent {
		t.Fatalf("order = [%s, %s], want [human, agent]", submitted[0].Source, submitted[1].Source)
	}
	if len(f.emitter.ofKind(wire.EventActionConflict)) != 0 {
		t.Fatal("different windows reported a conflict")
	}
}

func TestHumanSweepsMultipleHolds(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	if _, err := f.gate.Propose(click(10), 1); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := f.gate.Propose(click(10), 2); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := f.gate.Propose(click(11), 3); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	f.gate.HumanInput(click(10))
	f.clock.Advance(500 * time.Millisecond)

	// Both window-10 holds dropped, the window-11 hold survived.
	if conflicts := f.emitter.ofKind(wire.EventActionConflict); len(conflicts) != 2 {
		t.Fatalf("action_conflict emitted %d times, want 2", len(conflicts))
	}
	submitted := f.injector.all()
	if len(submitted) != 2 {
		t.Fatalf("injector got %d requests, want human + surviving agent", len(submitted))
	}
	if submitted[1].Action.Window != 11 {
		t.Fatalf("surviving agent action targets window %d, want 11", submitted[1].Action.Window)
	}
}

func TestLeavingCollaborativeFlushesHolds(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	if _, err := f.gate.Propose(click(10), 1); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := f.gate.SetMode(wire.RoleOperator, wire.ModeObserver); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	failures := f.emitter.ofKind(wire.EventActionFailed)
	if len(failures) != 1 {
		t.Fatalf("action_failed emitted %d times, want 1", len(failures))
	}
	failure := failures[0].(wire.ActionFailedEvent)
	if failure.Error.Reason != wire.ReasonModeForbids {
		t.Fatalf("flush reason = %q, want mode_forbids_actuation", failure.Error.Reason)
	}

	// The stopped hold timer must not inject later.
	f.clock.Advance(time.Second)
	if len(f.injector.all()) != 0 {
		t.Fatal("flushed hold reached the injector")
	}
}

func TestHumanActionsAlwaysForwardInCollaborative(t *testing.T) {
	t.Parallel()
	f := newFixture(t, wire.ModeCollaborative)

	f.gate.HumanInput(click(10))
	f.gate.HumanInput(keyPress("a"))

	if submitted := f.injector.all(); len(submitted) != 2 {
		t.Fatalf("injector got %d requests, want 2", len(submitted))
	}
}
