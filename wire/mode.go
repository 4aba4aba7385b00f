// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Mode is the process-wide control mode governing who may act on the
// display. Exactly one value is active at any instant; it is owned by
// the gate and mutated only through its operations.
type Mode string

const (
	// ModeObserver: the agent watches but cannot act. Human input
	// passes through untouched. The safe default.
	ModeObserver Mode = "observer"

	// ModeSupervised: every agent action is held for explicit human
	// approval before it reaches the display.
	ModeSupervised Mode = "supervised"

	// ModeAutonomous: the agent acts freely; ordinary human input is
	// suppressed so the two cannot interleave. The kill switch always
	// passes.
	ModeAutonomous Mode = "autonomous"

	// ModeCollaborative: both actors act, with human priority inside
	// the conflict window when they contend for the same window.
	ModeCollaborative Mode = "collaborative"
)

// ParseMode parses a mode name. The empty string is not a mode.
func ParseMode(s string) (Mode, error) {
	mode := Mode(s)
	if !mode.Valid() {
		return "", fmt.Errorf("unknown control mode %q", s)
	}
	return mode, nil
}

// Valid reports whether m is one of the four control modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeObserver, ModeSupervised, ModeAutonomous, ModeCollaborative:
		return true
	}
	return false
}

// Source identifies which actor originated an action request.
type Source string

const (
	// SourceHuman marks input arriving from the display host's raw
	// input tap.
	SourceHuman Source = "human"

	// SourceAgent marks actions proposed over the command channel.
	SourceAgent Source = "agent"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceHuman || s == SourceAgent
}
