// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"testing"

	"github.com/chaperone-project/chaperone/wire"
)

func TestRingAssignsSequences(t *testing.T) {
	t.Parallel()
	ring := newFrameRing(3)

	if ring.latest() != nil {
		t.Fatal("empty ring has a latest frame")
	}

	for want := uint64(1); want <= 3; want++ {
		got := ring.push(&wire.FrameMessage{})
		if got != want {
			t.Fatalf("push assigned sequence %d, want %d", got, want)
		}
	}
	if latest := ring.latest(); latest.Sequence != 3 {
		t.Fatalf("latest sequence = %d, want 3", latest.Sequence)
	}
}

func TestRingDropsOldest(t *testing.T) {
	t.Parallel()
	ring := newFrameRing(3)

	for i := 0; i < 5; i++ {
		ring.push(&wire.FrameMessage{})
	}

	frames := ring.since(0)
	if len(frames) != 3 {
		t.Fatalf("ring retained %d frames, want 3", len(frames))
	}
	for i, frame := range frames {
		if want := uint64(i + 3); frame.Sequence != want {
			t.Fatalf("frame %d has sequence %d, want %d", i, frame.Sequence, want)
		}
	}
}

func TestRingSinceCursor(t *testing.T) {
	t.Parallel()
	ring := newFrameRing(5)

	for i := 0; i < 4; i++ {
		ring.push(&wire.FrameMessage{})
	}

	frames := ring.since(3)
	if len(frames) != 2 {
		t.Fatalf("since(3) returned %d frames, want 2", len(frames))
	}
	if frames[0].Sequence != 3 || frames[1].Sequence != 4 {
		t.Fatalf("since(3) sequences = [%d, %d], want [3, 4]", frames[0].Sequence, frames[1].Sequence)
	}

	if frames := ring.since(5); frames != nil {
		t.Fatalf("since(next) returned %d frames, want none", len(frames))
	}
}

func TestRingLaggedCursorSkipsToOldest(t *testing.T) {
	t.Parallel()
	ring := newFrameRing(2)

	for i := 0; i < 10; i++ {
		ring.push(&wire.FrameMessage{})
	}

	// A reader asking for long-dropped frames resumes at the oldest
	// retained one.
	frames := ring.since(1)
	if len(frames) != 2 {
		t.Fatalf("lagged reader got %d frames, want 2", len(frames))
	}
	if frames[0].Sequence != 9 || frames[1].Sequence != 10 {
		t.Fatalf("lagged reader sequences = [%d, %d], want [9, 10]", frames[0].Sequence, frames[1].Sequence)
	}
}
