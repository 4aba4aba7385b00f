// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import "github.com/chaperone-project/chaperone/wire"

// frameRing is a bounded ring of published frames addressed by
// absolute per-window sequence number. The writer overwrites the
// oldest entry when full; readers that fall behind skip to the oldest
// retained frame. Sequence numbers start at 1 and never repeat, so a
// reader can detect drops by the gap.
//
// Not safe for concurrent use; the Capture mutex guards all access.
type frameRing struct {
	frames []*wire.FrameMessage
	first  uint64 // sequence of the oldest retained frame
	next   uint64 // sequence the next push assigns
}

func newFrameRing(depth int) *frameRing {
	return &frameRing{
		frames: make([]*wire.FrameMessage, depth),
		first:  1,
		next:   1,
	}
}

// push assigns the next sequence number to frame and stores it,
// dropping the oldest retained frame if the ring is full.
func (r *frameRing) push(frame *wire.FrameMessage) uint64 {
	sequence := r.next
	frame.Sequence = sequence
	r.frames[int(sequence%uint64(len(r.frames)))] = frame
	r.next++
	if r.next-r.first > uint64(len(r.frames)) {
		r.first = r.next - uint64(len(r.frames))
	}
	return sequence
}

// latest returns the most recently pushed frame, or nil if nothing
// has been published yet.
func (r *frameRing) latest() *wire.FrameMessage {
	if r.next == r.first {
		return nil
	}
	return r.frames[int((r.next-1)%uint64(len(r.frames)))]
}

// since returns the retained frames with sequence >= cursor, oldest
// first. A cursor below the oldest retained frame starts there
// instead: the skipped frames were dropped.
func (r *frameRing) since(cursor uint64) []*wire.FrameMessage {
	if cursor < r.first {
		cursor = r.first
	}
	if cursor >= r.next {
		return nil
	}
	out := make([]*wire.FrameMessage, 0, r.next-cursor)
	for sequence := cursor; sequence < r.next; sequence++ {
		out = append(out, r.frames[int(sequence%uint64(len(r.frames)))])
	}
	return out
}
