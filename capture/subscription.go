// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"slices"

	"github.com/chaperone-project/chaperone/wire"
)

// Subscription is one consumer's cursor over the frame rings. The
// consumer waits on Wake and drains with Next; frames it was too slow
// to drain before the ring dropped them are simply gone, visible as
// sequence gaps.
type Subscription struct {
	capture *Capture
	wake    chan struct{}

	// filter limits the subscription to specific windows; nil means
	// every window.
	filter map[uint32]bool

	// cursors hold the next sequence to read per window. The
	// zero cursor reads from the oldest retained frame, so a new
	// subscription starts with the available backlog.
	cursors map[uint32]uint64
}

// Subscribe registers a frame consumer. An empty windows list means
// every window. The subscription starts signaled so the consumer
// drains any existing backlog first.
func (c *Capture) Subscribe(windows []uint32) *Subscription {
	s := &Subscription{
		capture: c,
		wake:    make(chan struct{}, 1),
		cursors: make(map[uint32]uint64),
	}
	if len(windows) > 0 {
		s.filter = make(map[uint32]bool, len(windows))
		for _, id := range windows {
			s.filter[id] = true
		}
	}

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	s.signal()
	return s
}

// Wake returns the channel signaled (coalesced) when a frame this
// subscription cares about publishes.
func (s *Subscription) Wake() <-chan struct{} {
	return s.wake
}

// Next drains every new frame: per window in sequence order, windows
// in id order. Returns nil when there is nothing new.
func (s *Subscription) Next() []*wire.FrameMessage {
	c := s.capture
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]uint32, 0, len(c.windows))
	for id := range c.windows {
		if s.wants(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var out []*wire.FrameMessage
	for _, id := range ids {
		frames := c.windows[id].ring.since(s.cursors[id])
		if len(frames) == 0 {
			continue
		}
		out = append(out, frames...)
		s.cursors[id] = frames[len(frames)-1].Sequence + 1
	}

	// Cursors for destroyed windows have nothing left to read.
	for id := range s.cursors {
		if _, ok := c.windows[id]; !ok {
			delete(s.cursors, id)
		}
	}
	return out
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.capture.mu.Lock()
	delete(s.capture.subs, s)
	s.capture.mu.Unlock()
}

func (s *Subscription) wants(window uint32) bool {
	return s.filter == nil || s.filter[window]
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
