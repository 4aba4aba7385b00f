// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chaperone-project/chaperone/lib/clock"
	"github.com/chaperone-project/chaperone/lib/codec"
	"github.com/chaperone-project/chaperone/wire"
)

// defaultEventQueue is the per-subscriber event buffer size.
const defaultEventQueue = 100

// HubOptions configures a Hub.
type HubOptions struct {
	// QueueDepth bounds each subscriber's undelivered event buffer.
	// Default 100.
	QueueDepth int

	// Clock stamps event timestamps. Defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Hub is the daemon's event sink and fan-out point. Producers call
// Emit; event-channel subscribers drain their own bounded queues.
// Emit assigns the global sequence, so every subscriber observes
// events in the same order they were generated.
//
// Emit never blocks and never fails: the gate emits while holding its
// own lock, so anything slower than an in-memory append here would
// stall arbitration.
type Hub struct {
	queueDepth int
	clock      clock.Clock
	logger     *slog.Logger

	mu       sync.Mutex
	sequence uint64
	subs     map[*EventSub]struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub builds a Hub.
func NewHub(options HubOptions) *Hub {
	if options.QueueDepth <= 0 {
		options.QueueDepth = defaultEventQueue
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Hub{
		queueDepth: options.QueueDepth,
		clock:      options.Clock,
		logger:     options.Logger,
		subs:       make(map[*EventSub]struct{}),
	}
}

// Emit stamps the payload into a wire.Event and queues it for every
// subscriber. Payloads that fail to encode are logged and dropped;
// event generation is never allowed to fail a producer.
func (h *Hub) Emit(kind wire.EventKind, payload any) {
	var raw codec.RawMessage
	if payload != nil {
		encoded, err := codec.Marshal(payload)
		if err != nil {
			h.logger.Error("dropping unencodable event", "kind", kind, "error", err)
			return
		}
		raw = encoded
	}

	h.mu.Lock()
	h.sequence++
	event := wire.Event{
		Kind:      kind,
		Sequence:  h.sequence,
		Timestamp: h.clock.Now().UnixMilli(),
		Payload:   raw,
	}
	wake := make([]*EventSub, 0, len(h.subs))
	for sub := range h.subs {
		if sub.push(event) {
			h.dropped.Add(1)
		}
		wake = append(wake, sub)
	}
	h.mu.Unlock()

	h.published.Add(1)
	for _, sub := range wake {
		sub.signal()
	}
}

// Subscribe registers an event consumer. It sees events emitted from
// now on; there is no backlog replay.
func (h *Hub) Subscribe() *EventSub {
	s := &EventSub{
		hub:  h,
		wake: make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// HubStats are cumulative fan-out counters.
type HubStats struct {
	// Published counts events accepted by Emit.
	Published uint64
	// Dropped counts per-subscriber queue overflows. One slow
	// subscriber missing one event counts once.
	Dropped uint64
}

// Stats returns a snapshot of the fan-out counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Published: h.published.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// EventSub is one consumer's bounded view of the event stream. The
// consumer waits on Wake and drains with Next. When the queue is full
// the oldest undelivered event is discarded first; sequence gaps tell
// the consumer it fell behind.
type EventSub struct {
	hub  *Hub
	wake chan struct{}

	mu    sync.Mutex
	queue []wire.Event
}

// push appends under the subscriber's own lock, reporting whether an
// event was discarded to make room.
func (s *EventSub) push(event wire.Event) (overflowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.hub.queueDepth {
		s.queue = s.queue[1:]
		overflowed = true
	}
	s.queue = append(s.queue, event)
	return overflowed
}

// Wake returns the channel signaled (coalesced) when events are
// queued.
func (s *EventSub) Wake() <-chan struct{} {
	return s.wake
}

// Next drains all queued events in generation order.
func (s *EventSub) Next() []wire.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.queue
	s.queue = nil
	return events
}

// Close unregisters the subscriber. Safe to call more than once.
func (s *EventSub) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}

func (s *EventSub) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
