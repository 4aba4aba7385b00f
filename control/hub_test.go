// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"testing"
	"time"

	"github.com/chaperone-project/chaperone/lib/clock"
	"github.com/chaperone-project/chaperone/wire"
)

func TestHubFansOutToEverySubscriber(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{Logger: testLogger()})

	first := hub.Subscribe()
	second := hub.Subscribe()
	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 10})

	for _, sub := range []*EventSub{first, second} {
		<-sub.Wake()
		events := sub.Next()
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].Kind != wire.EventFocusChanged || events[0].Sequence != 1 {
			t.Errorf("event = %+v", events[0])
		}
	}
}

func TestHubAssignsMonotonicSequences(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{Logger: testLogger()})
	sub := hub.Subscribe()

	for i := 0; i < 5; i++ {
		hub.Emit(wire.EventDisplayState, wire.DisplayStateEvent{Online: true})
	}

	events := sub.Next()
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	for i, event := range events {
		if event.Sequence != uint64(i+1) {
			t.Errorf("events[%d].Sequence = %d, want %d", i, event.Sequence, i+1)
		}
	}
}

func TestHubDropsOldestOnOverflow(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{QueueDepth: 3, Logger: testLogger()})
	sub := hub.Subscribe()

	for i := 0; i < 5; i++ {
		hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: uint32(i + 1)})
	}

	// The queue kept the newest three; the gap is visible in the
	// sequence numbers.
	events := sub.Next()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, event := range events {
		if event.Sequence != uint64(i+3) {
			t.Errorf("events[%d].Sequence = %d, want %d", i, event.Sequence, i+3)
		}
	}

	stats := hub.Stats()
	if stats.Published != 5 || stats.Dropped != 2 {
		t.Errorf("stats = %+v, want 5 published, 2 dropped", stats)
	}
}

func TestHubSubscriberSeesOnlyNewEvents(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{Logger: testLogger()})

	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 1})
	sub := hub.Subscribe()
	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 2})

	events := sub.Next()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	// Global numbering continues across the subscription boundary.
	if events[0].Sequence != 2 {
		t.Errorf("sequence = %d, want 2", events[0].Sequence)
	}
}

func TestHubClosedSubscriberStopsReceiving(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{Logger: testLogger()})
	sub := hub.Subscribe()
	sub.Close()

	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 1})
	if events := sub.Next(); len(events) != 0 {
		t.Errorf("closed subscriber received %d events", len(events))
	}
}

func TestHubDropsUnencodablePayload(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{Logger: testLogger()})
	sub := hub.Subscribe()

	hub.Emit(wire.EventDisplayState, make(chan int))

	if events := sub.Next(); len(events) != 0 {
		t.Errorf("unencodable payload produced %d events", len(events))
	}
	if stats := hub.Stats(); stats.Published != 0 {
		t.Errorf("published = %d, want 0", stats.Published)
	}

	// Numbering is unaffected by the dropped emit.
	hub.Emit(wire.EventDisplayState, wire.DisplayStateEvent{Online: true})
	events := sub.Next()
	if len(events) != 1 || events[0].Sequence != 1 {
		t.Fatalf("events = %+v, want one event with sequence 1", events)
	}
}

func TestHubNilPayload(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{Logger: testLogger()})
	sub := hub.Subscribe()

	hub.Emit(wire.EventDisplayState, nil)
	events := sub.Next()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if len(events[0].Payload) != 0 {
		t.Errorf("payload = %x, want empty", events[0].Payload)
	}
}

func TestHubStampsTimestampsFromClock(t *testing.T) {
	t.Parallel()
	epoch := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fakeClock := clock.Fake(epoch)
	hub := NewHub(HubOptions{Clock: fakeClock, Logger: testLogger()})
	sub := hub.Subscribe()

	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 1})
	fakeClock.Advance(250 * time.Millisecond)
	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 2})

	events := sub.Next()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Timestamp != epoch.UnixMilli() {
		t.Errorf("events[0].Timestamp = %d, want %d", events[0].Timestamp, epoch.UnixMilli())
	}
	if events[1].Timestamp != epoch.UnixMilli()+250 {
		t.Errorf("events[1].Timestamp = %d, want %d", events[1].Timestamp, epoch.UnixMilli()+250)
	}
}

func TestHubWakeIsCoalesced(t *testing.T) {
	t.Parallel()
	hub := NewHub(HubOptions{Logger: testLogger()})
	sub := hub.Subscribe()

	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 1})
	hub.Emit(wire.EventFocusChanged, wire.FocusEvent{Window: 2})

	// One wake covers both queued events.
	<-sub.Wake()
	if events := sub.Next(); len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	select {
	case <-sub.Wake():
		t.Fatal("spurious second wake")
	default:
	}
}
