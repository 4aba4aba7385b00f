// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"testing"

	"github.com/chaperone-project/chaperone/lib/codec"
	"github.com/chaperone-project/chaperone/wire"
)

func (f *fixture) dialEvents(t *testing.T) *EventStream {
	t.Helper()
	stream, err := DialEvents(testContext(t), f.eventsURL)
	if err != nil {
		t.Fatalf("DialEvents: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

func (f *fixture) dialFrames(t *testing.T, windows ...uint32) *FrameStream {
	t.Helper()
	stream, err := DialFrames(testContext(t), f.framesURL, windows)
	if err != nil {
		t.Fatalf("DialFrames: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

// nextEventOfKind reads events until one of the wanted kind arrives,
// skipping unrelated interleaved kinds.
func nextEventOfKind(t *testing.T, stream *EventStream, kind wire.EventKind) wire.Event {
	t.Helper()
	ctx := testContext(t)
	for {
		event, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if event.Kind == kind {
			return event
		}
	}
}

func decodeEvent(t *testing.T, event wire.Event, payload any) {
	t.Helper()
	if err := codec.Unmarshal(event.Payload, payload); err != nil {
		t.Fatalf("decoding %s payload: %v", event.Kind, err)
	}
}

func TestEventStreamDeliversWindowLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	stream := f.dialEvents(t)

	f.addWindow(10)

	event := nextEventOfKind(t, stream, wire.EventWindowCreated)
	var created wire.WindowEvent
	decodeEvent(t, event, &created)
	if created.Window.ID != 10 || created.Window.Title != "term" {
		t.Errorf("window_created payload = %+v", created.Window)
	}

	f.capture.WindowDestroyed(10)
	event = nextEventOfKind(t, stream, wire.EventWindowDestroyed)
	var destroyed wire.WindowDestroyedEvent
	decodeEvent(t, event, &destroyed)
	if destroyed.Window != 10 {
		t.Errorf("window_destroyed payload = %+v", destroyed)
	}
}

func TestEventSequencesAdvanceInGenerationOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	stream := f.dialEvents(t)

	f.addWindow(10)
	f.addWindow(11)
	f.addWindow(12)

	var last uint64
	for want := uint32(10); want <= 12; want++ {
		event := nextEventOfKind(t, stream, wire.EventWindowCreated)
		if event.Sequence <= last {
			t.Fatalf("sequence %d did not advance past %d", event.Sequence, last)
		}
		last = event.Sequence
		var created wire.WindowEvent
		decodeEvent(t, event, &created)
		if created.Window.ID != want {
			t.Fatalf("events out of generation order: got window %d, want %d", created.Window.ID, want)
		}
	}
}

func TestEventStreamApprovalFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(10)
	stream := f.dialEvents(t)

	operator := f.dial(t, wire.RoleOperator)
	agent := f.dial(t, wire.RoleAgent)
	ctx := testContext(t)

	if _, err := operator.SetMode(ctx, wire.ModeSupervised); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	var change wire.ModeChangedEvent
	decodeEvent(t, nextEventOfKind(t, stream, wire.EventModeChanged), &change)
	if change.Mode != wire.ModeSupervised || change.Previous != wire.ModeObserver || change.Origin != wire.OriginOperator {
		t.Errorf("mode_changed payload = %+v", change)
	}

	result, err := agent.Propose(ctx, click(10))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	var required wire.ApprovalRequiredEvent
	decodeEvent(t, nextEventOfKind(t, stream, wire.EventApprovalRequired), &required)
	if required.Approval != result.Approval {
		t.Errorf("approval_required names %d, propose returned %d", required.Approval, result.Approval)
	}
	if required.Request.Source != wire.SourceAgent || required.Request.Action.Kind != wire.ActionClick {
		t.Errorf("approval_required request = %+v", required.Request)
	}
	if required.Deadline == 0 {
		t.Error("approval_required carries no deadline")
	}

	if err := operator.Approve(ctx, result.Approval); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	var resolved wire.ApprovalResolvedEvent
	decodeEvent(t, nextEventOfKind(t, stream, wire.EventApprovalResolved), &resolved)
	if resolved.Approval != result.Approval || resolved.Resolution != wire.ResolutionApproved {
		t.Errorf("approval_resolved payload = %+v", resolved)
	}
}

func TestKillSwitchObservedOverTheWire(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	stream := f.dialEvents(t)

	operator := f.dial(t, wire.RoleOperator)
	ctx := testContext(t)
	if _, err := operator.SetMode(ctx, wire.ModeAutonomous); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	// The human hits the emergency combo at the display.
	f.gate.HumanInput(wire.Action{Kind: wire.ActionKeyPress, Key: "ctrl+Pause"})

	triggered := nextEventOfKind(t, stream, wire.EventKillSwitch)
	var fired wire.KillSwitchEvent
	decodeEvent(t, triggered, &fired)
	if fired.Combo != "ctrl+Pause" {
		t.Errorf("kill_switch_triggered combo = %q", fired.Combo)
	}

	// The forced transition follows as the very next event.
	forced, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if forced.Kind != wire.EventModeChanged {
		t.Fatalf("event after kill_switch_triggered is %s, want mode_changed", forced.Kind)
	}
	if forced.Sequence != triggered.Sequence+1 {
		t.Errorf("mode_changed sequence = %d, want %d", forced.Sequence, triggered.Sequence+1)
	}
	var change wire.ModeChangedEvent
	decodeEvent(t, forced, &change)
	if change.Mode != wire.ModeObserver || change.Origin != wire.OriginKillSwitch {
		t.Errorf("mode_changed payload = %+v", change)
	}

	// The channel agrees, and the latch is visible.
	result, err := operator.Mode(ctx)
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if result.Mode != wire.ModeObserver || !result.Latched {
		t.Errorf("query_mode = %+v, want latched observer", result)
	}

	// The combo itself reached the display.
	waitFor(t, func() bool {
		for _, action := range f.host.Injected() {
			if action.Kind == wire.ActionKeyPress && action.Key == "ctrl+Pause" {
				return true
			}
		}
		return false
	})
}

func TestEventStreamIgnoresInboundMessages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	conn := rawDial(t, f.eventsURL)
	rawHello(t, conn, wire.Hello{Protocol: wire.ProtocolVersion})

	// Stream channels have no request surface; stray inbound messages
	// are discarded without killing the subscription.
	request := wire.Request{Type: wire.CmdQueryMode, Sequence: 1}
	if err := wire.Send(conn, wire.MsgRequest, request); err != nil {
		t.Fatalf("sending stray request: %v", err)
	}

	f.addWindow(10)
	message, err := wire.ReadMessage(conn)
	if err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if message.Type != wire.MsgEvent {
		t.Fatalf("message type 0x%02x, want event", message.Type)
	}
	var event wire.Event
	if err := codec.Unmarshal(message.Payload, &event); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if event.Kind != wire.EventWindowCreated {
		t.Errorf("event kind = %s, want window_created", event.Kind)
	}
}

func TestStreamHelloProtocolMismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	conn := rawDial(t, f.eventsURL)
	if err := wire.Send(conn, wire.MsgHello, wire.Hello{Protocol: 99}); err != nil {
		t.Fatalf("sending hello: %v", err)
	}
	response := rawResponse(t, conn)
	if response.OK {
		t.Fatal("protocol 99 hello accepted")
	}
	if response.Error.Reason != wire.ReasonMalformedRequest {
		t.Errorf("reason = %s, want malformed_request", response.Error.Reason)
	}
	if _, err := wire.ReadMessage(conn); err == nil {
		t.Fatal("connection still open after handshake refusal")
	}
}

func TestFrameStreamDelivers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(10)
	stream := f.dialFrames(t, 10)
	client := f.dial(t, wire.RoleAgent)
	ctx := testContext(t)

	if _, err := client.Frame(ctx, 10, true); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	frame, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Window != 10 || frame.Sequence != 1 {
		t.Errorf("frame = window %d sequence %d, want window 10 sequence 1", frame.Window, frame.Sequence)
	}
	if frame.Codec != wire.CodecRaw || frame.Width != 8 || frame.Height != 8 {
		t.Errorf("frame = %s %dx%d, want raw 8x8", frame.Codec, frame.Width, frame.Height)
	}
}

func TestFrameStreamReplaysBacklog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(10)
	client := f.dial(t, wire.RoleAgent)
	ctx := testContext(t)

	// Publish before anyone subscribes.
	if _, err := client.Frame(ctx, 10, true); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	// A fresh subscription starts with the retained backlog.
	stream := f.dialFrames(t, 10)
	frame, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Window != 10 || frame.Sequence != 1 {
		t.Errorf("backlog frame = window %d sequence %d, want window 10 sequence 1", frame.Window, frame.Sequence)
	}
}

func TestFrameStreamFiltersWindows(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(10)
	f.addWindow(11)
	stream := f.dialFrames(t, 10)
	client := f.dial(t, wire.RoleAgent)
	ctx := testContext(t)

	// A frame for an unwatched window, then one for the watched one.
	if _, err := client.Frame(ctx, 11, true); err != nil {
		t.Fatalf("Frame(11): %v", err)
	}
	if _, err := client.Frame(ctx, 10, true); err != nil {
		t.Fatalf("Frame(10): %v", err)
	}

	frame, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Window != 10 {
		t.Fatalf("filtered stream delivered window %d", frame.Window)
	}

	// The very next frame is the watched window again, not the
	// unwatched one queued before it.
	if _, err := client.Frame(ctx, 10, true); err != nil {
		t.Fatalf("Frame(10): %v", err)
	}
	frame, err = stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Window != 10 || frame.Sequence != 2 {
		t.Errorf("frame = window %d sequence %d, want window 10 sequence 2", frame.Window, frame.Sequence)
	}
}

func TestFrameStreamUnfiltered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(10)
	f.addWindow(11)
	stream := f.dialFrames(t)
	client := f.dial(t, wire.RoleAgent)
	ctx := testContext(t)

	if _, err := client.Frame(ctx, 11, true); err != nil {
		t.Fatalf("Frame(11): %v", err)
	}
	if _, err := client.Frame(ctx, 10, true); err != nil {
		t.Fatalf("Frame(10): %v", err)
	}

	// Both arrive; batches order windows by id.
	seen := map[uint32]bool{}
	for i := 0; i < 2; i++ {
		frame, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen[frame.Window] = true
	}
	if !seen[10] || !seen[11] {
		t.Errorf("unfiltered stream saw %v, want both windows", seen)
	}
}
