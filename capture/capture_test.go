// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chaperone-project/chaperone/host"
	"github.com/chaperone-project/chaperone/lib/clock"
	"github.com/chaperone-project/chaperone/wire"
)

var epoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type recordedEvent struct {
	kind    wire.EventKind
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(kind wire.EventKind, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: kind, payload: payload})
}

func (r *recordingEmitter) kinds() []wire.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]wire.EventKind, len(r.events))
	for i, event := range r.events {
		kinds[i] = event.kind
	}
	return kinds
}

type fixture struct {
	capture *Capture
	fake    *host.Fake
	clock   *clock.FakeClock
	emitter *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fake:    host.NewFake(),
		clock:   clock.Fake(epoch),
		emitter: &recordingEmitter{},
	}
	f.capture = New(Options{
		Host:    f.fake,
		Encoder: NewEncoder(EncoderOptions{Codec: wire.CodecRaw}),
		Emitter: f.emitter,
		Clock:   f.clock,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		// 2 fps keeps the tick interval a round 500ms.
		FrameRate: 2,
	})
	return f
}

func window(id uint32, title string) wire.WindowInfo {
	return wire.WindowInfo{ID: id, Width: 8, Height: 8, Title: title, Class: "test"}
}

// addWindow registers a window with both the fake host and the
// capture registry, the way the daemon's sink fan-out would.
func (f *fixture) addWindow(id uint32, title string, surface *host.Surface) {
	f.fake.AddWindow(window(id, title), surface)
	f.capture.WindowCreated(window(id, title))
}

// repaint swaps a window's pixels and reports the damage.
func (f *fixture) repaint(id uint32, surface *host.Surface) {
	f.fake.SetSurface(id, surface)
	f.capture.Damage(id)
}

func TestStaticContentPublishesAtMostOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))

	// Five sampling ticks over unchanging content.
	for i := 0; i < 5; i++ {
		f.capture.sample()
		f.clock.Advance(500 * time.Millisecond)
	}

	sub := f.capture.Subscribe(nil)
	defer sub.Close()
	frames := sub.Next()
	if len(frames) != 1 {
		t.Fatalf("static content published %d frames over 5 ticks, want 1", len(frames))
	}
	if stats := f.capture.Stats(); stats.Published != 1 {
		t.Fatalf("Published = %d, want 1", stats.Published)
	}
}

func TestChangedContentPublishes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))

	f.capture.sample()
	f.repaint(1, host.SolidSurface(8, 8, 200, 10, 10, 255))
	f.capture.sample()

	sub := f.capture.Subscribe(nil)
	defer sub.Close()
	frames := sub.Next()
	if len(frames) != 2 {
		t.Fatalf("published %d frames, want 2", len(frames))
	}
	if bytes.Equal(frames[0].Fingerprint, frames[1].Fingerprint) {
		t.Fatal("successive frames carry equal fingerprints without a refresh")
	}
	if frames[0].Sequence != 1 || frames[1].Sequence != 2 {
		t.Fatalf("sequences = [%d, %d], want [1, 2]", frames[0].Sequence, frames[1].Sequence)
	}
}

func TestDamageWithoutChangeStaysQuiet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))

	f.capture.sample()
	// Damage reported, content identical.
	f.repaint(1, host.SolidSurface(8, 8, 10, 10, 10, 255))
	f.capture.sample()

	stats := f.capture.Stats()
	if stats.Published != 1 {
		t.Fatalf("Published = %d, want 1", stats.Published)
	}
	if stats.Unchanged != 1 {
		t.Fatalf("Unchanged = %d, want 1", stats.Unchanged)
	}
}

func TestRefreshRepublishesIdenticalContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))

	f.capture.sample()
	if err := f.capture.Refresh(1); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	f.capture.sample()

	sub := f.capture.Subscribe(nil)
	defer sub.Close()
	frames := sub.Next()
	if len(frames) != 2 {
		t.Fatalf("published %d frames, want 2 (refresh bypasses the change test)", len(frames))
	}
	if !bytes.Equal(frames[0].Fingerprint, frames[1].Fingerprint) {
		t.Fatal("refreshed frame fingerprints should match")
	}
}

func TestRefreshAllWindows(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))
	f.addWindow(2, "terminal", host.SolidSurface(8, 8, 20, 20, 20, 255))
	f.capture.sample()

	if err := f.capture.Refresh(0); err != nil {
		t.Fatalf("Refresh(0): %v", err)
	}
	f.capture.sample()

	if stats := f.capture.Stats(); stats.Published != 4 {
		t.Fatalf("Published = %d, want 4 (both windows, twice)", stats.Published)
	}
}

func TestRefreshUnknownWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.capture.Refresh(9)
	if !wire.IsActuation(err, wire.ReasonUnknownTarget) {
		t.Fatalf("Refresh(9) returned %v, want unknown_target", err)
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if _, err := f.capture.Latest(1); !wire.IsActuation(err, wire.ReasonUnknownTarget) {
		t.Fatalf("Latest(untracked) returned %v, want unknown_target", err)
	}

	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))
	frame, err := f.capture.Latest(1)
	if err != nil || frame != nil {
		t.Fatalf("Latest before first publish = (%v, %v), want (nil, nil)", frame, err)
	}

	f.capture.sample()
	frame, err = f.capture.Latest(1)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if frame == nil || frame.Window != 1 || frame.Sequence != 1 {
		t.Fatalf("Latest = %+v, want window 1 sequence 1", frame)
	}
}

func TestGrabPublishesImmediately(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))

	frame, err := f.capture.Grab(1)
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if frame.Sequence != 1 {
		t.Fatalf("grabbed sequence = %d, want 1", frame.Sequence)
	}

	// Grab bypasses the change test: identical content publishes
	// again.
	again, err := f.capture.Grab(1)
	if err != nil {
		t.Fatalf("second Grab: %v", err)
	}
	if again.Sequence != 2 {
		t.Fatalf("second grab sequence = %d, want 2", again.Sequence)
	}
	if !bytes.Equal(frame.Fingerprint, again.Fingerprint) {
		t.Fatal("identical content grabbed different fingerprints")
	}

	if _, err := f.capture.Grab(9); !wire.IsActuation(err, wire.ReasonUnknownTarget) {
		t.Fatalf("Grab(9) returned %v, want unknown_target", err)
	}
}

func TestGrabWhileOffline(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))
	f.fake.SetOnline(false, "connection lost")

	_, err := f.capture.Grab(1)
	if !wire.IsActuation(err, wire.ReasonDisplayDisconnected) {
		t.Fatalf("Grab while offline returned %v, want display_disconnected", err)
	}
}

func TestLifecycleEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.capture.WindowCreated(window(1, "editor"))
	f.capture.WindowUpdated(window(1, "editor (modified)"))
	f.capture.FocusChanged(1)
	f.capture.WindowDestroyed(1)

	want := []wire.EventKind{
		wire.EventWindowCreated,
		wire.EventWindowUpdated,
		wire.EventFocusChanged,
		wire.EventWindowDestroyed,
	}
	got := f.emitter.kinds()
	if len(got) != len(want) {
		t.Fatalf("emitted %d events, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, got[i], want[i])
		}
	}

	if f.capture.HasWindow(1) {
		t.Fatal("destroyed window still tracked")
	}
}

func TestFocusTracking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))
	f.addWindow(2, "terminal", host.SolidSurface(8, 8, 20, 20, 20, 255))

	if _, ok := f.capture.Focused(); ok {
		t.Fatal("focused window reported before any focus change")
	}

	f.capture.FocusChanged(2)
	focused, ok := f.capture.Focused()
	if !ok || focused.ID != 2 {
		t.Fatalf("Focused = (%+v, %v), want window 2", focused, ok)
	}

	f.capture.FocusChanged(1)
	focused, _ = f.capture.Focused()
	if focused.ID != 1 {
		t.Fatalf("focus did not move: %+v", focused)
	}

	// Focus left every tracked window.
	f.capture.FocusChanged(0)
	if _, ok := f.capture.Focused(); ok {
		t.Fatal("focus 0 left a window focused")
	}
}

func TestSubscriptionDrainsPerWindowInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))
	f.addWindow(2, "terminal", host.SolidSurface(8, 8, 20, 20, 20, 255))
	f.capture.sample()

	sub := f.capture.Subscribe(nil)
	defer sub.Close()

	frames := sub.Next()
	if len(frames) != 2 {
		t.Fatalf("drained %d frames, want 2", len(frames))
	}
	if frames[0].Window != 1 || frames[1].Window != 2 {
		t.Fatalf("windows = [%d, %d], want [1, 2]", frames[0].Window, frames[1].Window)
	}

	// Nothing new: drain is empty, not repeated.
	if frames := sub.Next(); frames != nil {
		t.Fatalf("second drain returned %d frames, want none", len(frames))
	}

	f.repaint(1, host.SolidSurface(8, 8, 99, 10, 10, 255))
	f.capture.sample()
	frames = sub.Next()
	if len(frames) != 1 || frames[0].Window != 1 || frames[0].Sequence != 2 {
		t.Fatalf("after repaint drained %+v, want window 1 sequence 2", frames)
	}
}

func TestSubscriptionSeesOnlyRetainedBacklog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 0, 0, 0, 255))

	// Publish 7 frames into a depth-5 ring.
	for shade := byte(1); shade <= 7; shade++ {
		f.repaint(1, host.SolidSurface(8, 8, shade, shade, shade, 255))
		f.capture.sample()
	}

	sub := f.capture.Subscribe(nil)
	defer sub.Close()
	frames := sub.Next()
	if len(frames) != 5 {
		t.Fatalf("backlog = %d frames, want the 5 retained", len(frames))
	}
	if frames[0].Sequence != 3 || frames[4].Sequence != 7 {
		t.Fatalf("backlog sequences %d..%d, want 3..7", frames[0].Sequence, frames[4].Sequence)
	}
}

func TestSubscriptionFilter(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))
	f.addWindow(2, "terminal", host.SolidSurface(8, 8, 20, 20, 20, 255))
	f.capture.sample()

	sub := f.capture.Subscribe([]uint32{2})
	defer sub.Close()

	frames := sub.Next()
	if len(frames) != 1 || frames[0].Window != 2 {
		t.Fatalf("filtered drain = %+v, want only window 2", frames)
	}
}

func TestSubscriptionWake(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))

	sub := f.capture.Subscribe(nil)
	defer sub.Close()

	// Subscribing starts signaled.
	select {
	case <-sub.Wake():
	default:
		t.Fatal("new subscription not signaled")
	}
	sub.Next()

	f.capture.sample()
	select {
	case <-sub.Wake():
	default:
		t.Fatal("publish did not signal the subscription")
	}
}

func TestSampleSkipsOfflineDisplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))
	f.fake.SetOnline(false, "connection lost")

	f.capture.sample()

	stats := f.capture.Stats()
	if stats.Published != 0 {
		t.Fatalf("Published = %d while offline, want 0", stats.Published)
	}
	if stats.Errors != 1 {
		t.Fatalf("Errors = %d, want 1", stats.Errors)
	}
}

func TestRunSamplesOnTicks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWindow(1, "editor", host.SolidSurface(8, 8, 10, 10, 10, 255))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.capture.Run(ctx)
	}()

	// Wait for the ticker to register before advancing.
	f.clock.WaitForTimers(1)
	f.clock.Advance(500 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for f.capture.Stats().Published == 0 {
		if time.Now().After(deadline) {
			t.Fatal("tick did not publish within 2s")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done
}
