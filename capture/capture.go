// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaperone-project/chaperone/host"
	"github.com/chaperone-project/chaperone/lib/clock"
	"github.com/chaperone-project/chaperone/wire"
)

// Sampling defaults.
const (
	defaultFrameRate  = 3.0
	defaultQueueDepth = 5
)

// Emitter publishes asynchronous notifications. Satisfied by the
// event hub. Emit must not block.
type Emitter interface {
	Emit(kind wire.EventKind, payload any)
}

// Options configures a Capture.
type Options struct {
	Host    host.Host
	Encoder *Encoder
	Emitter Emitter
	Clock   clock.Clock
	Logger  *slog.Logger

	// FrameRate is the sampling rate in frames per second. Default 3.
	FrameRate float64

	// QueueDepth bounds each window's frame ring. Default 5.
	QueueDepth int
}

// trackedWindow is the registry entry for one live window.
type trackedWindow struct {
	info wire.WindowInfo
	ring *frameRing

	// fingerprint of the last published frame; the change test
	// against it is what keeps static content silent.
	fingerprint []byte

	// damaged: the host reported content changes since the last
	// sample. forced: a refresh asked to republish regardless of the
	// fingerprint test.
	damaged bool
	forced  bool
}

// Capture tracks windows and publishes their content as a bounded,
// change-aware frame stream. All methods are safe for concurrent
// use.
type Capture struct {
	host     host.Host
	encoder  *Encoder
	emitter  Emitter
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	depth    int

	mu      sync.Mutex
	windows map[uint32]*trackedWindow
	subs    map[*Subscription]struct{}

	sampled   atomic.Uint64
	published atomic.Uint64
	unchanged atomic.Uint64
	errors    atomic.Uint64
}

// New builds a Capture. Call Run to start the sampling loop; the
// window registry and queries work before and without it.
func New(options Options) *Capture {
	rate := options.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}
	depth := options.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	encoder := options.Encoder
	if encoder == nil {
		encoder = NewEncoder(EncoderOptions{})
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		host:     options.Host,
		encoder:  encoder,
		emitter:  options.Emitter,
		clock:    clk,
		logger:   logger,
		interval: time.Duration(float64(time.Second) / rate),
		depth:    depth,
		windows:  make(map[uint32]*trackedWindow),
		subs:     make(map[*Subscription]struct{}),
	}
}

// Run samples damaged windows at the configured rate until ctx is
// cancelled.
func (c *Capture) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

// Host lifecycle callbacks, fanned out from the daemon's sink.

// WindowCreated starts tracking a window. The first sample always
// publishes: a new window has no fingerprint to match.
func (c *Capture) WindowCreated(info wire.WindowInfo) {
	c.mu.Lock()
	if _, ok := c.windows[info.ID]; ok {
		// Re-announced by the host; treat as an update.
		c.mu.Unlock()
		c.WindowUpdated(info)
		return
	}
	c.windows[info.ID] = &trackedWindow{
		info:    info,
		ring:    newFrameRing(c.depth),
		damaged: true,
	}
	c.mu.Unlock()

	c.logger.Debug("window tracked", "window", info.ID, "title", info.Title)
	c.emit(wire.EventWindowCreated, wire.WindowEvent{Window: info})
}

// WindowUpdated replaces a window's metadata and marks it for
// sampling.
func (c *Capture) WindowUpdated(info wire.WindowInfo) {
	c.mu.Lock()
	w, ok := c.windows[info.ID]
	if !ok {
		c.mu.Unlock()
		c.WindowCreated(info)
		return
	}
	w.info = info
	w.damaged = true
	c.mu.Unlock()

	c.emit(wire.EventWindowUpdated, wire.WindowEvent{Window: info})
}

// WindowDestroyed stops tracking a window and drops its frames.
func (c *Capture) WindowDestroyed(window uint32) {
	c.mu.Lock()
	_, ok := c.windows[window]
	delete(c.windows, window)
	c.mu.Unlock()

	if !ok {
		return
	}
	c.logger.Debug("window untracked", "window", window)
	c.emit(wire.EventWindowDestroyed, wire.WindowDestroyedEvent{Window: window})
}

// FocusChanged records the newly focused window (0 for none).
func (c *Capture) FocusChanged(window uint32) {
	c.mu.Lock()
	for id, w := range c.windows {
		w.info.Focused = id == window
	}
	c.mu.Unlock()

	c.emit(wire.EventFocusChanged, wire.FocusEvent{Window: window})
}

// Damage marks a window's content as changed since the last sample.
func (c *Capture) Damage(window uint32) {
	c.mu.Lock()
	if w, ok := c.windows[window]; ok {
		w.damaged = true
	}
	c.mu.Unlock()
}

func (c *Capture) emit(kind wire.EventKind, payload any) {
	if c.emitter != nil {
		c.emitter.Emit(kind, payload)
	}
}

// Queries.

// Windows lists tracked windows in id order.
func (c *Capture) Windows() []wire.WindowInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	windows := make([]wire.WindowInfo, 0, len(c.windows))
	for _, w := range c.windows {
		windows = append(windows, w.info)
	}
	slices.SortFunc(windows, func(a, b wire.WindowInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return windows
}

// Window returns one tracked window's metadata.
func (c *Capture) Window(window uint32) (wire.WindowInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[window]
	if !ok {
		return wire.WindowInfo{}, false
	}
	return w.info, true
}

// HasWindow reports whether a window id is currently tracked. This is
// the gate's target validator.
func (c *Capture) HasWindow(window uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.windows[window]
	return ok
}

// Focused returns the focused window, if any is.
func (c *Capture) Focused() (wire.WindowInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.windows {
		if w.info.Focused {
			return w.info, true
		}
	}
	return wire.WindowInfo{}, false
}

// Latest returns the most recent published frame for a window, or
// (nil, nil) when the window is tracked but nothing has published
// yet.
func (c *Capture) Latest(window uint32) (*wire.FrameMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[window]
	if !ok {
		return nil, wire.Actuation(wire.ReasonUnknownTarget, "window %d is not tracked", window)
	}
	return w.ring.latest(), nil
}

// Refresh forces the next sample to republish a window (0 = every
// window) even if its content is unchanged.
func (c *Capture) Refresh(window uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if window == 0 {
		for _, w := range c.windows {
			w.forced = true
		}
		return nil
	}
	w, ok := c.windows[window]
	if !ok {
		return wire.Actuation(wire.ReasonUnknownTarget, "window %d is not tracked", window)
	}
	w.forced = true
	return nil
}

// Grab snapshots, encodes, and publishes a window's content right
// now, off the sampling cadence, bypassing the fingerprint test.
func (c *Capture) Grab(window uint32) (*wire.FrameMessage, error) {
	c.mu.Lock()
	_, ok := c.windows[window]
	c.mu.Unlock()
	if !ok {
		return nil, wire.Actuation(wire.ReasonUnknownTarget, "window %d is not tracked", window)
	}
	return c.captureOne(window, true)
}

// Sampling.

type captureTask struct {
	window uint32
	forced bool
}

// sample runs one tick: snapshot every window with pending damage or
// a forced refresh.
func (c *Capture) sample() {
	c.mu.Lock()
	tasks := make([]captureTask, 0, len(c.windows))
	for id, w := range c.windows {
		if w.damaged || w.forced {
			tasks = append(tasks, captureTask{window: id, forced: w.forced})
			w.damaged = false
			w.forced = false
		}
	}
	c.mu.Unlock()

	slices.SortFunc(tasks, func(a, b captureTask) int {
		return cmp.Compare(a.window, b.window)
	})
	for _, task := range tasks {
		c.captureOne(task.window, task.forced)
	}
}

// captureOne snapshots one window and publishes a frame if the
// content changed (or forced). Returns (nil, nil) when the unchanged
// content was skipped. Snapshots and encoding run outside the
// registry lock; the window is re-checked before publication since it
// can be destroyed mid-capture.
func (c *Capture) captureOne(window uint32, forced bool) (*wire.FrameMessage, error) {
	c.sampled.Add(1)

	surface, err := c.host.Snapshot(window)
	if err != nil {
		c.errors.Add(1)
		// Routine races (window closed, display dropped) are not
		// worth a warning.
		if wire.IsActuation(err, wire.ReasonUnknownTarget) || wire.IsActuation(err, wire.ReasonDisplayDisconnected) {
			c.logger.Debug("snapshot skipped", "window", window, "error", err)
		} else {
			c.logger.Warn("snapshot failed", "window", window, "error", err)
		}
		return nil, err
	}
	fingerprint := Fingerprint(surface)

	c.mu.Lock()
	w, ok := c.windows[window]
	if !ok {
		c.mu.Unlock()
		return nil, wire.Actuation(wire.ReasonUnknownTarget, "window %d is not tracked", window)
	}
	if !forced && bytes.Equal(w.fingerprint, fingerprint) {
		c.unchanged.Add(1)
		c.mu.Unlock()
		return nil, nil
	}
	info := w.info
	c.mu.Unlock()

	frame, err := c.encoder.Encode(surface)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("frame encode failed", "window", window, "error", err)
		return nil, err
	}
	frame.Window = window
	frame.Timestamp = c.clock.Now().UnixMilli()
	frame.Fingerprint = fingerprint
	frame.Title = info.Title
	frame.Class = info.Class
	frame.Focused = info.Focused

	c.mu.Lock()
	w, ok = c.windows[window]
	if !ok {
		c.mu.Unlock()
		return nil, wire.Actuation(wire.ReasonUnknownTarget, "window %d closed during capture", window)
	}
	w.fingerprint = fingerprint
	w.ring.push(frame)
	wake := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		if s.wants(window) {
			wake = append(wake, s)
		}
	}
	c.mu.Unlock()

	c.published.Add(1)
	for _, s := range wake {
		s.signal()
	}
	c.logger.Debug("frame published",
		"window", window,
		"sequence", frame.Sequence,
		"codec", frame.Codec,
		"bytes", len(frame.Data))
	return frame, nil
}

// Stats is a snapshot of capture counters.
type Stats struct {
	Windows   int
	Sampled   uint64
	Published uint64
	Unchanged uint64
	Errors    uint64
}

// Stats returns current counters.
func (c *Capture) Stats() Stats {
	c.mu.Lock()
	windows := len(c.windows)
	c.mu.Unlock()
	return Stats{
		Windows:   windows,
		Sampled:   c.sampled.Load(),
		Published: c.published.Load(),
		Unchanged: c.unchanged.Load(),
		Errors:    c.errors.Load(),
	}
}
