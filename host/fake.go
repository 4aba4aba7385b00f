// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"sync"

	"github.com/chaperone-project/chaperone/wire"
)

// Fake is a scriptable in-memory Host for tests. Tests add windows
// and surfaces, push damage and human input, toggle failures, and
// inspect what was injected. All methods are safe for concurrent use.
//
// Sink callbacks run synchronously on the calling goroutine, without
// Fake's lock held, so a test that adds a window observes the
// resulting lifecycle callback before the call returns.
type Fake struct {
	mu        sync.Mutex
	sink      Sink
	windows   map[uint32]wire.WindowInfo
	surfaces  map[uint32]*Surface
	clipboard string
	injected  []wire.Action
	injectErr error
	offline   bool
	closed    bool
}

// NewFake returns an empty fake host.
func NewFake() *Fake {
	return &Fake{
		windows:  make(map[uint32]wire.WindowInfo),
		surfaces: make(map[uint32]*Surface),
	}
}

// SolidSurface builds a Width×Height surface filled with one RGBA
// color. Handy for making content that fingerprints differently.
func SolidSurface(width, height int, r, g, b, a byte) *Surface {
	pixels := make([]byte, width*height*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i] = r
		pixels[i+1] = g
		pixels[i+2] = b
		pixels[i+3] = a
	}
	return &Surface{Width: width, Height: height, RGBA: pixels}
}

// Host interface.

func (f *Fake) Windows() []wire.WindowInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	windows := make([]wire.WindowInfo, 0, len(f.windows))
	for _, info := range f.windows {
		windows = append(windows, info)
	}
	return windows
}

func (f *Fake) Snapshot(window uint32) (*Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, wire.Actuation(wire.ReasonDisplayDisconnected, "display offline")
	}
	surface, ok := f.surfaces[window]
	if !ok {
		return nil, wire.Actuation(wire.ReasonUnknownTarget, "window %d", window)
	}
	return surface, nil
}

func (f *Fake) Inject(action wire.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return wire.Actuation(wire.ReasonDisplayDisconnected, "display offline")
	}
	if f.injectErr != nil {
		return f.injectErr
	}
	f.injected = append(f.injected, action)
	return nil
}

func (f *Fake) Clipboard() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clipboard, nil
}

func (f *Fake) SetClipboard(content string) error {
	f.mu.Lock()
	f.clipboard = content
	f.mu.Unlock()
	return nil
}

func (f *Fake) Start(sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("host is closed")
	}
	f.sink = sink
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.sink = nil
	f.mu.Unlock()
	return nil
}

// Scripting surface.

// AddWindow registers a window with its surface and delivers
// WindowCreated plus initial Damage.
func (f *Fake) AddWindow(info wire.WindowInfo, surface *Surface) {
	f.mu.Lock()
	f.windows[info.ID] = info
	f.surfaces[info.ID] = surface
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.WindowCreated(info)
		sink.Damage(info.ID)
	}
}

// UpdateWindow replaces a window's metadata and delivers
// WindowUpdated.
func (f *Fake) UpdateWindow(info wire.WindowInfo) {
	f.mu.Lock()
	f.windows[info.ID] = info
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.WindowUpdated(info)
	}
}

// RemoveWindow drops a window and delivers WindowDestroyed.
func (f *Fake) RemoveWindow(window uint32) {
	f.mu.Lock()
	delete(f.windows, window)
	delete(f.surfaces, window)
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.WindowDestroyed(window)
	}
}

// SetSurface replaces a window's pixels and delivers Damage.
func (f *Fake) SetSurface(window uint32, surface *Surface) {
	f.mu.Lock()
	f.surfaces[window] = surface
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.Damage(window)
	}
}

// SetFocus marks one window focused and delivers FocusChanged.
func (f *Fake) SetFocus(window uint32) {
	f.mu.Lock()
	for id, info := range f.windows {
		info.Focused = id == window
		f.windows[id] = info
	}
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.FocusChanged(window)
	}
}

// HumanInput delivers one raw human input action to the sink, as the
// display's input tap would.
func (f *Fake) HumanInput(action wire.Action) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.HumanInput(action)
	}
}

// ChangeClipboard sets the clipboard as an external actor would and
// delivers ClipboardChanged.
func (f *Fake) ChangeClipboard(content string) {
	f.mu.Lock()
	f.clipboard = content
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.ClipboardChanged(content)
	}
}

// SetOnline toggles the display connection and delivers DisplayState.
// While offline, Snapshot and Inject fail with display_disconnected.
func (f *Fake) SetOnline(online bool, reason string) {
	f.mu.Lock()
	f.offline = !online
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.DisplayState(online, reason)
	}
}

// FailInjections makes every subsequent Inject return err (nil
// restores success).
func (f *Fake) FailInjections(err error) {
	f.mu.Lock()
	f.injectErr = err
	f.mu.Unlock()
}

// Injected returns a copy of every action injected so far, in order.
func (f *Fake) Injected() []wire.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	injected := make([]wire.Action, len(f.injected))
	copy(injected, f.injected)
	return injected
}
