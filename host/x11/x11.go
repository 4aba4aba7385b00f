// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package x11

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xgraphics"

	"github.com/chaperone-project/chaperone/host"
	"github.com/chaperone-project/chaperone/wire"
)

// Poll cadences. Window state can lag a little; the kill-switch watch
// cannot.
const (
	defaultPollInterval  = 250 * time.Millisecond
	defaultInputInterval = 25 * time.Millisecond
)

// Options configures the adapter.
type Options struct {
	// Display is the X display string, e.g. ":0". Empty uses $DISPLAY.
	Display string

	// KillSwitch is the chord the input watcher reports as human
	// input. New fails if the server's keymap cannot express it.
	KillSwitch wire.Combo

	// PollInterval is the window/focus poll cadence. Default 250ms.
	PollInterval time.Duration

	// InputPollInterval is the keyboard-state poll cadence for the
	// kill-switch watch. Default 25ms.
	InputPollInterval time.Duration

	Logger *slog.Logger
}

// Host drives one X server connection. Safe for concurrent use: xgb
// serializes the underlying protocol requests.
type Host struct {
	xu     *xgbutil.XUtil
	conn   *xgb.Conn
	root   xproto.Window
	logger *slog.Logger

	pollInterval  time.Duration
	inputInterval time.Duration
	chord         chord

	mu      sync.Mutex
	sink    host.Sink
	windows map[uint32]wire.WindowInfo
	focused uint32
	offline bool
	closed  bool
	stop    chan struct{}

	watchers sync.WaitGroup
}

var _ host.Host = (*Host)(nil)

// New connects to the display and prepares the XTEST and keybind
// machinery. Nothing is delivered until Start.
func New(options Options) (*Host, error) {
	// xgb and xgbutil log connection chatter straight to stderr;
	// route it away so daemon output stays structured.
	xgb.Logger.SetOutput(io.Discard)
	xgbutil.Logger.SetOutput(io.Discard)

	xu, err := xgbutil.NewConnDisplay(options.Display)
	if err != nil {
		return nil, fmt.Errorf("connecting to display %q: %w", options.Display, err)
	}
	if err := xtest.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("initializing XTEST extension: %w", err)
	}
	keybind.Initialize(xu)

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		xu:            xu,
		conn:          xu.Conn(),
		root:          xu.RootWin(),
		logger:        logger,
		pollInterval:  options.PollInterval,
		inputInterval: options.InputPollInterval,
		windows:       make(map[uint32]wire.WindowInfo),
		stop:          make(chan struct{}),
	}
	if h.pollInterval <= 0 {
		h.pollInterval = defaultPollInterval
	}
	if h.inputInterval <= 0 {
		h.inputInterval = defaultInputInterval
	}

	// A kill switch the keymap cannot express must fail startup, not
	// silently never fire.
	h.chord, err = resolveChord(xu, options.KillSwitch)
	if err != nil {
		xu.Conn().Close()
		return nil, err
	}
	return h, nil
}

// Start delivers one synchronous poll so the sink sees the current
// windows immediately, then watches in the background.
func (h *Host) Start(sink host.Sink) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("host is closed")
	}
	if h.sink != nil {
		h.mu.Unlock()
		return fmt.Errorf("host already started")
	}
	h.sink = sink
	h.mu.Unlock()

	h.pollWindows()

	h.watchers.Add(2)
	go h.watchWindows()
	go h.watchInput()
	return nil
}

// Close stops the watchers and drops the connection. Safe to call
// more than once.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stop)
	h.mu.Unlock()

	h.watchers.Wait()
	h.conn.Close()
	return nil
}

// Windows returns the window table as of the last poll.
func (h *Host) Windows() []wire.WindowInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	windows := make([]wire.WindowInfo, 0, len(h.windows))
	for _, info := range h.windows {
		windows = append(windows, info)
	}
	return windows
}

// Snapshot reads the window's current pixels from the server.
func (h *Host) Snapshot(window uint32) (*host.Surface, error) {
	image, err := xgraphics.NewDrawable(h.xu, xproto.Drawable(window))
	if err != nil {
		if badWindow(err) {
			return nil, wire.Actuation(wire.ReasonUnknownTarget, "window %d: %v", window, err)
		}
		return nil, wire.Actuation(wire.ReasonDisplayRejected, "snapshot of window %d: %v", window, err)
	}
	bounds := image.Bounds()
	return surfaceFromBGRA(image.Pix, image.Stride, bounds.Dx(), bounds.Dy()), nil
}

// Clipboard is unsupported: reading a selection means owning the
// conversion handshake. TODO: implement X selection ownership.
func (h *Host) Clipboard() (string, error) {
	return "", wire.Actuation(wire.ReasonUnsupportedAction, "clipboard access is not supported on the x11 host")
}

// SetClipboard is unsupported for the same reason as Clipboard.
func (h *Host) SetClipboard(content string) error {
	return wire.Actuation(wire.ReasonUnsupportedAction, "clipboard access is not supported on the x11 host")
}

// surfaceFromBGRA converts the server's BGRA pixel order to the RGBA
// surface contract, forcing full opacity: alpha from an X drawable is
// garbage for our purposes.
func surfaceFromBGRA(pix []byte, stride, width, height int) *host.Surface {
	rgba := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+width*4]
		out := rgba[y*width*4:]
		for x := 0; x < width; x++ {
			out[x*4+0] = row[x*4+2]
			out[x*4+1] = row[x*4+1]
			out[x*4+2] = row[x*4+0]
			out[x*4+3] = 0xff
		}
	}
	return &host.Surface{Width: width, Height: height, RGBA: rgba}
}

// badWindow reports whether an X error names a window that no longer
// exists.
func badWindow(err error) bool {
	_, ok := err.(xproto.WindowError)
	return ok
}

// currentSink reads the sink without racing Start.
func (h *Host) currentSink() host.Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink
}
