// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package x11

import (
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/keybind"

	"github.com/chaperone-project/chaperone/wire"
)

// Settle delays between synthetic press/release pairs. Toolkits
// debounce; events landing in the same millisecond get swallowed.
const (
	buttonDelay = 25 * time.Millisecond
	keyDelay    = 12 * time.Millisecond
)

// Inject applies one synthetic action through XTEST, or through EWMH
// client messages for window management kinds.
func (h *Host) Inject(action wire.Action) error {
	switch action.Kind {
	case wire.ActionClick:
		return h.click(action, 1)
	case wire.ActionDoubleClick:
		return h.click(action, 2)
	case wire.ActionRightClick:
		return h.click(action, 1)
	case wire.ActionMouseMove:
		// mouse_move coordinates are display-absolute.
		return h.pointTo(0, action.X, action.Y)
	case wire.ActionMouseDown:
		if err := h.pointTo(action.Window, action.X, action.Y); err != nil {
			return err
		}
		return h.button(xproto.ButtonPress, buttonFor(action))
	case wire.ActionMouseUp:
		if err := h.pointTo(action.Window, action.X, action.Y); err != nil {
			return err
		}
		return h.button(xproto.ButtonRelease, buttonFor(action))
	case wire.ActionScroll:
		return h.scroll(action)
	case wire.ActionKeyPress:
		return h.pressCombo(action.Key)
	case wire.ActionKeyDown:
		return h.holdCombo(action.Key, true)
	case wire.ActionKeyUp:
		return h.holdCombo(action.Key, false)
	case wire.ActionTypeText:
		return h.typeText(action.Text)
	case wire.ActionSetClipboard:
		return h.SetClipboard(action.Text)
	case wire.ActionFocusWindow:
		if err := ewmh.ActiveWindowReq(h.xu, xproto.Window(action.Window)); err != nil {
			return wire.Actuation(wire.ReasonDisplayRejected, "activating window %d: %v", action.Window, err)
		}
		return nil
	case wire.ActionCloseWindow:
		if err := ewmh.CloseWindow(h.xu, xproto.Window(action.Window)); err != nil {
			return wire.Actuation(wire.ReasonDisplayRejected, "closing window %d: %v", action.Window, err)
		}
		return nil
	case wire.ActionMoveResizeWindow:
		err := ewmh.MoveresizeWindow(h.xu, xproto.Window(action.Window),
			action.X, action.Y, action.Width, action.Height)
		if err != nil {
			return wire.Actuation(wire.ReasonDisplayRejected, "moving window %d: %v", action.Window, err)
		}
		return nil
	}
	return wire.Actuation(wire.ReasonUnsupportedAction, "action kind %q", action.Kind)
}

// buttonFor picks the X button for a pointer action: an explicit
// Button wins, otherwise the kind decides.
func buttonFor(action wire.Action) byte {
	if action.Button != 0 {
		return action.Button
	}
	if action.Kind == wire.ActionRightClick {
		return 3
	}
	return 1
}

func (h *Host) click(action wire.Action, times int) error {
	if err := h.pointTo(action.Window, action.X, action.Y); err != nil {
		return err
	}
	button := buttonFor(action)
	for i := 0; i < times; i++ {
		if err := h.button(xproto.ButtonPress, button); err != nil {
			return err
		}
		time.Sleep(buttonDelay)
		if err := h.button(xproto.ButtonRelease, button); err != nil {
			return err
		}
		if i < times-1 {
			time.Sleep(buttonDelay)
		}
	}
	h.conn.Sync()
	return nil
}

// pointTo warps the pointer. Window 0 means x and y are already
// root-absolute; otherwise they are window-relative and translated.
func (h *Host) pointTo(window uint32, x, y int) error {
	rootX, rootY := int16(x), int16(y)
	if window != 0 {
		translate, err := xproto.TranslateCoordinates(h.conn,
			xproto.Window(window), h.root, int16(x), int16(y)).Reply()
		if err != nil {
			if badWindow(err) {
				return wire.Actuation(wire.ReasonUnknownTarget, "window %d: %v", window, err)
			}
			return wire.Actuation(wire.ReasonDisplayRejected, "translating coordinates: %v", err)
		}
		rootX, rootY = translate.DstX, translate.DstY
	}
	err := xproto.WarpPointerChecked(h.conn,
		xproto.WindowNone, h.root, 0, 0, 0, 0, rootX, rootY).Check()
	if err != nil {
		return wire.Actuation(wire.ReasonDisplayRejected, "moving pointer: %v", err)
	}
	return nil
}

func (h *Host) button(event byte, button byte) error {
	err := xtest.FakeInputChecked(h.conn, event, button, 0, h.root, 0, 0, 0).Check()
	if err != nil {
		return wire.Actuation(wire.ReasonDisplayRejected, "synthesizing button %d: %v", button, err)
	}
	return nil
}

func (h *Host) scroll(action wire.Action) error {
	if action.Window != 0 {
		if err := h.pointTo(action.Window, action.X, action.Y); err != nil {
			return err
		}
	}
	for _, button := range scrollSteps(action.DeltaX, action.DeltaY) {
		if err := h.button(xproto.ButtonPress, button); err != nil {
			return err
		}
		if err := h.button(xproto.ButtonRelease, button); err != nil {
			return err
		}
		time.Sleep(keyDelay)
	}
	h.conn.Sync()
	return nil
}

// scrollSteps expands scroll deltas into wheel-button taps: 4 up,
// 5 down, 6 left, 7 right. Positive deltas scroll down and right.
func scrollSteps(dx, dy int) []byte {
	var steps []byte
	button, count := byte(5), dy
	if dy < 0 {
		button, count = 4, -dy
	}
	for i := 0; i < count; i++ {
		steps = append(steps, button)
	}
	button, count = byte(7), dx
	if dx < 0 {
		button, count = 6, -dx
	}
	for i := 0; i < count; i++ {
		steps = append(steps, button)
	}
	return steps
}

// pressCombo holds the combo's modifiers, taps the key, and releases
// in reverse order.
func (h *Host) pressCombo(key string) error {
	keycodes, err := h.comboKeycodes(key)
	if err != nil {
		return err
	}
	for _, keycode := range keycodes {
		if err := h.key(xproto.KeyPress, keycode); err != nil {
			return err
		}
		time.Sleep(keyDelay)
	}
	for i := len(keycodes) - 1; i >= 0; i-- {
		if err := h.key(xproto.KeyRelease, keycodes[i]); err != nil {
			return err
		}
		time.Sleep(keyDelay)
	}
	h.conn.Sync()
	return nil
}

// holdCombo presses (or releases) without the matching other half,
// for key_down and key_up. Releases run in reverse press order.
func (h *Host) holdCombo(key string, down bool) error {
	keycodes, err := h.comboKeycodes(key)
	if err != nil {
		return err
	}
	event := byte(xproto.KeyPress)
	if !down {
		event = xproto.KeyRelease
		slices.Reverse(keycodes)
	}
	for _, keycode := range keycodes {
		if err := h.key(event, keycode); err != nil {
			return err
		}
		time.Sleep(keyDelay)
	}
	h.conn.Sync()
	return nil
}

// comboKeycodes resolves a combo string to keycodes in press order,
// modifiers first.
func (h *Host) comboKeycodes(key string) ([]xproto.Keycode, error) {
	combo, err := wire.ParseCombo(key)
	if err != nil {
		return nil, wire.Actuation(wire.ReasonUnsupportedAction, "key %q: %v", key, err)
	}
	var keycodes []xproto.Keycode
	for _, modifier := range combo.Modifiers {
		keycode, ok := h.firstKeycode(modifierKeysyms[modifier]...)
		if !ok {
			return nil, wire.Actuation(wire.ReasonUnsupportedAction, "keymap has no keycode for modifier %q", modifier)
		}
		keycodes = append(keycodes, keycode)
	}
	keycode, ok := h.firstKeycode(combo.Key)
	if !ok {
		return nil, wire.Actuation(wire.ReasonUnsupportedAction, "keymap has no keycode for key %q", combo.Key)
	}
	return append(keycodes, keycode), nil
}

func (h *Host) firstKeycode(keysyms ...string) (xproto.Keycode, bool) {
	for _, keysym := range keysyms {
		if keycodes := keybind.StrToKeycodes(h.xu, keysym); len(keycodes) > 0 {
			return keycodes[0], true
		}
	}
	return 0, false
}

func (h *Host) key(event byte, keycode xproto.Keycode) error {
	err := xtest.FakeInputChecked(h.conn, event, byte(keycode), 0, h.root, 0, 0, 0).Check()
	if err != nil {
		return wire.Actuation(wire.ReasonDisplayRejected, "synthesizing keycode %d: %v", keycode, err)
	}
	return nil
}

func (h *Host) typeText(text string) error {
	for _, char := range text {
		ref := keysymForChar(char)
		keycode, ok := h.firstKeycode(ref.name)
		if !ok {
			return wire.Actuation(wire.ReasonUnsupportedAction, "keymap cannot type %q", string(char))
		}
		var shift xproto.Keycode
		if ref.shift {
			shift, ok = h.firstKeycode(modifierKeysyms["shift"]...)
			if !ok {
				return wire.Actuation(wire.ReasonUnsupportedAction, "keymap has no shift key")
			}
			if err := h.key(xproto.KeyPress, shift); err != nil {
				return err
			}
		}
		if err := h.key(xproto.KeyPress, keycode); err != nil {
			return err
		}
		time.Sleep(keyDelay)
		if err := h.key(xproto.KeyRelease, keycode); err != nil {
			return err
		}
		if ref.shift {
			if err := h.key(xproto.KeyRelease, shift); err != nil {
				return err
			}
		}
		time.Sleep(keyDelay)
	}
	h.conn.Sync()
	return nil
}

// keysymRef names the keysym that types one character and whether
// shift must be held for it.
type keysymRef struct {
	name  string
	shift bool
}

// The us-layout punctuation tables. Other layouts will mistype some
// of these; the keymap is the server's business, not ours.
var shiftedKeysyms = map[rune]string{
	'!': "exclam", '@': "at", '#': "numbersign", '$': "dollar",
	'%': "percent", '^': "asciicircum", '&': "ampersand", '*': "asterisk",
	'(': "parenleft", ')': "parenright", '_': "underscore", '+': "plus",
	'{': "braceleft", '}': "braceright", '|': "bar", ':': "colon",
	'"': "quotedbl", '<': "less", '>': "greater", '?': "question",
	'~': "asciitilde",
}

var plainKeysyms = map[rune]string{
	'.': "period", ',': "comma", ';': "semicolon", '\'': "apostrophe",
	'/': "slash", '\\': "backslash", '-': "minus", '=': "equal",
	'[': "bracketleft", ']': "bracketright", '`': "grave",
}

// keysymForChar maps one character to the keysym that produces it.
func keysymForChar(char rune) keysymRef {
	if char >= 'A' && char <= 'Z' {
		return keysymRef{name: strings.ToLower(string(char)), shift: true}
	}
	if name, ok := shiftedKeysyms[char]; ok {
		return keysymRef{name: name, shift: true}
	}
	if name, ok := plainKeysyms[char]; ok {
		return keysymRef{name: name}
	}
	switch char {
	case '\n':
		return keysymRef{name: "Return"}
	case '\t':
		return keysymRef{name: "Tab"}
	case ' ':
		return keysymRef{name: "space"}
	}
	return keysymRef{name: string(char)}
}
