// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package x11

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/keybind"

	"github.com/chaperone-project/chaperone/host"
	"github.com/chaperone-project/chaperone/wire"
)

// watchWindows drives the window/focus poll until Close.
func (h *Host) watchWindows() {
	defer h.watchers.Done()
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.pollWindows()
		}
	}
}

// pollWindows reads the current window table, diffs it against the
// previous poll, and delivers the differences. Every window present is
// also marked damaged; the capture pipeline's fingerprint test decides
// whether anything actually changed.
func (h *Host) pollWindows() {
	sink := h.currentSink()
	if sink == nil {
		return
	}

	clients, err := h.listClients()
	if err != nil {
		h.reportOffline(sink, err)
		return
	}
	h.reportOnline(sink)

	active := h.activeWindow()
	current := make(map[uint32]wire.WindowInfo, len(clients))
	for _, client := range clients {
		info, err := h.describeWindow(client, active)
		if err != nil {
			// Raced a window that closed mid-poll; the next tick
			// settles it.
			continue
		}
		current[info.ID] = info
	}

	focused := uint32(0)
	if _, ok := current[uint32(active)]; ok {
		focused = uint32(active)
	}

	h.mu.Lock()
	previous := h.windows
	h.windows = current
	focusMoved := focused != h.focused
	h.focused = focused
	h.mu.Unlock()

	var created, updated []wire.WindowInfo
	var destroyed, present []uint32
	for id, info := range current {
		present = append(present, id)
		old, ok := previous[id]
		switch {
		case !ok:
			created = append(created, info)
		case old != info:
			updated = append(updated, info)
		}
	}
	for id := range previous {
		if _, ok := current[id]; !ok {
			destroyed = append(destroyed, id)
		}
	}
	sortByID(created)
	sortByID(updated)
	slices.Sort(destroyed)
	slices.Sort(present)

	for _, info := range created {
		h.logger.Debug("window appeared", "window", info.ID, "title", info.Title)
		sink.WindowCreated(info)
	}
	for _, info := range updated {
		sink.WindowUpdated(info)
	}
	for _, id := range destroyed {
		h.logger.Debug("window gone", "window", id)
		sink.WindowDestroyed(id)
	}
	if focusMoved {
		sink.FocusChanged(focused)
	}
	for _, id := range present {
		sink.Damage(id)
	}
}

func sortByID(windows []wire.WindowInfo) {
	slices.SortFunc(windows, func(a, b wire.WindowInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// listClients enumerates top-level application windows, preferring the
// window manager's EWMH client list.
func (h *Host) listClients() ([]xproto.Window, error) {
	clients, err := ewmh.ClientListGet(h.xu)
	if err == nil && len(clients) > 0 {
		return clients, nil
	}

	// No window manager maintains _NET_CLIENT_LIST here (a bare Xvfb,
	// typically): fall back to the viewable children of the root.
	tree, err := xproto.QueryTree(h.conn, h.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("query tree: %w", err)
	}
	var viewable []xproto.Window
	for _, child := range tree.Children {
		attributes, err := xproto.GetWindowAttributes(h.conn, child).Reply()
		if err != nil {
			continue
		}
		if attributes.Class == xproto.WindowClassInputOnly {
			continue
		}
		if attributes.MapState != xproto.MapStateViewable {
			continue
		}
		// Override-redirect windows are menus, tooltips, and other
		// ephemera, not control targets.
		if attributes.OverrideRedirect {
			continue
		}
		viewable = append(viewable, child)
	}
	return viewable, nil
}

func (h *Host) activeWindow() xproto.Window {
	active, err := ewmh.ActiveWindowGet(h.xu)
	if err != nil {
		return 0
	}
	return active
}

func (h *Host) describeWindow(window, active xproto.Window) (wire.WindowInfo, error) {
	geometry, err := xproto.GetGeometry(h.conn, xproto.Drawable(window)).Reply()
	if err != nil {
		return wire.WindowInfo{}, err
	}
	// Window coordinates are relative to the WM frame; translate to
	// root-absolute.
	translate, err := xproto.TranslateCoordinates(h.conn, window, h.root, 0, 0).Reply()
	if err != nil {
		return wire.WindowInfo{}, err
	}
	return wire.WindowInfo{
		ID:      uint32(window),
		X:       int(translate.DstX),
		Y:       int(translate.DstY),
		Width:   int(geometry.Width),
		Height:  int(geometry.Height),
		Title:   h.windowTitle(window),
		Class:   h.windowClass(window),
		Focused: window == active,
	}, nil
}

func (h *Host) windowTitle(window xproto.Window) string {
	if title, err := ewmh.WmNameGet(h.xu, window); err == nil && title != "" {
		return title
	}
	// Old clients only set the ICCCM property.
	title, _ := icccm.WmNameGet(h.xu, window)
	return title
}

func (h *Host) windowClass(window xproto.Window) string {
	class, err := icccm.WmClassGet(h.xu, window)
	if err != nil || class == nil {
		return ""
	}
	return class.Class
}

// reportOffline delivers the display-state transition once per outage.
func (h *Host) reportOffline(sink host.Sink, err error) {
	h.mu.Lock()
	already := h.offline
	h.offline = true
	h.mu.Unlock()
	if already {
		return
	}
	h.logger.Error("display connection lost", "error", err)
	sink.DisplayState(false, err.Error())
}

func (h *Host) reportOnline(sink host.Sink) {
	h.mu.Lock()
	wasOffline := h.offline
	h.offline = false
	h.mu.Unlock()
	if !wasOffline {
		return
	}
	h.logger.Info("display connection recovered")
	sink.DisplayState(true, "")
}

// watchInput polls the server's keyboard state for the kill-switch
// chord. Edge-triggered: one report per press, however long it is
// held.
func (h *Host) watchInput() {
	defer h.watchers.Done()
	ticker := time.NewTicker(h.inputInterval)
	defer ticker.Stop()

	held := false
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			reply, err := xproto.QueryKeymap(h.conn).Reply()
			if err != nil {
				// The window poll owns offline reporting.
				continue
			}
			pressed := h.chord.active(reply.Keys)
			if pressed && !held {
				if sink := h.currentSink(); sink != nil {
					h.logger.Warn("emergency chord pressed", "combo", h.chord.combo.String())
					sink.HumanInput(wire.Action{
						Kind: wire.ActionKeyPress,
						Key:  h.chord.combo.String(),
					})
				}
			}
			held = pressed
		}
	}
}

// chord is the kill switch resolved against the server's keymap: one
// keycode group per combo element. The chord is active when every
// group has at least one pressed keycode, so either shift key
// satisfies a "shift" modifier.
type chord struct {
	combo  wire.Combo
	groups [][]xproto.Keycode
}

// modifierKeysyms maps canonical modifier names to the keysyms that
// count as holding them.
var modifierKeysyms = map[string][]string{
	"ctrl":  {"Control_L", "Control_R"},
	"shift": {"Shift_L", "Shift_R"},
	"alt":   {"Alt_L", "Alt_R"},
	"super": {"Super_L", "Super_R"},
}

// resolveChord maps a combo onto keycodes. An unexpressible combo is
// an error: a kill switch that can never fire must fail startup.
func resolveChord(xu *xgbutil.XUtil, combo wire.Combo) (chord, error) {
	if combo.Key == "" {
		return chord{}, fmt.Errorf("kill switch combo is empty")
	}
	resolved := chord{combo: combo}
	for _, modifier := range combo.Modifiers {
		var group []xproto.Keycode
		for _, keysym := range modifierKeysyms[modifier] {
			group = append(group, keybind.StrToKeycodes(xu, keysym)...)
		}
		if len(group) == 0 {
			return chord{}, fmt.Errorf("keymap has no keycode for modifier %q", modifier)
		}
		resolved.groups = append(resolved.groups, group)
	}
	key := keybind.StrToKeycodes(xu, combo.Key)
	if len(key) == 0 {
		return chord{}, fmt.Errorf("keymap has no keycode for key %q", combo.Key)
	}
	resolved.groups = append(resolved.groups, key)
	return resolved, nil
}

// active evaluates the chord against a QueryKeymap bitmask.
func (c chord) active(keys []byte) bool {
	if len(c.groups) == 0 {
		return false
	}
	for _, group := range c.groups {
		if !anyPressed(keys, group) {
			return false
		}
	}
	return true
}

func anyPressed(keys []byte, group []xproto.Keycode) bool {
	for _, keycode := range group {
		index := int(keycode) / 8
		if index < len(keys) && keys[index]&(1<<(uint(keycode)%8)) != 0 {
			return true
		}
	}
	return false
}
