// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package x11

import (
	"bytes"
	"testing"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/chaperone-project/chaperone/wire"
)

func TestSurfaceFromBGRASwizzlesChannels(t *testing.T) {
	// One blue-ish pixel and one red-ish pixel, BGRA order.
	pix := []byte{
		0xff, 0x10, 0x20, 0x00, // b g r a
		0x01, 0x02, 0x03, 0x80,
	}
	surface := surfaceFromBGRA(pix, 8, 2, 1)

	if surface.Width != 2 || surface.Height != 1 {
		t.Fatalf("surface is %dx%d, want 2x1", surface.Width, surface.Height)
	}
	want := []byte{
		0x20, 0x10, 0xff, 0xff, // r g b a
		0x03, 0x02, 0x01, 0xff,
	}
	if !bytes.Equal(surface.RGBA, want) {
		t.Fatalf("pixels = %x, want %x", surface.RGBA, want)
	}
}

func TestSurfaceFromBGRARespectsStride(t *testing.T) {
	// 1x2 image with 4 bytes of row padding after each pixel.
	pix := []byte{
		0x0a, 0x0b, 0x0c, 0x00, 0xde, 0xad, 0xbe, 0xef,
		0x1a, 0x1b, 0x1c, 0x00, 0xde, 0xad, 0xbe, 0xef,
	}
	surface := surfaceFromBGRA(pix, 8, 1, 2)

	want := []byte{
		0x0c, 0x0b, 0x0a, 0xff,
		0x1c, 0x1b, 0x1a, 0xff,
	}
	if !bytes.Equal(surface.RGBA, want) {
		t.Fatalf("pixels = %x, want %x", surface.RGBA, want)
	}
}

// press sets a keycode's bit the way QueryKeymap reports it.
func press(keys []byte, keycode xproto.Keycode) {
	keys[keycode/8] |= 1 << (keycode % 8)
}

func TestChordActive(t *testing.T) {
	// Two modifier groups (left/right variants) plus the key itself.
	c := chord{groups: [][]xproto.Keycode{{37, 105}, {127}}}

	keys := make([]byte, 32)
	if c.active(keys) {
		t.Fatal("chord active with no keys pressed")
	}

	press(keys, 37)
	if c.active(keys) {
		t.Fatal("chord active with only the modifier pressed")
	}

	press(keys, 127)
	if !c.active(keys) {
		t.Fatal("chord not active with modifier and key pressed")
	}

	// The right-hand variant satisfies the modifier group too.
	keys = make([]byte, 32)
	press(keys, 105)
	press(keys, 127)
	if !c.active(keys) {
		t.Fatal("chord not active with right-hand modifier")
	}
}

func TestChordWithNoGroupsNeverFires(t *testing.T) {
	keys := make([]byte, 32)
	for i := range keys {
		keys[i] = 0xff
	}
	if (chord{}).active(keys) {
		t.Fatal("empty chord reported active")
	}
}

func TestAnyPressedIgnoresOutOfRangeKeycodes(t *testing.T) {
	if anyPressed(make([]byte, 4), []xproto.Keycode{200}) {
		t.Fatal("keycode beyond the mask reported pressed")
	}
}

func TestScrollSteps(t *testing.T) {
	cases := []struct {
		name   string
		dx, dy int
		want   []byte
	}{
		{"down", 0, 2, []byte{5, 5}},
		{"up", 0, -1, []byte{4}},
		{"right", 3, 0, []byte{7, 7, 7}},
		{"left", -2, 0, []byte{6, 6}},
		{"diagonal", 1, -1, []byte{4, 7}},
		{"none", 0, 0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scrollSteps(tc.dx, tc.dy); !bytes.Equal(got, tc.want) {
				t.Fatalf("scrollSteps(%d, %d) = %v, want %v", tc.dx, tc.dy, got, tc.want)
			}
		})
	}
}

func TestKeysymForChar(t *testing.T) {
	cases := []struct {
		char  rune
		name  string
		shift bool
	}{
		{'a', "a", false},
		{'Z', "z", true},
		{'7', "7", false},
		{'!', "exclam", true},
		{'.', "period", false},
		{'_', "underscore", true},
		{'`', "grave", false},
		{' ', "space", false},
		{'\n', "Return", false},
		{'\t', "Tab", false},
	}
	for _, tc := range cases {
		got := keysymForChar(tc.char)
		if got.name != tc.name || got.shift != tc.shift {
			t.Errorf("keysymForChar(%q) = {%s %v}, want {%s %v}",
				tc.char, got.name, got.shift, tc.name, tc.shift)
		}
	}
}

func TestButtonFor(t *testing.T) {
	cases := []struct {
		name   string
		action wire.Action
		want   byte
	}{
		{"default left", wire.Action{Kind: wire.ActionClick}, 1},
		{"right click", wire.Action{Kind: wire.ActionRightClick}, 3},
		{"explicit wins", wire.Action{Kind: wire.ActionClick, Button: 2}, 2},
		{"mouse down", wire.Action{Kind: wire.ActionMouseDown}, 1},
	}
	for _, tc := range cases {
		if got := buttonFor(tc.action); got != tc.want {
			t.Errorf("%s: buttonFor = %d, want %d", tc.name, got, tc.want)
		}
	}
}
