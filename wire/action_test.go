// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "testing"

func TestActionValidateAcceptsWellFormed(t *testing.T) {
	actions := []Action{
		{Kind: ActionClick, Window: 1, X: 10, Y: 10},
		{Kind: ActionDoubleClick, Window: 1, X: 0, Y: 0},
		{Kind: ActionRightClick, Window: 2, X: 5, Y: 9},
		{Kind: ActionMouseMove, X: 500, Y: 300},
		{Kind: ActionMouseDown, Window: 1, X: 1, Y: 1, Button: 1},
		{Kind: ActionMouseUp, Window: 1, X: 1, Y: 1, Button: 1},
		{Kind: ActionScroll, DeltaY: -3},
		{Kind: ActionScroll, Window: 4, DeltaX: 2},
		{Kind: ActionKeyPress, Key: "Return"},
		{Kind: ActionKeyPress, Key: "ctrl+shift+t"},
		{Kind: ActionKeyDown, Key: "a"},
		{Kind: ActionKeyUp, Key: "a"},
		{Kind: ActionTypeText, Text: "hello world"},
		{Kind: ActionSetClipboard},
		{Kind: ActionFocusWindow, Window: 3},
		{Kind: ActionCloseWindow, Window: 3},
		{Kind: ActionMoveResizeWindow, Window: 3, X: 0, Y: 0, Width: 800, Height: 600},
	}
	for _, action := range actions {
		if err := action.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", action, err)
		}
	}
}

func TestActionValidateRejectsMalformed(t *testing.T) {
	cases := []struct {
		name   string
		action Action
	}{
		{"unknown kind", Action{Kind: "teleport"}},
		{"empty kind", Action{}},
		{"click without window", Action{Kind: ActionClick, X: 1, Y: 1}},
		{"click negative coordinates", Action{Kind: ActionClick, Window: 1, X: -1, Y: 5}},
		{"mouse_down without window", Action{Kind: ActionMouseDown, X: 1, Y: 1}},
		{"scroll without delta", Action{Kind: ActionScroll, Window: 1}},
		{"key_press without key", Action{Kind: ActionKeyPress}},
		{"key_press bad combo", Action{Kind: ActionKeyPress, Key: "hyper+x"}},
		{"type_text without text", Action{Kind: ActionTypeText}},
		{"focus without window", Action{Kind: ActionFocusWindow}},
		{"close without window", Action{Kind: ActionCloseWindow}},
		{"move_resize zero size", Action{Kind: ActionMoveResizeWindow, Window: 1}},
	}

	for _, testCase := range cases {
		err := testCase.action.Validate()
		if err == nil {
			t.Errorf("%s: Validate accepted %+v", testCase.name, testCase.action)
			continue
		}
		if !IsProtocol(err, ReasonMalformedRequest) {
			t.Errorf("%s: error = %v, want ProtocolError(malformed_request)", testCase.name, err)
		}
	}
}

func TestActionTargetsWindow(t *testing.T) {
	if (Action{Kind: ActionMouseMove, X: 1, Y: 1}).TargetsWindow() {
		t.Error("windowless mouse_move claims a target")
	}
	if !(Action{Kind: ActionClick, Window: 9, X: 1, Y: 1}).TargetsWindow() {
		t.Error("click with window 9 claims no target")
	}
}
