// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaperone-project/chaperone/wire"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadActionScriptSingleObject(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `{"kind": "click", "window": 42, "x": 120, "y": 40, "button": 1}`)
	actions, err := readActionScript(path)
	if err != nil {
		t.Fatalf("readActionScript: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	want := wire.Action{Kind: wire.ActionClick, Window: 42, X: 120, Y: 40, Button: 1}
	if actions[0] != want {
		t.Fatalf("action = %+v, want %+v", actions[0], want)
	}
}

func TestReadActionScriptArrayWithComments(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `
// Focus the editor, then type into it.
[
  {"kind": "focus_window", "window": 42}, /* decimal ids only */
  {
    "kind": "type_text",
    "window": 42,
    "text": "hello", // trailing commas are tolerated
  },
]`)
	actions, err := readActionScript(path)
	if err != nil {
		t.Fatalf("readActionScript: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].Kind != wire.ActionFocusWindow || actions[0].Window != 42 {
		t.Errorf("first action = %+v", actions[0])
	}
	if actions[1].Kind != wire.ActionTypeText || actions[1].Text != "hello" {
		t.Errorf("second action = %+v", actions[1])
	}
}

func TestReadActionScriptRejectsUnknownField(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `{"kind": "click", "window": 42, "buton": 1}`)
	_, err := readActionScript(path)
	if err == nil {
		t.Fatal("script with a misspelled field was accepted")
	}
	if !strings.Contains(err.Error(), "buton") {
		t.Fatalf("error does not name the unknown field: %v", err)
	}
}

func TestReadActionScriptRejectsEmpty(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"", "   \n", "// nothing but commentary\n", "[]"} {
		path := writeScript(t, content)
		if _, err := readActionScript(path); err == nil {
			t.Errorf("empty script %q was accepted", content)
		}
	}
}

func TestReadActionScriptRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `{"kind": "click"} {"kind": "click"}`)
	if _, err := readActionScript(path); err == nil {
		t.Fatal("script with trailing data was accepted")
	}
}

func TestReadActionScriptMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := readActionScript(filepath.Join(t.TempDir(), "absent.jsonc")); err == nil {
		t.Fatal("missing script file did not error")
	}
}

func TestBuildAction(t *testing.T) {
	t.Parallel()

	params := &proposeParams{Window: "0x2a", X: 120, Y: 40, Button: 1}
	action, err := buildAction(params, "click")
	if err != nil {
		t.Fatalf("buildAction: %v", err)
	}
	want := wire.Action{Kind: wire.ActionClick, Window: 0x2a, X: 120, Y: 40, Button: 1}
	if action != want {
		t.Fatalf("action = %+v, want %+v", action, want)
	}
}

func TestBuildActionUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := buildAction(&proposeParams{}, "teleport"); err == nil {
		t.Fatal("unknown kind was accepted")
	}
}

func TestBuildActionBadWindow(t *testing.T) {
	t.Parallel()

	if _, err := buildAction(&proposeParams{Window: "grid"}, "click"); err == nil {
		t.Fatal("unparseable window id was accepted")
	}
}

func TestBuildActionButtonRange(t *testing.T) {
	t.Parallel()

	if _, err := buildAction(&proposeParams{Button: 300}, "click"); err == nil {
		t.Fatal("out-of-range button was accepted")
	}

	action, err := buildAction(&proposeParams{}, "scroll")
	if err != nil {
		t.Fatalf("buildAction: %v", err)
	}
	if action.Button != 0 {
		t.Fatalf("unset button became %d", action.Button)
	}
}
