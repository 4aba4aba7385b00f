// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "testing"

func TestParseCombo(t *testing.T) {
	cases := []struct {
		input string
		want  string // canonical String() form
	}{
		{"ctrl+Pause", "ctrl+Pause"},
		{"Control+Pause", "ctrl+Pause"},
		{"Pause", "Pause"},
		{"ctrl+shift+t", "ctrl+shift+t"},
		{"shift+ctrl+t", "ctrl+shift+t"},
		{"meta+F4", "alt+F4"},
		{"super+l", "super+l"},
		{"a", "a"},
	}
	for _, testCase := range cases {
		combo, err := ParseCombo(testCase.input)
		if err != nil {
			t.Errorf("ParseCombo(%q): %v", testCase.input, err)
			continue
		}
		if got := combo.String(); got != testCase.want {
			t.Errorf("ParseCombo(%q).String() = %q, want %q", testCase.input, got, testCase.want)
		}
	}
}

func TestParseComboRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "+", "ctrl+", "+Pause", "hyper+x", "ctrl++t"} {
		if _, err := ParseCombo(input); err == nil {
			t.Errorf("ParseCombo(%q) succeeded, want error", input)
		}
	}
}

func TestComboMatchesKey(t *testing.T) {
	killSwitch, err := ParseCombo("ctrl+Pause")
	if err != nil {
		t.Fatalf("ParseCombo: %v", err)
	}

	matching := []string{"ctrl+Pause", "Control+Pause", "control+Pause"}
	for _, key := range matching {
		if !killSwitch.MatchesKey(key) {
			t.Errorf("MatchesKey(%q) = false, want true", key)
		}
	}

	nonMatching := []string{"Pause", "ctrl+pause", "ctrl+shift+Pause", "ctrl+Break", "", "bogus++"}
	for _, key := range nonMatching {
		if killSwitch.MatchesKey(key) {
			t.Errorf("MatchesKey(%q) = true, want false", key)
		}
	}
}
