// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"slices"
	"strings"
)

// Combo is a parsed key combination: zero or more modifiers plus one
// key. The textual syntax is modifiers and key joined by "+", e.g.
// "ctrl+Pause", "ctrl+shift+t", or a bare "Return". Modifier names
// are case-insensitive; the key keeps its case because X keysym names
// are case-sensitive ("a" and "A" are different keysyms, "Pause" is
// not "pause").
type Combo struct {
	// Modifiers is sorted and lower-cased. Recognized names: ctrl,
	// shift, alt, super.
	Modifiers []string
	// Key is the keysym name.
	Key string
}

// modifierNames maps accepted spellings to canonical modifier names.
var modifierNames = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"meta":    "alt",
	"super":   "super",
	"mod4":    "super",
	"cmd":     "super",
}

// ParseCombo parses "mod+...+key" syntax. The last element is always
// the key; everything before it must be a recognized modifier.
func ParseCombo(s string) (Combo, error) {
	if s == "" {
		return Combo{}, fmt.Errorf("empty key combination")
	}
	parts := strings.Split(s, "+")
	for _, part := range parts {
		if part == "" {
			return Combo{}, fmt.Errorf("malformed key combination %q", s)
		}
	}

	key := parts[len(parts)-1]
	var modifiers []string
	for _, part := range parts[:len(parts)-1] {
		canonical, ok := modifierNames[strings.ToLower(part)]
		if !ok {
			return Combo{}, fmt.Errorf("unknown modifier %q in %q", part, s)
		}
		if !slices.Contains(modifiers, canonical) {
			modifiers = append(modifiers, canonical)
		}
	}
	slices.Sort(modifiers)

	return Combo{Modifiers: modifiers, Key: key}, nil
}

// Equal reports whether two combos name the same modifiers and key.
// Both sides must come from ParseCombo (modifiers canonical and
// sorted).
func (c Combo) Equal(other Combo) bool {
	return c.Key == other.Key && slices.Equal(c.Modifiers, other.Modifiers)
}

// String renders the canonical textual form.
func (c Combo) String() string {
	if len(c.Modifiers) == 0 {
		return c.Key
	}
	return strings.Join(c.Modifiers, "+") + "+" + c.Key
}

// MatchesKey reports whether the given key string (as carried in
// Action.Key) is this combo. Parse failures never match: a key the
// host could not express cannot be the kill switch.
func (c Combo) MatchesKey(key string) bool {
	parsed, err := ParseCombo(key)
	if err != nil {
		return false
	}
	return c.Equal(parsed)
}
