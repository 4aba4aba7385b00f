// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// chaperone daemon.
//
// Configuration is loaded from a single file specified by either the
// CHAPERONE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This keeps the running
// configuration deterministic and auditable.
//
// Variable expansion is performed on endpoint addresses after
// loading: ${HOME}, ${XDG_RUNTIME_DIR}, and ${VAR:-default} patterns
// are expanded. No other environment variables override config
// values.
//
// The loaded [Config] is a startup snapshot. Nothing in the daemon
// mutates it afterwards; in particular, runtime mode changes never
// write back to it, so a restart always returns to the configured
// default mode.
//
// Key exports:
//
//   - [Config] -- master struct with Frame, Gate, Channel, Log
//   - [Default] -- returns a Config with the documented defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends only on the wire package, for the value
// parsers shared with the rest of the daemon.
package config
