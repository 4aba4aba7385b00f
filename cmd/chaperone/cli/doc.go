// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the chaperone CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], flag binding, and a Run function.
// Commands are assembled into a tree in cmd/chaperone/main.go and
// dispatched via [Command.Execute], which handles flag parsing, subcommand
// routing, and structured help output with examples.
//
// Flags come from either of two sources: a [Command.Flags] factory that
// builds a [pflag.FlagSet] by hand, or a [Command.Params] factory that
// returns a pointer to a tagged struct from which [FlagsFromParams]
// derives the flag set by reflection. Most commands use Params.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// [Endpoints] is the shared connection parameter block: it binds the
// --config, --commands, --events, and --frames flags and resolves them
// against the daemon's configuration file, so every command that talks
// to a daemon accepts the same connection flags and agrees with the
// daemon about where the sockets live.
package cli
