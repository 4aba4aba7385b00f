// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Command chaperone is the operator CLI for a chaperone daemon.
//
// It speaks the daemon's command and event channels over the endpoints
// in the daemon's configuration file (or explicit --commands/--events/
// --frames flags). Subcommands cover the operator loop: inspect the
// control mode and tracked windows (status, windows), switch modes
// (set-mode), decide pending agent actions (approvals, approve,
// reject), pull frames (screenshot), read the tracked clipboard
// (clipboard), watch the notification stream (events), and push
// actions through the arbitration gate for smoke-testing (propose).
//
// Listing commands accept --json for scripting; propose reads JSONC
// action scripts so test sequences can carry comments.
package main
