// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package inject serializes accepted input actions into the display
// host. The Injector is the only writer to the host's input pipeline:
// one goroutine applies actions strictly in acceptance order, so a
// key-down from one actor can never land inside another actor's
// click-down/click-up pair.
//
// The gate submits accepted requests under its decision lock, which
// makes injector order identical to gate acceptance order. Submission
// never blocks: a full queue is an injector_overrun actuation error,
// and a disconnected display fails fast with display_disconnected.
// Injection failures are emitted as action_failed events — surfaced,
// logged, and never fatal to the pipeline.
package inject
