// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration for
// the control plane.
//
// Every payload that crosses a channel boundary — command requests and
// responses, events, frame envelopes — is CBOR. JSON appears only at
// the outermost edge, as optional CLI output formatting. This package
// provides the shared encoding and decoding modes so that every
// package encodes identically without duplicating configuration. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes.
//
// For buffer-oriented operations (message payloads):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Wire types carry `cbor` struct tags throughout: nothing in the
// protocol is ever serialized as JSON, so a `json` tag would
// misdocument the contract. Types that additionally surface in CLI
// --json output carry a `json` tag alone, which fxamacker/cbor reads
// as a fallback when no `cbor` tag is present.
package codec
