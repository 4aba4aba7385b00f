// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

// Package control serves the three daemon channels: commands, events,
// and frames. Each channel is an independent listener speaking the
// framed CBOR protocol from the wire package.
//
// The command channel is request/response. Every connection is one
// session: a Hello handshake establishes the caller's role, then
// requests are handled sequentially and responses are written in
// request order, each echoing the request's sequence number. A
// session's sequence numbers must strictly increase; nothing about a
// session survives its connection.
//
// The event channel pushes [wire.Event] notifications. The [Hub] is
// the daemon's single event sink: the gate, the capture pipeline, and
// the injector all emit into it, and every event-channel subscriber
// receives the stream in generation order. Emit never blocks; a slow
// subscriber loses its oldest undelivered events.
//
// The frame channel pushes encoded window frames. Each subscriber
// holds a [capture.Subscription] with an optional window filter and is
// drained at its own pace, with ring retention bounding how far it
// can fall behind.
//
// [Client] is the matching dialer for all three channels, used by the
// CLI, the tests, and external agents.
package control
