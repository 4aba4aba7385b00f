// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package inject

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/chaperone-project/chaperone/host"
	"github.com/chaperone-project/chaperone/wire"
)

// defaultQueueDepth bounds the submission queue. The injector drains
// far faster than the gate accepts in practice; a full queue means
// the display itself is stalled.
const defaultQueueDepth = 128

// Emitter publishes asynchronous notifications. Satisfied by the
// event hub.
type Emitter interface {
	Emit(kind wire.EventKind, payload any)
}

// Options configures an Injector.
type Options struct {
	Host    host.Host
	Emitter Emitter
	Logger  *slog.Logger

	// QueueDepth overrides the submission queue bound when > 0.
	QueueDepth int
}

// Injector applies accepted actions to the display host, one at a
// time, in submission order.
type Injector struct {
	host    host.Host
	emitter Emitter
	logger  *slog.Logger
	queue   chan wire.ActionRequest

	// online mirrors the host's display connection state. While
	// false, submissions fail fast instead of queueing actions the
	// display will never see.
	online atomic.Bool

	injected atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// New builds an Injector. Call Run to start draining submissions.
func New(options Options) *Injector {
	depth := options.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	injector := &Injector{
		host:    options.Host,
		emitter: options.Emitter,
		logger:  options.Logger,
		queue:   make(chan wire.ActionRequest, depth),
	}
	injector.online.Store(true)
	return injector
}

// Submit hands an accepted request to the injection goroutine.
// Returns immediately: a disconnected display yields
// display_disconnected, a full queue yields injector_overrun. A nil
// return means the action will be applied in order, not that it has
// been applied yet — failures surface later as action_failed events.
func (i *Injector) Submit(request wire.ActionRequest) error {
	if !i.online.Load() {
		i.dropped.Add(1)
		return wire.Actuation(wire.ReasonDisplayDisconnected, "display connection is down")
	}
	select {
	case i.queue <- request:
		return nil
	default:
		i.dropped.Add(1)
		return wire.Actuation(wire.ReasonInjectorOverrun, "injection queue full (%d pending)", cap(i.queue))
	}
}

// SetOnline tracks display connection state, from the host's
// DisplayState notifications. Going offline does not flush queued
// actions; they fail individually when applied and the failures are
// reported.
func (i *Injector) SetOnline(online bool) {
	i.online.Store(online)
}

// Run drains the queue until ctx is cancelled. The daemon runs this
// in its own goroutine; it is the single writer to the host's input
// pipeline.
func (i *Injector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case request := <-i.queue:
			i.apply(request)
		}
	}
}

// apply performs one injection and reports the outcome.
func (i *Injector) apply(request wire.ActionRequest) {
	var err error
	switch request.Action.Kind {
	case wire.ActionSetClipboard:
		// Clipboard writes go through the host's clipboard surface,
		// not the input pipeline, but they are still gated and still
		// serialized here.
		err = i.host.SetClipboard(request.Action.Text)
	default:
		err = i.host.Inject(request.Action)
	}

	if err == nil {
		i.injected.Add(1)
		return
	}

	i.failed.Add(1)
	classified := classify(err)
	i.logger.Warn("injection failed",
		"kind", request.Action.Kind,
		"window", request.Action.Window,
		"source", request.Source,
		"error", classified)
	i.emitter.Emit(wire.EventActionFailed, wire.ActionFailedEvent{
		Request: request,
		Error:   wire.DetailOf(classified),
	})
}

// classify maps host errors into the actuation taxonomy. Hosts that
// return structured errors pass through; anything else is a display
// rejection.
func classify(err error) error {
	var actuationErr *wire.ActuationError
	if errors.As(err, &actuationErr) {
		return actuationErr
	}
	return wire.Actuation(wire.ReasonDisplayRejected, "%v", err)
}

// Stats is a snapshot of injector counters.
type Stats struct {
	Injected uint64
	Failed   uint64
	Dropped  uint64
}

// Stats returns current counters.
func (i *Injector) Stats() Stats {
	return Stats{
		Injected: i.injected.Load(),
		Failed:   i.failed.Load(),
		Dropped:  i.dropped.Load(),
	}
}
