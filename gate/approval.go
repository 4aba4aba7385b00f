// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"cmp"
	"slices"
	"time"

	"github.com/chaperone-project/chaperone/lib/clock"
	"github.com/chaperone-project/chaperone/wire"
)

// approval is one supervised-mode entry awaiting a human decision.
// It leaves the queue exactly once: approved, rejected, timed_out, or
// cancelled by a flush.
type approval struct {
	id       uint64
	request  wire.ActionRequest
	deadline time.Time
	timer    *clock.Timer
}

// enqueueApprovalLocked queues an agent request and announces it.
// Ids are monotonic across the daemon's lifetime, never reused.
func (g *Gate) enqueueApprovalLocked(request wire.ActionRequest) uint64 {
	g.nextApproval++
	id := g.nextApproval

	entry := &approval{
		id:       id,
		request:  request,
		deadline: g.clock.Now().Add(g.approvalTimeout),
	}
	entry.timer = g.clock.AfterFunc(g.approvalTimeout, func() {
		g.expireApproval(id)
	})
	g.approvals[id] = entry

	g.logger.Info("approval required",
		"approval", id,
		"kind", request.Action.Kind,
		"window", request.Action.Window,
		"deadline", entry.deadline)
	g.emit(wire.EventApprovalRequired, wire.ApprovalRequiredEvent{
		Approval: id,
		Request:  request,
		Deadline: entry.deadline.UnixMilli(),
	})
	return id
}

// expireApproval runs at an entry's deadline. A decision that landed
// first already removed the entry; the stale timer is a no-op then.
func (g *Gate) expireApproval(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.approvals[id]; !ok {
		return
	}
	delete(g.approvals, id)

	g.logger.Info("approval timed out", "approval", id)
	g.emit(wire.EventApprovalResolved, wire.ApprovalResolvedEvent{
		Approval:   id,
		Resolution: wire.ResolutionTimedOut,
	})
}

// Approve resolves a pending entry in the agent's favor and forwards
// the action. Operator-only.
func (g *Gate) Approve(role wire.Role, id uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, err := g.takeApprovalLocked(role, id)
	if err != nil {
		return err
	}

	g.logger.Info("approval granted", "approval", id, "kind", entry.request.Action.Kind)
	g.emit(wire.EventApprovalResolved, wire.ApprovalResolvedEvent{
		Approval:   id,
		Resolution: wire.ResolutionApproved,
	})
	return g.submitLocked(entry.request)
}

// Reject resolves a pending entry against the agent. Operator-only.
func (g *Gate) Reject(role wire.Role, id uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, err := g.takeApprovalLocked(role, id)
	if err != nil {
		return err
	}

	g.logger.Info("approval rejected", "approval", id, "kind", entry.request.Action.Kind)
	g.emit(wire.EventApprovalResolved, wire.ApprovalResolvedEvent{
		Approval:   id,
		Resolution: wire.ResolutionRejected,
	})
	return nil
}

// takeApprovalLocked authorizes a decision and removes the entry from
// the queue, stopping its deadline timer.
func (g *Gate) takeApprovalLocked(role wire.Role, id uint64) (*approval, error) {
	if role != wire.RoleOperator {
		return nil, wire.Gating(wire.ReasonUnauthorized, "only operators decide approvals")
	}
	entry, ok := g.approvals[id]
	if !ok {
		return nil, wire.Gating(wire.ReasonUnknownApproval, "no pending approval %d", id)
	}
	delete(g.approvals, id)
	entry.timer.Stop()
	return entry, nil
}

// flushApprovalsLocked resolves every pending entry with one
// resolution, in id order.
func (g *Gate) flushApprovalsLocked(resolution wire.Resolution) {
	if len(g.approvals) == 0 {
		return
	}
	ids := make([]uint64, 0, len(g.approvals))
	for id := range g.approvals {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		entry := g.approvals[id]
		delete(g.approvals, id)
		entry.timer.Stop()
		g.emit(wire.EventApprovalResolved, wire.ApprovalResolvedEvent{
			Approval:   id,
			Resolution: resolution,
		})
	}
	g.logger.Info("approval queue flushed", "count", len(ids), "resolution", resolution)
}

// Pending lists queued approvals in id order, for query_approvals.
func (g *Gate) Pending() []wire.PendingApproval {
	g.mu.Lock()
	defer g.mu.Unlock()

	pending := make([]wire.PendingApproval, 0, len(g.approvals))
	for _, entry := range g.approvals {
		pending = append(pending, wire.PendingApproval{
			Approval: entry.id,
			Request:  entry.request,
			Deadline: entry.deadline.UnixMilli(),
		})
	}
	slices.SortFunc(pending, func(a, b wire.PendingApproval) int {
		return cmp.Compare(a.Approval, b.Approval)
	})
	return pending
}
