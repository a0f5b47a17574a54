// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/store"
)

// chainEventSupervisor is the subset of ToBTCSupervisor/ToBTCLNSupervisor
// the dispatcher needs — both already expose this exact shape.
type chainEventSupervisor interface {
	OnEscrowCommitted(ctx context.Context, paymentHash types.Hash, sequence uint64) error
	OnClaimed(paymentHash types.Hash, sequence uint64) error
	OnRefunded(paymentHash types.Hash, sequence uint64) error
}

// eventDispatcher routes the escrow watcher's chain events to the
// supervisor that owns the record's direction. FROM_BTC is driven by its
// own Bitcoin-side deposit watcher instead (OnBTCConfirmed, see
// btcclient.go; nothing in this binary calls its OnCommitStatus) and is
// never a destination here; FROM_BTC_LN_TRUSTED
// has no on-chain-event transitions at all (it completes on invoice
// settle). Only TO_BTC and TO_BTC_LN react to escrow lifecycle events.
type eventDispatcher struct {
	store store.Store
	byDir map[types.Direction]chainEventSupervisor
}

func newEventDispatcher(s store.Store, byDir map[types.Direction]chainEventSupervisor) *eventDispatcher {
	return &eventDispatcher{store: s, byDir: byDir}
}

// Run drains events until ctx is done or the channel closes.
func (d *eventDispatcher) Run(ctx context.Context, events <-chan types.ChainEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *eventDispatcher) dispatch(ctx context.Context, ev types.ChainEvent) {
	record, err := d.store.Load(ev.PaymentHash, ev.Sequence)
	if err != nil {
		log.Warnf("swapd: dropping chain event for unknown record %s/%d: %s", ev.PaymentHash, ev.Sequence, err)
		return
	}
	sv, ok := d.byDir[record.Direction]
	if !ok {
		log.Warnf("swapd: no supervisor wired for direction %d, dropping event for %s/%d", record.Direction, ev.PaymentHash, ev.Sequence)
		return
	}

	var err2 error
	switch ev.Kind {
	case types.EventInitialize:
		err2 = sv.OnEscrowCommitted(ctx, ev.PaymentHash, ev.Sequence)
	case types.EventClaim:
		err2 = sv.OnClaimed(ev.PaymentHash, ev.Sequence)
	case types.EventRefund:
		err2 = sv.OnRefunded(ev.PaymentHash, ev.Sequence)
	}
	if err2 != nil {
		log.Warnf("swapd: event handling failed for %s/%d: %s", ev.PaymentHash, ev.Sequence, err2)
	}
}
