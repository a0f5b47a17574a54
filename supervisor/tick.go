// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package supervisor

import (
	"context"
	"time"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/store"
	"github.com/athanor-intermediary/swapd/swapfsm"
)

// tickInterval is how often the periodic tick re-runs past-swap
// reconciliation and cancels overdue invoices (spec.md §4.H "Periodic
// tick").
const tickInterval = 30 * time.Second

// CancelOverdueInvoices scans CREATED FROM_BTC_LN_TRUSTED records whose
// invoice has expired with no HTLC received and cancels them (spec.md §8
// scenario 2: "90 s after creation /getInvoiceStatus returns 10001; record
// CANCELED").
func (sv *FromBTCLNTrustedSupervisor) CancelOverdueInvoices(ctx context.Context, now time.Time) error {
	records, err := sv.store.Query(
		store.Eq(store.FieldDirection, store.DirectionValue(types.FromBTCLNTrusted)),
		store.Eq(store.FieldState, store.Uint64Value(uint64(swapfsm.FromBTCLNTrustedCreated))),
	)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.Terms.ExpiryIsBlockHeight() || int64(record.Terms.Expiry) > now.Unix() {
			continue
		}
		record.State = swapfsm.FromBTCLNTrustedCanceled
		if err := sv.store.Save(record); err != nil {
			log.Warnf("supervisor: failed to cancel overdue invoice %s: %s", record.Key(), err)
			continue
		}
		if err := sv.ln.CancelHoldInvoice(ctx, record.PaymentHash); err != nil {
			log.Warnf("supervisor: failed to cancel overdue hold invoice %s: %s", record.Key(), err)
		}
	}
	return nil
}

// Group runs the periodic tick across however many direction supervisors
// are active in this process, in one batched phase (spec.md §4.H "Periodic
// tick"). Any subset may be nil, for a node that only serves some
// directions.
type Group struct {
	FromBTCLNTrusted *FromBTCLNTrustedSupervisor
	FromBTC          *FromBTCSupervisor
	ToBTCLN          *ToBTCLNSupervisor
	ToBTC            *ToBTCSupervisor
}

// StartAll runs Start() on every configured supervisor.
func (g *Group) StartAll(ctx context.Context) error {
	if g.FromBTCLNTrusted != nil {
		if err := g.FromBTCLNTrusted.Start(ctx); err != nil {
			return err
		}
	}
	if g.FromBTC != nil {
		if err := g.FromBTC.Start(ctx); err != nil {
			return err
		}
	}
	if g.ToBTCLN != nil {
		if err := g.ToBTCLN.Start(ctx); err != nil {
			return err
		}
	}
	if g.ToBTC != nil {
		if err := g.ToBTC.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run blocks, firing the periodic tick every tickInterval until ctx is
// done.
func (g *Group) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.tick(ctx, now)
		}
	}
}

func (g *Group) tick(ctx context.Context, now time.Time) {
	if g.FromBTCLNTrusted != nil {
		if err := g.FromBTCLNTrusted.ProcessPastSwaps(ctx); err != nil {
			log.Warnf("supervisor: FROM_BTC_LN_TRUSTED reconciliation failed: %s", err)
		}
		if err := g.FromBTCLNTrusted.CancelOverdueInvoices(ctx, now); err != nil {
			log.Warnf("supervisor: FROM_BTC_LN_TRUSTED invoice sweep failed: %s", err)
		}
	}
	if g.FromBTC != nil {
		if err := g.FromBTC.Start(ctx); err != nil {
			log.Warnf("supervisor: FROM_BTC reconciliation failed: %s", err)
		}
	}
	if g.ToBTCLN != nil {
		if err := g.ToBTCLN.Start(ctx); err != nil {
			log.Warnf("supervisor: TO_BTC_LN reconciliation failed: %s", err)
		}
	}
	if g.ToBTC != nil {
		if err := g.ToBTC.Start(ctx); err != nil {
			log.Warnf("supervisor: TO_BTC reconciliation failed: %s", err)
		}
	}
}
