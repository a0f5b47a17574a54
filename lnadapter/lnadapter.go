// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package lnadapter is a thin adapter over an lnd node's hold-invoice RPCs
// (spec.md §4.F).
package lnadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
)

// Invoice is the adapter's view of one hold invoice's state.
type Invoice struct {
	IsHeld      bool
	IsConfirmed bool
	IsCanceled  bool
	Description string
	ValueMsat   int64
}

// Adapter wraps an lnd node's Lightning and Invoices gRPC clients.
type Adapter struct {
	lightning lnrpc.LightningClient
	invoices  invoicesrpc.InvoicesClient
}

// New binds an Adapter to the given gRPC clients.
func New(lightning lnrpc.LightningClient, invoices invoicesrpc.InvoicesClient) *Adapter {
	return &Adapter{lightning: lightning, invoices: invoices}
}

// CreateHoldInvoiceParams mirrors spec.md §4.F's create_hold_invoice args.
type CreateHoldInvoiceParams struct {
	Description string
	CLTVDelta   uint32
	ExpiresAt   int64 // unix seconds
	PaymentHash [32]byte
	Mtokens     uint64
}

// CreateHoldInvoice returns the BOLT-11 string for a new hold invoice keyed
// by payment_hash (spec.md §4.F "create_hold_invoice").
func (a *Adapter) CreateHoldInvoice(ctx context.Context, p CreateHoldInvoiceParams) (string, error) {
	expiry := p.ExpiresAt - time.Now().Unix() // lnd takes seconds from now
	resp, err := a.invoices.AddHoldInvoice(ctx, &invoicesrpc.AddHoldInvoiceRequest{
		Memo:       p.Description,
		Hash:       p.PaymentHash[:],
		ValueMsat:  int64(p.Mtokens),
		CltvExpiry: uint64(p.CLTVDelta),
		Expiry:     expiry,
	})
	if err != nil {
		return "", fmt.Errorf("lnadapter: failed to create hold invoice: %w", err)
	}
	return resp.PaymentRequest, nil
}

// GetInvoice returns the current state of the invoice keyed by paymentHash
// (spec.md §4.F "get_invoice").
func (a *Adapter) GetInvoice(ctx context.Context, paymentHash [32]byte) (*Invoice, error) {
	resp, err := a.lightning.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: paymentHash[:]})
	if err != nil {
		return nil, fmt.Errorf("lnadapter: failed to look up invoice: %w", err)
	}
	return &Invoice{
		IsHeld:      resp.State == lnrpc.Invoice_ACCEPTED,
		IsConfirmed: resp.State == lnrpc.Invoice_SETTLED,
		IsCanceled:  resp.State == lnrpc.Invoice_CANCELED,
		Description: resp.Memo,
		ValueMsat:   resp.ValueMsat,
	}, nil
}

// CancelHoldInvoice cancels an accepted-but-not-settled hold invoice
// (spec.md §4.F "cancel_hold_invoice").
func (a *Adapter) CancelHoldInvoice(ctx context.Context, paymentHash [32]byte) error {
	_, err := a.invoices.CancelInvoice(ctx, &invoicesrpc.CancelInvoiceMsg{PaymentHash: paymentHash[:]})
	if err != nil {
		return fmt.Errorf("lnadapter: failed to cancel hold invoice: %w", err)
	}
	return nil
}

// SettleHoldInvoice reveals secret, settling the invoice (spec.md §4.F
// "settle_hold_invoice").
func (a *Adapter) SettleHoldInvoice(ctx context.Context, secret [32]byte) error {
	_, err := a.invoices.SettleInvoice(ctx, &invoicesrpc.SettleInvoiceMsg{Preimage: secret[:]})
	if err != nil {
		return fmt.Errorf("lnadapter: failed to settle hold invoice: %w", err)
	}
	return nil
}

// Subscribe delivers exactly one is_held=true transition for paymentHash to
// onHeld, then detaches (spec.md §4.F "subscribe"). It runs until onHeld is
// called, the invoice is canceled, or ctx is done.
func (a *Adapter) Subscribe(ctx context.Context, paymentHash [32]byte, onHeld func()) error {
	stream, err := a.invoices.SubscribeSingleInvoice(ctx, &invoicesrpc.SubscribeSingleInvoiceRequest{
		RHash: paymentHash[:],
	})
	if err != nil {
		return fmt.Errorf("lnadapter: failed to subscribe to invoice: %w", err)
	}

	var once sync.Once
	for {
		update, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("lnadapter: invoice subscription ended: %w", err)
		}
		switch update.State {
		case lnrpc.Invoice_ACCEPTED:
			once.Do(onHeld)
			return nil
		case lnrpc.Invoice_CANCELED:
			return nil
		}
	}
}

// Pay sends the given BOLT-11 invoice to completion, returning the
// preimage on success (spec.md §4.F "pay" — the TO_BTC_LN direction's
// payout leg).
func (a *Adapter) Pay(ctx context.Context, invoice string) ([32]byte, error) {
	resp, err := a.lightning.SendPaymentSync(ctx, &lnrpc.SendRequest{
		PaymentRequest: invoice,
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("lnadapter: failed to send payment: %w", err)
	}
	if resp.PaymentError != "" {
		return [32]byte{}, fmt.Errorf("lnadapter: payment failed: %s", resp.PaymentError)
	}
	var preimage [32]byte
	copy(preimage[:], resp.PaymentPreimage)
	return preimage, nil
}

// ChannelsSnapshotParams mirrors spec.md §4.F's channels_snapshot args.
type ChannelsSnapshotParams struct {
	ActiveOnly bool
}

// Channel is the subset of channel state the admission pipeline's
// inbound-liquidity check needs.
type Channel struct {
	RemoteBalanceMsat int64
	Active            bool
}

// ChannelsSnapshot returns the node's current channels, used for
// inbound-liquidity admission checks (spec.md §4.F "channels_snapshot").
func (a *Adapter) ChannelsSnapshot(ctx context.Context, p ChannelsSnapshotParams) ([]Channel, error) {
	resp, err := a.lightning.ListChannels(ctx, &lnrpc.ListChannelsRequest{ActiveOnly: p.ActiveOnly})
	if err != nil {
		return nil, fmt.Errorf("lnadapter: failed to list channels: %w", err)
	}
	channels := make([]Channel, 0, len(resp.Channels))
	for _, c := range resp.Channels {
		channels = append(channels, Channel{
			RemoteBalanceMsat: c.RemoteBalance * 1000,
			Active:            c.Active,
		})
	}
	return channels, nil
}
