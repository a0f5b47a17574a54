// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package supervisor

import (
	"context"
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/athanor-intermediary/swapd/coins"
	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/store"
	"github.com/athanor-intermediary/swapd/swapfsm"
)

// ToBTCLNConfig bundles the per-direction tunables admission needs.
type ToBTCLNConfig struct {
	ChainID       types.ChainID
	TokenDecimals uint8
	MinAmount     *apd.Decimal
	MaxAmount     *apd.Decimal
	FeeFraction   *apd.Decimal
}

// ToBTCLNSupervisor is the component-H supervisor for TO_BTC_LN: the user
// commits smart-chain tokens to the escrow first, the intermediary pays
// their BOLT-11 invoice once the commit is observed (spec.md §4.H "others
// follow the same shape").
type ToBTCLNSupervisor struct {
	cfg     ToBTCLNConfig
	store   store.Store
	price   PriceSource
	machine *swapfsm.ToBTCLNMachine
}

// NewToBTCLNSupervisor wires a supervisor to its dependencies.
func NewToBTCLNSupervisor(cfg ToBTCLNConfig, s store.Store, price PriceSource, machine *swapfsm.ToBTCLNMachine) *ToBTCLNSupervisor {
	return &ToBTCLNSupervisor{cfg: cfg, store: s, price: price, machine: machine}
}

// Start surfaces store load errors early; reconciliation for this
// direction runs off watcher/payment-status events rather than a timer.
func (sv *ToBTCLNSupervisor) Start(ctx context.Context) error {
	_, err := sv.store.Query(store.Eq(store.FieldDirection, store.DirectionValue(types.ToBTCLN)))
	return err
}

// HandleRequest validates the invoice and amount, quotes it, and persists a
// CREATED record awaiting the user's escrow commit (spec.md §4.H steps
// 1-6, LN-payout variant). The BOLT-11 invoice the intermediary must pay
// travels in req.Address, the same field the on-chain TO_BTC direction uses
// for its destination address: both are "where the payout goes", just
// encoded differently per rail.
func (sv *ToBTCLNSupervisor) HandleRequest(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	if req.Address == "" {
		return nil, newResponseError(common.CodeInvalidRequestBody, "invoice is required")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, newResponseError(common.CodeInvalidRequestBody, "amount must be positive")
	}
	if err := checkAmountBounds(req.Amount, sv.cfg.MinAmount, sv.cfg.MaxAmount); err != nil {
		return nil, err
	}

	invoice, err := zpay32.Decode(req.Address)
	if err != nil || invoice.PaymentHash == nil {
		return nil, newResponseError(common.CodeInvalidRequestBody, "invalid invoice")
	}
	paymentHash := types.Hash(*invoice.PaymentHash)

	price, err := sv.price.Price(ctx, req.Token)
	if err != nil {
		return nil, fmt.Errorf("supervisor: price prefetch failed: %w", err)
	}
	quote, err := coins.BuildQuote(req.Amount, price, sv.cfg.FeeFraction, req.ExactOut)
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to build quote: %w", err)
	}
	totalRaw, err := coins.RawFromDecimal(quote.TotalInToken, sv.cfg.TokenDecimals)
	if err != nil {
		return nil, err
	}

	record := &types.SwapRecord{
		PaymentHash: paymentHash,
		Direction:   types.ToBTCLN,
		ChainID:     sv.cfg.ChainID,
		State:       swapfsm.ToBTCLNCreated,
		Terms: types.EscrowTerms{
			Token:       req.Token,
			Amount:      totalRaw,
			PaymentHash: paymentHash,
			Kind:        types.KindHTLC,
		},
		Artifacts: types.Artifacts{Invoice: req.Address},
	}
	if err := sv.store.Save(record); err != nil {
		return nil, fmt.Errorf("supervisor: failed to persist new swap record: %w", err)
	}
	return &CreateInvoiceResponse{
		PaymentRequest: req.Address,
		SwapFee:        quote.SwapFeeInToken,
		Total:          quote.TotalInToken,
	}, nil
}

// GetInvoiceStatus implements GET/POST /getInvoiceStatus (spec.md §6).
func (sv *ToBTCLNSupervisor) GetInvoiceStatus(paymentHash types.Hash) (*InvoiceStatusResponse, error) {
	record, err := sv.store.Load(paymentHash, 0)
	if err != nil {
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
	switch record.State {
	case swapfsm.ToBTCLNCreated, swapfsm.ToBTCLNCommitted:
		return &InvoiceStatusResponse{Code: common.CodeUnpaid}, nil
	case swapfsm.ToBTCLNPaying, swapfsm.ToBTCLNPaid:
		return &InvoiceStatusResponse{Code: common.CodeTxSent, TxID: record.Artifacts.SecretHex}, nil
	case swapfsm.ToBTCLNClaimed:
		return &InvoiceStatusResponse{Code: common.CodeSuccess, TxID: record.Artifacts.SecretHex}, nil
	default:
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
}

// OnEscrowCommitted is the watcher-driven trigger for the machine's
// CREATED→COMMITTED transition, followed immediately by the LN payment
// attempt.
func (sv *ToBTCLNSupervisor) OnEscrowCommitted(ctx context.Context, paymentHash types.Hash, sequence uint64) error {
	if err := sv.machine.OnEscrowCommitted(paymentHash, sequence); err != nil {
		return err
	}
	go func() {
		if err := sv.machine.TryPay(context.Background(), paymentHash, sequence); err != nil {
			log.Warnf("supervisor: lightning payment failed for %s: %s", paymentHash, err)
		}
	}()
	return nil
}

// OnClaimed and OnRefunded forward the watcher's terminal escrow events to
// the machine.
func (sv *ToBTCLNSupervisor) OnClaimed(paymentHash types.Hash, sequence uint64) error {
	return sv.machine.OnClaimed(paymentHash, sequence)
}

func (sv *ToBTCLNSupervisor) OnRefunded(paymentHash types.Hash, sequence uint64) error {
	return sv.machine.OnRefunded(paymentHash, sequence)
}
