// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package supervisor

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanor-intermediary/swapd/btcproof"
	"github.com/athanor-intermediary/swapd/coins"
	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/store"
	"github.com/athanor-intermediary/swapd/swapfsm"
)

// ToBTCConfig bundles the per-direction tunables admission needs.
type ToBTCConfig struct {
	ChainID               types.ChainID
	TokenDecimals         uint8
	ConfirmationsRequired uint16
	MinAmount             *apd.Decimal
	MaxAmount             *apd.Decimal
	FeeFraction           *apd.Decimal
}

// ToBTCSupervisor is the component-H supervisor for TO_BTC: the user
// commits smart-chain tokens, the intermediary sends on-chain BTC and
// later claims the escrow using a Merkle/BTC-relay inclusion proof
// (spec.md §4.H "others follow the same shape", §4.E).
type ToBTCSupervisor struct {
	cfg     ToBTCConfig
	store   store.Store
	price   PriceSource
	relay   btcproof.RelayReader
	sync    btcproof.Synchronizer
	machine *swapfsm.ToBTCMachine
}

// NewToBTCSupervisor wires a supervisor to its dependencies.
func NewToBTCSupervisor(cfg ToBTCConfig, s store.Store, price PriceSource, relay btcproof.RelayReader, sync btcproof.Synchronizer, machine *swapfsm.ToBTCMachine) *ToBTCSupervisor {
	return &ToBTCSupervisor{cfg: cfg, store: s, price: price, relay: relay, sync: sync, machine: machine}
}

// Start surfaces store load errors early.
func (sv *ToBTCSupervisor) Start(ctx context.Context) error {
	_, err := sv.store.Query(store.Eq(store.FieldDirection, store.DirectionValue(types.ToBTC)))
	return err
}

// HandleRequest validates and quotes the request and persists a CREATED
// record awaiting the user's escrow commit.
func (sv *ToBTCSupervisor) HandleRequest(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, newResponseError(common.CodeInvalidRequestBody, "amount must be positive")
	}
	if req.Address == "" {
		return nil, newResponseError(common.CodeInvalidRequestBody, "address is required")
	}
	if err := checkAmountBounds(req.Amount, sv.cfg.MinAmount, sv.cfg.MaxAmount); err != nil {
		return nil, err
	}

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

	var correlationID types.Hash
	if _, err := rand.Read(correlationID[:]); err != nil {
		return nil, fmt.Errorf("supervisor: failed to generate record id: %w", err)
	}

	record := &types.SwapRecord{
		PaymentHash: correlationID,
		Direction:   types.ToBTC,
		ChainID:     sv.cfg.ChainID,
		State:       swapfsm.ToBTCCreated,
		Terms: types.EscrowTerms{
			Token:                 req.Token,
			Amount:                totalRaw,
			PaymentHash:           correlationID,
			Kind:                  types.KindChainTxID,
			ConfirmationsRequired: sv.cfg.ConfirmationsRequired,
		},
		Artifacts: types.Artifacts{CounterpartyDestAddr: req.Address},
	}
	if err := sv.store.Save(record); err != nil {
		return nil, fmt.Errorf("supervisor: failed to persist new swap record: %w", err)
	}
	return &CreateInvoiceResponse{
		PaymentRequest: record.PaymentHash.String(),
		SwapFee:        quote.SwapFeeInToken,
		Total:          quote.TotalInToken,
	}, nil
}

// GetInvoiceStatus implements GET/POST /getInvoiceStatus (spec.md §6). This
// direction's correlation ID plays the role the payment hash plays
// elsewhere; it never identifies an LN preimage.
func (sv *ToBTCSupervisor) GetInvoiceStatus(paymentHash types.Hash) (*InvoiceStatusResponse, error) {
	record, err := sv.store.Load(paymentHash, 0)
	if err != nil {
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
	switch record.State {
	case swapfsm.ToBTCCreated, swapfsm.ToBTCCommitted:
		return &InvoiceStatusResponse{Code: common.CodeUnpaid}, nil
	case swapfsm.ToBTCPaying, swapfsm.ToBTCPaid:
		return &InvoiceStatusResponse{Code: common.CodeTxSent, TxID: record.Artifacts.InitTxID}, nil
	case swapfsm.ToBTCClaimed:
		return &InvoiceStatusResponse{Code: common.CodeSuccess, TxID: record.Artifacts.InitTxID}, nil
	default:
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
}

// OnEscrowCommitted is the watcher-driven trigger for the machine's
// CREATED→COMMITTED transition, followed immediately by the BTC payment
// attempt.
func (sv *ToBTCSupervisor) OnEscrowCommitted(ctx context.Context, paymentHash types.Hash, sequence uint64) error {
	if err := sv.machine.OnEscrowCommitted(paymentHash, sequence); err != nil {
		return err
	}
	go func() {
		if err := sv.machine.TryPay(context.Background(), paymentHash, sequence); err != nil {
			log.Warnf("supervisor: btc payment failed for %s: %s", paymentHash, err)
		}
	}()
	return nil
}

// BuildClaimProof builds the Merkle/BTC-relay proof batch needed to claim
// the escrow once the outbound BTC payment has confirmed (spec.md §4.E),
// synchronizing the relay first if it has not yet committed the header.
func (sv *ToBTCSupervisor) BuildClaimProof(ctx context.Context, record *types.SwapRecord, tx btcproof.ConfirmedTx) (*btcproof.Batch, error) {
	return btcproof.ProveAndCommit(ctx, tx, record.Terms.ConfirmationsRequired, sv.relay, sv.sync)
}

// OnClaimed and OnRefunded forward the watcher's terminal escrow events to
// the machine.
func (sv *ToBTCSupervisor) OnClaimed(paymentHash types.Hash, sequence uint64) error {
	return sv.machine.OnClaimed(paymentHash, sequence)
}

func (sv *ToBTCSupervisor) OnRefunded(paymentHash types.Hash, sequence uint64) error {
	return sv.machine.OnRefunded(paymentHash, sequence)
}
