// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package supervisor

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanor-intermediary/swapd/coins"
	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/store"
	"github.com/athanor-intermediary/swapd/swapfsm"
)

// FromBTCConfig bundles the per-direction tunables admission needs.
type FromBTCConfig struct {
	ChainID               types.ChainID
	TokenDecimals         uint8
	MinAmount             *apd.Decimal
	MaxAmount             *apd.Decimal
	FeeFraction           *apd.Decimal
	ConfirmationsRequired uint16
}

// DepositAddressSource issues a fresh, single-use watch-only Bitcoin address
// per swap, keyed by the record's (paymentHash, sequence) store key so a
// deposit watcher can resolve an observed payment back to its record.
type DepositAddressSource interface {
	NewDepositAddress(ctx context.Context, key string) (string, error)
	// Track binds a previously-issued address to its swap identity once the
	// record exists: NewDepositAddress alone only has the record's store key.
	Track(address string, paymentHash types.Hash, sequence uint64, confirmationsRequired uint16)
}

// FromBTCSupervisor is the component-H supervisor for FROM_BTC: the user
// funds an on-chain Bitcoin transaction, the intermediary commits the
// escrow once it confirms (spec.md §4.H "others follow the same shape").
type FromBTCSupervisor struct {
	cfg      FromBTCConfig
	store    store.Store
	price    PriceSource
	balance  VaultBalance
	deposits DepositAddressSource
	machine  *swapfsm.FromBTCMachine
}

// NewFromBTCSupervisor wires a supervisor to its dependencies.
func NewFromBTCSupervisor(
	cfg FromBTCConfig,
	s store.Store,
	price PriceSource,
	balance VaultBalance,
	deposits DepositAddressSource,
	machine *swapfsm.FromBTCMachine,
) *FromBTCSupervisor {
	return &FromBTCSupervisor{cfg: cfg, store: s, price: price, balance: balance, deposits: deposits, machine: machine}
}

// Start loads this direction's records; reconciliation for FROM_BTC is
// driven by watcher events rather than a machine-level ProcessPastSwap, so
// start is a no-op query to surface load errors early.
func (sv *FromBTCSupervisor) Start(ctx context.Context) error {
	_, err := sv.store.Query(store.Eq(store.FieldDirection, store.DirectionValue(types.FromBTC)))
	return err
}

// HandleRequest runs the shared admission pipeline (spec.md §4.H steps
// 1-5) and persists a CREATED record awaiting the user's on-chain payment.
// Unlike the LN-trusted directions, there is no BOLT-11 invoice here:
// CreateInvoiceResponse.PaymentRequest instead carries the single-use BTC
// address the user must fund.
func (sv *FromBTCSupervisor) HandleRequest(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, newResponseError(common.CodeInvalidRequestBody, "amount must be positive")
	}
	if err := checkAmountBounds(req.Amount, sv.cfg.MinAmount, sv.cfg.MaxAmount); err != nil {
		return nil, err
	}

	var price *apd.Decimal
	var available *coins.TokenAmount
	group := newPrefetchGroup(ctx, 2)
	group.run(func(ctx context.Context) error {
		p, err := sv.price.Price(ctx, req.Token)
		if err != nil {
			return fmt.Errorf("price prefetch: %w", err)
		}
		price = p
		return nil
	})
	group.run(func(ctx context.Context) error {
		a, err := sv.balance.Available(ctx, req.Token)
		if err != nil {
			return fmt.Errorf("balance prefetch: %w", err)
		}
		available = a
		return nil
	})
	if err := group.wait(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAdmissionAborted, err)
	}

	quote, err := coins.BuildQuote(req.Amount, price, sv.cfg.FeeFraction, req.ExactOut)
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to build quote: %w", err)
	}
	totalRaw, err := coins.RawFromDecimal(quote.TotalInToken, sv.cfg.TokenDecimals)
	if err != nil {
		return nil, err
	}
	if available.BigInt().Cmp(totalRaw) < 0 {
		return nil, newResponseError(common.CodeTransactionReverted, "insufficient vault balance")
	}

	// FROM_BTC has no HTLC secret: the escrow is verified by Merkle/BTC-relay
	// proof against a txo hash (EscrowKind KindChainTxID), not by a
	// preimage. The record still needs a (PaymentHash, Sequence) store key,
	// so a random identifier plays that role here, same shape as the
	// FROM_BTC_LN_TRUSTED machine's secret generation but without preimage
	// semantics.
	var correlationID types.Hash
	if _, err := rand.Read(correlationID[:]); err != nil {
		return nil, fmt.Errorf("supervisor: failed to generate record id: %w", err)
	}

	record := &types.SwapRecord{
		PaymentHash: correlationID,
		Direction:   types.FromBTC,
		ChainID:     sv.cfg.ChainID,
		State:       swapfsm.FromBTCCreated,
		Terms: types.EscrowTerms{
			Token:                 req.Token,
			Amount:                totalRaw,
			PaymentHash:           correlationID,
			Kind:                  types.KindChainTxID,
			ConfirmationsRequired: sv.cfg.ConfirmationsRequired,
		},
		Artifacts: types.Artifacts{CounterpartyDestAddr: req.Address},
	}

	depositAddr, err := sv.deposits.NewDepositAddress(ctx, record.Key())
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to issue deposit address: %w", err)
	}
	record.Artifacts.DepositAddress = depositAddr

	if err := sv.store.Save(record); err != nil {
		return nil, fmt.Errorf("supervisor: failed to persist new swap record: %w", err)
	}
	sv.deposits.Track(depositAddr, correlationID, record.Sequence, sv.cfg.ConfirmationsRequired)
	return &CreateInvoiceResponse{
		PaymentRequest: depositAddr,
		SwapFee:        quote.SwapFeeInToken,
		Total:          quote.TotalInToken,
	}, nil
}

// GetInvoiceStatus implements GET/POST /getInvoiceStatus (spec.md §6).
func (sv *FromBTCSupervisor) GetInvoiceStatus(paymentHash types.Hash) (*InvoiceStatusResponse, error) {
	record, err := sv.store.Load(paymentHash, 0)
	if err != nil {
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
	switch record.State {
	case swapfsm.FromBTCCreated:
		return &InvoiceStatusResponse{Code: common.CodeUnpaid}, nil
	case swapfsm.FromBTCReceived, swapfsm.FromBTCCommitted:
		return &InvoiceStatusResponse{Code: common.CodeTxSent, TxID: record.Artifacts.CommitTxID}, nil
	case swapfsm.FromBTCClaimed:
		return &InvoiceStatusResponse{Code: common.CodeSuccess, TxID: record.Artifacts.CommitTxID}, nil
	default:
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
}

// OnBTCConfirmed is the watcher-driven trigger for the machine's
// CREATED→RECEIVED transition, followed immediately by the commit attempt.
func (sv *FromBTCSupervisor) OnBTCConfirmed(ctx context.Context, paymentHash types.Hash, sequence uint64, txoHash [32]byte) error {
	if err := sv.machine.OnBTCConfirmed(paymentHash, sequence, txoHash); err != nil {
		return err
	}
	go func() {
		if err := sv.machine.TryCommit(context.Background(), paymentHash, sequence); err != nil {
			log.Warnf("supervisor: commit failed for %s: %s", paymentHash, err)
		}
	}()
	return nil
}

// OnCommitStatus dispatches a commit transaction's terminal status to the
// machine's COMMITTED→{CLAIMED,REFUNDED} transition.
func (sv *FromBTCSupervisor) OnCommitStatus(paymentHash types.Hash, sequence uint64, status types.ChainTxStatus) error {
	return sv.machine.OnCommitStatus(paymentHash, sequence, status)
}
