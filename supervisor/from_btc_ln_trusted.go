// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package supervisor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanor-intermediary/swapd/coins"
	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/lnadapter"
	"github.com/athanor-intermediary/swapd/store"
	"github.com/athanor-intermediary/swapd/swapfsm"
)

// CreateInvoiceResponse mirrors spec.md §6's `data: {pr, swapFee, total,
// intermediaryKey}` success payload.
type CreateInvoiceResponse struct {
	PaymentRequest  string
	SwapFee         *apd.Decimal
	Total           *apd.Decimal
	IntermediaryKey string
}

// InvoiceStatusResponse mirrors GET/POST /getInvoiceStatus (spec.md §6).
type InvoiceStatusResponse struct {
	Code int
	TxID string
}

// FromBTCLNTrustedConfig bundles the per-direction tunables admission needs.
type FromBTCLNTrustedConfig struct {
	ChainID         types.ChainID
	IntermediaryKey string
	CLTVDelta       uint32
	TokenDecimals   uint8
	MinAmount       *apd.Decimal
	MaxAmount       *apd.Decimal
	FeeFraction     *apd.Decimal
	InvoiceTimeout  time.Duration
}

// FromBTCLNTrustedSupervisor is the full component-H supervisor for
// FROM_BTC_LN_TRUSTED (spec.md §4.H), wired to swapfsm's fully specified
// machine for this direction.
type FromBTCLNTrustedSupervisor struct {
	cfg     FromBTCLNTrustedConfig
	store   store.Store
	ln      *lnadapter.Adapter
	price   PriceSource
	balance VaultBalance
	machine *swapfsm.FromBTCLNTrustedMachine
}

// NewFromBTCLNTrustedSupervisor wires a supervisor to its dependencies.
func NewFromBTCLNTrustedSupervisor(
	cfg FromBTCLNTrustedConfig,
	s store.Store,
	ln *lnadapter.Adapter,
	price PriceSource,
	balance VaultBalance,
	machine *swapfsm.FromBTCLNTrustedMachine,
) *FromBTCLNTrustedSupervisor {
	return &FromBTCLNTrustedSupervisor{
		cfg: cfg, store: s, ln: ln, price: price, balance: balance, machine: machine,
	}
}

// Start loads this direction's records and reconciles every non-terminal
// one (spec.md §4.H "start()").
func (sv *FromBTCLNTrustedSupervisor) Start(ctx context.Context) error {
	return sv.ProcessPastSwaps(ctx)
}

// ProcessPastSwaps reconciles every FROM_BTC_LN_TRUSTED record against
// current Lightning/chain state; called at startup and on every periodic
// tick (spec.md §4.H "Periodic tick").
func (sv *FromBTCLNTrustedSupervisor) ProcessPastSwaps(ctx context.Context) error {
	records, err := sv.store.Query(
		store.Eq(store.FieldDirection, store.DirectionValue(types.FromBTCLNTrusted)),
	)
	if err != nil {
		return fmt.Errorf("supervisor: failed to query past swaps: %w", err)
	}
	for _, record := range records {
		if err := sv.machine.ProcessPastSwap(ctx, record); err != nil {
			log.Warnf("supervisor: failed to reconcile swap %s: %s", record.Key(), err)
		}
	}
	return nil
}

// HandleRequest runs the admission pipeline (spec.md §4.H steps 1-7) and,
// on success, returns the persisted record's invoice alongside the quote.
func (sv *FromBTCLNTrustedSupervisor) HandleRequest(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	// Step 1: parse/validate.
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, newResponseError(common.CodeInvalidRequestBody, "amount must be positive")
	}
	if req.Address == "" {
		return nil, newResponseError(common.CodeInvalidRequestBody, "address is required")
	}

	// Step 2: amount bounds.
	if err := checkAmountBounds(req.Amount, sv.cfg.MinAmount, sv.cfg.MaxAmount); err != nil {
		return nil, err
	}

	// Step 3: parallel prefetches sharing one abort signal.
	var price *apd.Decimal
	var available *coins.TokenAmount
	var channels []lnadapter.Channel

	group := newPrefetchGroup(ctx, 3)
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
	group.run(func(ctx context.Context) error {
		c, err := sv.ln.ChannelsSnapshot(ctx, lnadapter.ChannelsSnapshotParams{ActiveOnly: true})
		if err != nil {
			return fmt.Errorf("channels prefetch: %w", err)
		}
		channels = c
		return nil
	})
	if err := group.wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ErrAdmissionAborted
		}
		return nil, fmt.Errorf("%w: %s", ErrAdmissionAborted, err)
	}

	// Step 4: quote.
	quote, err := coins.BuildQuote(req.Amount, price, sv.cfg.FeeFraction, req.ExactOut)
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to build quote: %w", err)
	}

	// Step 5: balance check (short-circuits before any invoice/store touch,
	// spec.md §8 testable property 8) and LN inbound-liquidity check.
	totalRaw, err := coins.RawFromDecimal(quote.TotalInToken, sv.cfg.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to convert quote to raw amount: %w", err)
	}
	if available.BigInt().Cmp(totalRaw) < 0 {
		return nil, newResponseError(common.CodeTransactionReverted, "insufficient vault balance")
	}
	amountMsat := new(big.Int).Mul(totalRaw, big.NewInt(1000)).Int64()
	if !hasInboundLiquidity(channels, amountMsat) {
		return nil, newResponseError(common.CodeNotEnoughLNLiquidity, "Not enough LN inbound liquidity")
	}

	// Steps 6-7: create the hold invoice, persist the CREATED record, and
	// subscribe to its first is_held transition.
	timeout := sv.cfg.InvoiceTimeout
	if timeout == 0 {
		timeout = common.DefaultInvoiceTimeout
	}

	record, invoice, err := sv.machine.NewSwap(ctx, swapfsm.NewSwapParams{
		ChainID:     sv.cfg.ChainID,
		Token:       req.Token,
		DstAddress:  req.Address,
		Amount:      totalRaw,
		CLTVDelta:   sv.cfg.CLTVDelta,
		ExpiresAt:   time.Now().Add(timeout),
		Description: fmt.Sprintf("swap to %s", req.Address),
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to create swap: %w", err)
	}

	go sv.subscribeAndDrive(context.Background(), record.PaymentHash)

	return &CreateInvoiceResponse{
		PaymentRequest:  invoice,
		SwapFee:         quote.SwapFeeInToken,
		Total:           quote.TotalInToken,
		IntermediaryKey: sv.cfg.IntermediaryKey,
	}, nil
}

// subscribeAndDrive runs the single-delivery is_held subscription and
// drives the machine's CREATED→RECEIVED transition on it (spec.md §4.H
// step 7).
func (sv *FromBTCLNTrustedSupervisor) subscribeAndDrive(ctx context.Context, paymentHash types.Hash) {
	raw := [32]byte(paymentHash)
	err := sv.ln.Subscribe(ctx, raw, func() {
		if err := sv.machine.OnHTLCReceived(ctx, paymentHash); err != nil {
			log.Warnf("supervisor: OnHTLCReceived failed for %s: %s", paymentHash, err)
		}
	})
	if err != nil {
		log.Warnf("supervisor: invoice subscription ended for %s: %s", paymentHash, err)
	}
}

// GetInvoiceStatus implements GET/POST /getInvoiceStatus (spec.md §6).
func (sv *FromBTCLNTrustedSupervisor) GetInvoiceStatus(paymentHash types.Hash) (*InvoiceStatusResponse, error) {
	record, err := sv.store.Load(paymentHash, 0)
	if err != nil {
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
	switch {
	case record.State == swapfsm.FromBTCLNTrustedCreated:
		return &InvoiceStatusResponse{Code: common.CodeUnpaid}, nil
	case record.State == swapfsm.FromBTCLNTrustedReceived:
		return &InvoiceStatusResponse{Code: common.CodeHTLCReceivedPending}, nil
	case record.State == swapfsm.FromBTCLNTrustedSent:
		return &InvoiceStatusResponse{Code: common.CodeTxSent, TxID: record.Artifacts.CommitTxID}, nil
	case record.State == swapfsm.FromBTCLNTrustedConfirmed, record.State == swapfsm.FromBTCLNTrustedSettled:
		return &InvoiceStatusResponse{Code: common.CodeSuccess, TxID: record.Artifacts.CommitTxID}, nil
	default:
		return &InvoiceStatusResponse{Code: common.CodeExpiredOrCanceled}, nil
	}
}
