// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swapfsm

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/lnadapter"
	"github.com/athanor-intermediary/swapd/store"
)

var log = logging.Logger("swapfsm")

// TxSubmitter sends the native-token commit transaction for a
// FROM_BTC_LN_TRUSTED swap and later reports its terminal status.
type TxSubmitter interface {
	Submit(ctx context.Context, dstAddress string, amount *big.Int) (txID string, rawTx []byte, err error)
	PollStatus(ctx context.Context, txID string) (types.ChainTxStatus, error)
}

// BalanceChecker re-checks available LP vault balance before a commit is
// submitted (spec.md §4.G "re-check vault balance").
type BalanceChecker interface {
	HasSufficientBalance(ctx context.Context, token string, amount *big.Int) (bool, error)
}

// FromBTCLNTrustedMachine implements the FROM_BTC_LN_TRUSTED machine in
// full (spec.md §4.G): the intermediary settles the hold invoice as soon as
// its own commit transaction succeeds.
type FromBTCLNTrustedMachine struct {
	store   store.Store
	ln      *lnadapter.Adapter
	tx      TxSubmitter
	balance BalanceChecker
	leases  *leaseTable
}

// NewFromBTCLNTrustedMachine wires a machine to its dependencies.
func NewFromBTCLNTrustedMachine(s store.Store, ln *lnadapter.Adapter, tx TxSubmitter, balance BalanceChecker) *FromBTCLNTrustedMachine {
	return &FromBTCLNTrustedMachine{store: s, ln: ln, tx: tx, balance: balance, leases: newLeaseTable()}
}

// NewSwapParams carries the pre-commit quote/admission result needed to
// create a new FROM_BTC_LN_TRUSTED record.
type NewSwapParams struct {
	ChainID     types.ChainID
	Token       string
	DstAddress  string
	Amount      *big.Int
	CLTVDelta   uint32
	ExpiresAt   time.Time
	Description string
}

// NewSwap generates the swap secret, creates the hold invoice, persists a
// CREATED record, and returns the BOLT-11 invoice string to hand back to
// the caller.
func (m *FromBTCLNTrustedMachine) NewSwap(ctx context.Context, p NewSwapParams) (*types.SwapRecord, string, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, "", fmt.Errorf("swapfsm: failed to generate secret: %w", err)
	}
	paymentHash := sha256.Sum256(secret[:])

	invoice, err := m.ln.CreateHoldInvoice(ctx, lnadapter.CreateHoldInvoiceParams{
		Description: p.Description,
		CLTVDelta:   p.CLTVDelta,
		ExpiresAt:   p.ExpiresAt.Unix(),
		PaymentHash: paymentHash,
	})
	if err != nil {
		return nil, "", fmt.Errorf("swapfsm: failed to create hold invoice: %w", err)
	}

	record := &types.SwapRecord{
		PaymentHash: types.Hash(paymentHash),
		Sequence:    0,
		Direction:   types.FromBTCLNTrusted,
		ChainID:     p.ChainID,
		State:       FromBTCLNTrustedCreated,
		Terms: types.EscrowTerms{
			Token:       p.Token,
			Amount:      p.Amount,
			PaymentHash: types.Hash(paymentHash),
			Expiry:      uint64(p.ExpiresAt.Unix()),
		},
		Artifacts: types.Artifacts{
			Invoice:              invoice,
			SecretHex:            hex.EncodeToString(secret[:]),
			CounterpartyDestAddr: p.DstAddress,
		},
	}
	if err := m.store.Save(record); err != nil {
		return nil, "", fmt.Errorf("swapfsm: failed to persist new swap record: %w", err)
	}
	return record, invoice, nil
}

// OnHTLCReceived is the CREATED→RECEIVED transition, driven by the hold
// invoice's first is_held=true observation (spec.md §4.G).
func (m *FromBTCLNTrustedMachine) OnHTLCReceived(ctx context.Context, paymentHash types.Hash) error {
	record, err := m.store.Load(paymentHash, 0)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != FromBTCLNTrustedCreated {
		// Already past CREATED; re-entrant delivery, ignore.
		return nil
	}

	ok, err := m.balance.HasSufficientBalance(ctx, record.Terms.Token, record.Terms.Amount)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to check vault balance: %w", err)
	}
	if !ok {
		record.State = FromBTCLNTrustedCanceled
		if err := m.store.Save(record); err != nil {
			return fmt.Errorf("swapfsm: failed to persist cancellation: %w", err)
		}
		if err := m.ln.CancelHoldInvoice(ctx, paymentHash); err != nil {
			log.Warnf("swapfsm: failed to cancel hold invoice after balance check failure: %s", err)
		}
		return nil
	}

	record.State = FromBTCLNTrustedReceived
	if err := m.store.Save(record); err != nil {
		return fmt.Errorf("swapfsm: failed to persist RECEIVED: %w", err)
	}

	go m.tryCommit(context.Background(), record.PaymentHash, record.Sequence)
	return nil
}

// tryCommit is the RECEIVED→SENT transition. It is the only path that
// requires the record lease, guarding against a concurrent duplicate
// commit for the same swap (spec.md §4.G "Concurrency key").
func (m *FromBTCLNTrustedMachine) tryCommit(ctx context.Context, paymentHash types.Hash, sequence uint64) {
	key := types.RecordKey(paymentHash, sequence)
	if !m.leases.Acquire(key) {
		return
	}
	defer m.leases.Release(key)

	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		log.Warnf("swapfsm: tryCommit failed to reload record %s: %s", key, err)
		return
	}
	if record.State != FromBTCLNTrustedReceived {
		return
	}

	txID, rawTx, err := m.tx.Submit(ctx, record.Artifacts.CounterpartyDestAddr, record.Terms.Amount)
	if err != nil {
		log.Warnf("swapfsm: failed to submit commit tx for %s: %s", key, err)
		return
	}

	record.Artifacts.CommitTxID = txID
	record.Artifacts.RawSignedTx = rawTx
	record.State = FromBTCLNTrustedSent
	if err := m.store.Save(record); err != nil {
		log.Warnf("swapfsm: failed to persist SENT for %s: %s", key, err)
	}
}

// OnCommitStatus applies the SENT→{RECEIVED,REFUNDED,CONFIRMED} transition
// once the commit transaction's terminal status is observed.
func (m *FromBTCLNTrustedMachine) OnCommitStatus(ctx context.Context, paymentHash types.Hash, sequence uint64, status types.ChainTxStatus) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != FromBTCLNTrustedSent {
		return nil
	}
	key := types.RecordKey(paymentHash, sequence)

	switch status {
	case types.TxStatusNotFound:
		record.Artifacts.CommitTxID = ""
		record.Artifacts.RawSignedTx = nil
		record.State = FromBTCLNTrustedReceived
		return m.store.Save(record)
	case types.TxStatusReverted:
		record.State = FromBTCLNTrustedRefunded
		if err := m.store.Save(record); err != nil {
			return err
		}
		if err := m.ln.CancelHoldInvoice(ctx, record.PaymentHash); err != nil {
			log.Warnf("swapfsm: failed to cancel hold invoice after revert for %s: %s", key, err)
		}
		return nil
	case types.TxStatusSuccess:
		record.State = FromBTCLNTrustedConfirmed
		if err := m.store.Save(record); err != nil {
			return err
		}
		return m.settle(ctx, record)
	default:
		return fmt.Errorf("swapfsm: unknown commit status %d", status)
	}
}

// settle is the CONFIRMED→SETTLED transition: reveal the secret to the
// Lightning node and remove the now-terminal record.
func (m *FromBTCLNTrustedMachine) settle(ctx context.Context, record *types.SwapRecord) error {
	secret, err := hexDecode32(record.Artifacts.SecretHex)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to decode stored secret: %w", err)
	}
	if err := m.ln.SettleHoldInvoice(ctx, secret); err != nil {
		return fmt.Errorf("swapfsm: failed to settle hold invoice: %w", err)
	}
	record.State = FromBTCLNTrustedSettled
	record.Meta.Milestones.Settled = time.Now()
	if err := m.store.Save(record); err != nil {
		log.Warnf("swapfsm: failed to persist SETTLED before removal: %s", err)
	}
	m.store.Remove(record.PaymentHash, record.Sequence)
	return nil
}

// CancelSwapAndInvoice implements cancel_swap_and_invoice: only legal from
// RECEIVED (spec.md §4.G "Cancellation").
func (m *FromBTCLNTrustedMachine) CancelSwapAndInvoice(ctx context.Context, paymentHash types.Hash, sequence uint64) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != FromBTCLNTrustedReceived {
		return fmt.Errorf("swapfsm: cancel_swap_and_invoice is only legal from RECEIVED, record is in state %d", record.State)
	}
	record.State = FromBTCLNTrustedCanceled
	if err := m.store.Save(record); err != nil {
		return err
	}
	if err := m.ln.CancelHoldInvoice(ctx, record.PaymentHash); err != nil {
		log.Warnf("swapfsm: failed to cancel hold invoice for %s: %s", paymentHash, err)
	}
	m.store.Remove(paymentHash, sequence)
	return nil
}

// ProcessPastSwap reconciles one non-terminal record at startup or on a
// periodic tick (spec.md §4.G "Past-swap reconciliation").
func (m *FromBTCLNTrustedMachine) ProcessPastSwap(ctx context.Context, record *types.SwapRecord) error {
	if failed, _, success := Classify(record); failed || success {
		return nil
	}

	inv, err := m.ln.GetInvoice(ctx, record.PaymentHash)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to fetch invoice during reconciliation: %w", err)
	}
	if inv.IsHeld {
		return m.OnHTLCReceived(ctx, record.PaymentHash)
	}
	if inv.IsCanceled && !record.Terms.ExpiryIsBlockHeight() && int64(record.Terms.Expiry) < time.Now().Unix() {
		record.State = FromBTCLNTrustedCanceled
		return m.store.Save(record)
	}
	// Else: resubscribe happens at the supervisor level, which owns the
	// per-swap subscription goroutine lifecycle.
	return nil
}

func hexDecode32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("swapfsm: expected 32 bytes of hex, got %q", s)
	}
	copy(out[:], raw)
	return out, nil
}
