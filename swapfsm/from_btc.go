// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swapfsm

import (
	"context"
	"fmt"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
	"github.com/athanor-intermediary/swapd/store"
)

// ChainCommitter submits the escrow Init action for an on-chain-funded
// swap and reports the commit's terminal status.
type ChainCommitter interface {
	Commit(ctx context.Context, terms *types.EscrowTerms, txoHash [32]byte) (txID string, err error)
	PollStatus(ctx context.Context, txID string) (types.ChainTxStatus, error)
}

// FromBTCMachine implements the FROM_BTC (on-chain) machine: CREATED →
// RECEIVED (BTC tx seen with sufficient confirmations) → COMMITTED (escrow
// PDA visible) → CLAIMED/REFUNDED (spec.md §4.G).
type FromBTCMachine struct {
	store   store.Store
	adapter *escrow.Adapter
	commit  ChainCommitter
	leases  *leaseTable
}

// NewFromBTCMachine wires a FromBTCMachine to its dependencies.
func NewFromBTCMachine(s store.Store, adapter *escrow.Adapter, commit ChainCommitter) *FromBTCMachine {
	return &FromBTCMachine{store: s, adapter: adapter, commit: commit, leases: newLeaseTable()}
}

// OnBTCConfirmed is the CREATED→RECEIVED transition, driven by the watcher
// observing the user's funding transaction reach confirmationsRequired.
func (m *FromBTCMachine) OnBTCConfirmed(paymentHash types.Hash, sequence uint64, txoHash [32]byte) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != FromBTCCreated {
		return nil
	}
	record.Terms.TxoHash = &types.Hash{}
	*record.Terms.TxoHash = txoHash
	record.State = FromBTCReceived
	return m.store.Save(record)
}

// TryCommit is the RECEIVED→COMMITTED transition: build and submit the
// escrow Init action once the user's funding transaction is confirmed.
func (m *FromBTCMachine) TryCommit(ctx context.Context, paymentHash types.Hash, sequence uint64) error {
	key := types.RecordKey(paymentHash, sequence)
	if !m.leases.Acquire(key) {
		return errLeaseHeld
	}
	defer m.leases.Release(key)

	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != FromBTCReceived {
		return nil
	}
	var txoHash [32]byte
	if record.Terms.TxoHash != nil {
		txoHash = *record.Terms.TxoHash
	}

	txID, err := m.commit.Commit(ctx, &record.Terms, txoHash)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to submit commit tx: %w", err)
	}
	record.Artifacts.CommitTxID = txID
	record.State = FromBTCCommitted
	return m.store.Save(record)
}

// OnCommitStatus resolves COMMITTED into CLAIMED (by the counterparty, per
// watcher event) or REFUNDED; it does not itself drive the claim — the
// counterparty claims using the btcproof Merkle/BTC-relay proof path
// (spec.md §4.G "claim uses §4.E proof path").
func (m *FromBTCMachine) OnCommitStatus(paymentHash types.Hash, sequence uint64, status types.ChainTxStatus) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != FromBTCCommitted {
		return nil
	}
	switch status {
	case types.TxStatusReverted:
		record.State = FromBTCRefunded
	case types.TxStatusSuccess:
		record.State = FromBTCClaimed
	default:
		return nil
	}
	return m.store.Save(record)
}
