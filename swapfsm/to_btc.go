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

// BTCPayer sends an on-chain Bitcoin transaction and reports its
// confirmation status, for the TO_BTC machine's PAYING phase.
type BTCPayer interface {
	Pay(ctx context.Context, dstAddress string, amountSats int64) (txid string, err error)
	Confirmations(ctx context.Context, txid string) (int, error)
}

// ToBTCMachine implements the TO_BTC machine: same shape as TO_BTC_LN, but
// the "pay" is an on-chain BTC tx and the claim requires posting the
// tx-data scratch proof and BTC-relay verify (spec.md §4.G).
type ToBTCMachine struct {
	store   store.Store
	adapter *escrow.Adapter
	payer   BTCPayer
	leases  *leaseTable
}

// NewToBTCMachine wires a ToBTCMachine to its dependencies.
func NewToBTCMachine(s store.Store, adapter *escrow.Adapter, payer BTCPayer) *ToBTCMachine {
	return &ToBTCMachine{store: s, adapter: adapter, payer: payer, leases: newLeaseTable()}
}

// OnEscrowCommitted is the CREATED→COMMITTED transition.
func (m *ToBTCMachine) OnEscrowCommitted(paymentHash types.Hash, sequence uint64) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != ToBTCCreated {
		return nil
	}
	record.State = ToBTCCommitted
	return m.store.Save(record)
}

// TryPay is the COMMITTED→PAYING transition.
func (m *ToBTCMachine) TryPay(ctx context.Context, paymentHash types.Hash, sequence uint64) error {
	key := types.RecordKey(paymentHash, sequence)
	if !m.leases.Acquire(key) {
		return errLeaseHeld
	}
	defer m.leases.Release(key)

	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != ToBTCCommitted {
		return nil
	}
	record.State = ToBTCPaying
	if err := m.store.Save(record); err != nil {
		return err
	}

	txid, err := m.payer.Pay(ctx, record.Artifacts.CounterpartyDestAddr, record.Terms.Amount.Int64())
	if err != nil {
		return fmt.Errorf("swapfsm: btc payment failed: %w", err)
	}
	record.Artifacts.InitTxID = txid
	record.State = ToBTCPaid
	return m.store.Save(record)
}

// OnClaimed is the PAID→CLAIMED transition, taken once the claim
// transaction carrying the btcproof Merkle/BTC-relay proof (spec.md §4.E)
// has confirmed.
func (m *ToBTCMachine) OnClaimed(paymentHash types.Hash, sequence uint64) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != ToBTCPaid {
		return nil
	}
	record.State = ToBTCClaimed
	if err := m.store.Save(record); err != nil {
		return err
	}
	m.store.Remove(paymentHash, sequence)
	return nil
}

// OnRefunded is the terminal REFUNDED transition, taken once the Bitcoin
// payment could not be completed and the swap's expiry has passed.
func (m *ToBTCMachine) OnRefunded(paymentHash types.Hash, sequence uint64) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State == ToBTCClaimed {
		return nil
	}
	record.State = ToBTCRefunded
	if err := m.store.Save(record); err != nil {
		return err
	}
	m.store.Remove(paymentHash, sequence)
	return nil
}
