// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swapfsm

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
	"github.com/athanor-intermediary/swapd/lnadapter"
	"github.com/athanor-intermediary/swapd/store"
)

// LNPayer pays a BOLT-11 invoice and reports the preimage on success.
type LNPayer interface {
	Pay(ctx context.Context, invoice string) (preimage [32]byte, err error)
}

// ToBTCLNMachine implements the TO_BTC_LN machine: quote → invoice
// pre-check → COMMITTED (user committed escrow) → PAYING (LN pay in
// flight) → PAID → CLAIMED (preimage used to claim escrow) or REFUNDED
// (spec.md §4.G).
type ToBTCLNMachine struct {
	store   store.Store
	adapter *escrow.Adapter
	ln      *lnadapter.Adapter
	payer   LNPayer
	leases  *leaseTable
}

// NewToBTCLNMachine wires a ToBTCLNMachine to its dependencies.
func NewToBTCLNMachine(s store.Store, adapter *escrow.Adapter, ln *lnadapter.Adapter, payer LNPayer) *ToBTCLNMachine {
	return &ToBTCLNMachine{store: s, adapter: adapter, ln: ln, payer: payer, leases: newLeaseTable()}
}

// OnEscrowCommitted is the CREATED→COMMITTED transition, driven by the
// watcher observing the user's Initialize instruction.
func (m *ToBTCLNMachine) OnEscrowCommitted(paymentHash types.Hash, sequence uint64) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != ToBTCLNCreated {
		return nil
	}
	record.State = ToBTCLNCommitted
	return m.store.Save(record)
}

// TryPay is the COMMITTED→PAYING transition: dispatch the Lightning
// payment for the invoice recorded at admission time.
func (m *ToBTCLNMachine) TryPay(ctx context.Context, paymentHash types.Hash, sequence uint64) error {
	key := types.RecordKey(paymentHash, sequence)
	if !m.leases.Acquire(key) {
		return errLeaseHeld
	}
	defer m.leases.Release(key)

	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != ToBTCLNCommitted {
		return nil
	}
	record.State = ToBTCLNPaying
	if err := m.store.Save(record); err != nil {
		return err
	}

	preimage, err := m.payer.Pay(ctx, record.Artifacts.Invoice)
	if err != nil {
		// PAYING remains; the supervisor retries or waits for expiry to refund.
		return fmt.Errorf("swapfsm: lightning payment failed: %w", err)
	}
	record.Artifacts.SecretHex = hex.EncodeToString(preimage[:])
	record.State = ToBTCLNPaid
	return m.store.Save(record)
}

// OnClaimed is the PAID→CLAIMED transition once the escrow claim
// transaction using the revealed preimage is confirmed.
func (m *ToBTCLNMachine) OnClaimed(paymentHash types.Hash, sequence uint64) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State != ToBTCLNPaid {
		return nil
	}
	record.State = ToBTCLNClaimed
	if err := m.store.Save(record); err != nil {
		return err
	}
	m.store.Remove(paymentHash, sequence)
	return nil
}

// OnRefunded is the terminal REFUNDED transition taken when the Lightning
// payment could not complete and the swap's expiry has passed.
func (m *ToBTCLNMachine) OnRefunded(paymentHash types.Hash, sequence uint64) error {
	record, err := m.store.Load(paymentHash, sequence)
	if err != nil {
		return fmt.Errorf("swapfsm: failed to load record: %w", err)
	}
	if record.State == ToBTCLNClaimed {
		return nil
	}
	record.State = ToBTCLNRefunded
	if err := m.store.Save(record); err != nil {
		return err
	}
	m.store.Remove(paymentHash, sequence)
	return nil
}
