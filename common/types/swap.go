// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"math/big"
	"time"
)

// ChainID identifies the smart chain an escrow lives on (e.g. an EVM chain ID).
type ChainID uint64

// EscrowTerms are the terms of one escrow PDA/account, exactly as encoded on
// chain (spec.md §3, §6 SwapData). All integer fields are wire-exact
// (big.Int/uint64), never floating point.
type EscrowTerms struct {
	Offerer              string // canonical textual address, chain-native form
	Claimer              string
	Token                string
	Amount               *big.Int
	PaymentHash          Hash
	Sequence             uint64
	Expiry               uint64 // unix seconds OR block height, see ExpiryIsBlockHeight
	ConfirmationsRequired uint16
	EscrowNonce          uint64
	PayIn                bool
	PayOut               bool
	Kind                 EscrowKind
	SecurityDeposit      *big.Int
	ClaimerBounty        *big.Int
	TxoHash              *Hash // only set for KindChain/KindChainNonced
}

// ExpiryBlockHeightThreshold discriminates Expiry: values below this are
// treated as block heights, values at or above it as unix seconds. This
// mirrors the common convention of reserving a huge constant as the
// discriminator so a single uint64 field can carry either unit.
const ExpiryBlockHeightThreshold = 1_000_000_000

// ExpiryIsBlockHeight reports whether Expiry should be interpreted as a block
// height rather than a unix timestamp.
func (t *EscrowTerms) ExpiryIsBlockHeight() bool {
	return t.Expiry < ExpiryBlockHeightThreshold
}

// Artifacts carries the mutable, operation-produced byproducts of a swap:
// tx ids by role, the raw signed tx kept for retry, and LN-trusted-flow
// secrets (spec.md §3 Artifacts).
type Artifacts struct {
	Invoice              string // BOLT-11 string, LN-side swaps only
	InitTxID             string
	CommitTxID           string
	ClaimTxID            string
	RefundTxID           string
	RawSignedTx          []byte // kept for retry after a `not_found` observation
	SecretHex            string // 32 bytes hex, LN-trusted flows only
	CounterpartyDestAddr string
	DepositAddress       string // on-chain BTC address the user must fund, FROM_BTC only
}

// Milestones are best-effort observability timestamps; never used to drive
// state transitions.
type Milestones struct {
	RequestReceived time.Time
	PriceCalculated time.Time
	BalanceChecked  time.Time
	InvoiceCreated  time.Time
	HTLCReceived    time.Time
	CommitSent      time.Time
	CommitConfirmed time.Time
	Settled         time.Time
}

// Metadata bundles the non-authoritative bookkeeping kept alongside a
// SwapRecord (spec.md §3 Metadata).
type Metadata struct {
	Milestones  Milestones
	RequestBody []byte // raw admission-request snapshot, for audit/debug
}

// SwapRecord is the primary persisted entity (spec.md §3). It is identified
// by (PaymentHash, Sequence).
type SwapRecord struct {
	PaymentHash Hash
	Sequence    uint64
	Direction   Direction
	ChainID     ChainID
	State       int8 // interpreted per Direction, see swapfsm's per-machine constants
	Terms       EscrowTerms
	Artifacts   Artifacts
	Meta        Metadata
}

// Key returns the store key for this record: hex(payment_hash)_hex_u64_le(sequence).
func (r *SwapRecord) Key() string {
	return RecordKey(r.PaymentHash, r.Sequence)
}
