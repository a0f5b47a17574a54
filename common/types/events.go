// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

// EventKind discriminates the chain events the watcher (component D) emits.
type EventKind uint8

const (
	EventInitialize EventKind = iota
	EventClaim
	EventRefund
)

// SwapDataGetter lazily fetches and decodes the full SwapData for the
// transaction that emitted an InitializeEvent. It is evaluated at most once;
// the getter built by escrow's instruction decoder caches its own result, per spec.md
// §4.D / §9 "Hand-off of the init swap-data".
type SwapDataGetter func() (*EscrowTerms, error)

// ChainEvent is the common shape of the three events the escrow program
// emits (spec.md §6 "Emitted events"). Exactly one of the kind-specific
// fields is meaningful for a given Kind.
type ChainEvent struct {
	Kind        EventKind
	PaymentHash Hash
	Sequence    uint64

	// EventInitialize only.
	TxoHash *Hash
	EscrowKindHint EscrowKind
	GetSwapData    SwapDataGetter

	// EventClaim only.
	Secret [32]byte

	// Chain-position bookkeeping, used for checkpoint advancement.
	Signature string
	Slot      uint64
}
