// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package escrow

import (
	"bytes"

	bin "github.com/gagliardetto/binary"

	"github.com/athanor-intermediary/swapd/common/types"
)

// SwapType is the on-wire discriminator for EscrowTerms.Kind (spec.md §6).
type SwapType uint8

const (
	SwapTypeHtlc SwapType = iota
	SwapTypeChain
	SwapTypeChainNonced
	SwapTypeChainTxhash
)

// ToChainSwapType maps a types.EscrowKind onto its wire SwapType. Per
// DESIGN.md's Open Question 2 resolution, KindChainTxID always maps to
// SwapTypeChainTxhash and nothing else — there is exactly one spelling.
func ToChainSwapType(k types.EscrowKind) SwapType {
	switch k {
	case types.KindHTLC:
		return SwapTypeHtlc
	case types.KindChain:
		return SwapTypeChain
	case types.KindChainNonced:
		return SwapTypeChainNonced
	case types.KindChainTxID:
		return SwapTypeChainTxhash
	default:
		return SwapTypeHtlc
	}
}

// SwapData is the on-wire account-layout twin of types.EscrowTerms
// (spec.md §6 "SwapData on the wire"), Borsh-encoded for instruction args.
type SwapData struct {
	Kind          SwapType
	Confirmations uint16
	Nonce         uint64
	Hash          [32]byte
	PayIn         bool
	PayOut        bool
	Amount        uint64
	Expiry        uint64
	Sequence      uint64
}

// FromEscrowTerms builds the wire SwapData for a terms set. Amount is
// truncated to uint64 lamports/base-units — on-chain amounts in this
// program never exceed that range.
func FromEscrowTerms(t *types.EscrowTerms) SwapData {
	return SwapData{
		Kind:          ToChainSwapType(t.Kind),
		Confirmations: t.ConfirmationsRequired,
		Nonce:         t.EscrowNonce,
		Hash:          t.PaymentHash,
		PayIn:         t.PayIn,
		PayOut:        t.PayOut,
		Amount:        t.Amount.Uint64(),
		Expiry:        t.Expiry,
		Sequence:      t.Sequence,
	}
}

// MarshalBorsh encodes the SwapData using the Borsh encoding the escrow
// program expects for instruction arguments.
func (d SwapData) MarshalBorsh() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
