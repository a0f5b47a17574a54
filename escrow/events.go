// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package escrow

import (
	"fmt"
	"math/big"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/common/types"
)

func bigIntFromUint64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// RawInstruction is the decoded-but-unparsed shape of one instruction
// within a fetched transaction: enough for DecodeInstructionEvent to
// recognize which escrow-program handler it targets and pull out its
// accounts and Borsh-encoded args. Accounts follow the ordering the
// corresponding Build* method used (see adapter.go).
type RawInstruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
}

const initializeAccountOfferer = 0
const initializeAccountClaimer = 1
const initializeAccountToken = 6

// DecodeInstructionEvent inspects one instruction from a fetched
// transaction and, if it targets this escrow program and is one of the
// three event-producing instruction families (Initialize, Claim, Refund),
// returns the corresponding ChainEvent. ok is false for instructions this
// program does not emit events for (Deposit/Withdraw/CloseDataAccount/
// InitData/WriteData, or any instruction targeting a different program).
//
// For Initialize instructions, the returned event's GetSwapData getter
// builds the full EscrowTerms from the already-decoded instruction args and
// accounts, but only on first call and only once, matching the "lazy
// getter" the watcher is required to expose (spec.md §4.D): a swap listener
// that never inspects the event pays no allocation cost for it.
func (a *Adapter) DecodeInstructionEvent(
	ix RawInstruction,
	signature string,
	slot uint64,
) (*types.ChainEvent, bool, error) {
	if !ix.ProgramID.Equals(a.addrs.ProgramID) {
		return nil, false, nil
	}
	if len(ix.Data) == 0 {
		return nil, false, nil
	}
	tag := instructionTag(ix.Data[0])
	body := ix.Data[1:]

	switch tag {
	case tagOffererInitializePayIn, tagOffererInitialize:
		return decodeInitializeEvent(tag, body, ix.Accounts, signature, slot)
	case tagClaimerClaim, tagClaimerClaimPayOut:
		return decodeClaimEvent(body, signature, slot)
	case tagOffererRefund, tagOffererRefundPayIn:
		return decodeRefundEvent(body, signature, slot)
	default:
		return nil, false, nil
	}
}

func decodeInitializeEvent(
	tag instructionTag,
	body []byte,
	accounts []solana.PublicKey,
	signature string,
	slot uint64,
) (*types.ChainEvent, bool, error) {
	var sd SwapData
	var txoHash [32]byte

	dec := bin.NewBorshDecoder(body)
	payIn := tag == tagOffererInitializePayIn
	if payIn {
		var args initPayInArgs
		if err := dec.Decode(&args); err != nil {
			return nil, false, fmt.Errorf("escrow: failed to decode initializePayIn args: %w", err)
		}
		sd, txoHash = args.SwapData, args.TxoHash
	} else {
		var args initArgs
		if err := dec.Decode(&args); err != nil {
			return nil, false, fmt.Errorf("escrow: failed to decode initialize args: %w", err)
		}
		sd, txoHash = args.SwapData, args.TxoHash
	}

	var once sync.Once
	var cached *types.EscrowTerms
	var cacheErr error
	getter := func() (*types.EscrowTerms, error) {
		once.Do(func() {
			if len(accounts) <= initializeAccountToken {
				cacheErr = fmt.Errorf("escrow: initialize instruction carried too few accounts to build terms")
				return
			}
			cached = &types.EscrowTerms{
				Offerer:               accounts[initializeAccountOfferer].String(),
				Claimer:               accounts[initializeAccountClaimer].String(),
				Token:                 accounts[initializeAccountToken].String(),
				Amount:                bigIntFromUint64(sd.Amount),
				PaymentHash:           types.Hash(sd.Hash),
				Sequence:              sd.Sequence,
				Expiry:                sd.Expiry,
				ConfirmationsRequired: sd.Confirmations,
				EscrowNonce:           sd.Nonce,
				PayIn:                 payIn,
				PayOut:                sd.PayOut,
				Kind:                  toEscrowKind(sd.Kind),
			}
		})
		return cached, cacheErr
	}

	txo := types.Hash(txoHash)
	ev := &types.ChainEvent{
		Kind:           types.EventInitialize,
		PaymentHash:    types.Hash(sd.Hash),
		Sequence:       sd.Sequence,
		TxoHash:        &txo,
		EscrowKindHint: toEscrowKind(sd.Kind),
		GetSwapData:    getter,
		Signature:      signature,
		Slot:           slot,
	}
	return ev, true, nil
}

func decodeClaimEvent(body []byte, signature string, slot uint64) (*types.ChainEvent, bool, error) {
	dec := bin.NewBorshDecoder(body)
	var args claimArgs
	if err := dec.Decode(&args); err != nil {
		return nil, false, fmt.Errorf("escrow: failed to decode claim args: %w", err)
	}
	return &types.ChainEvent{
		Kind:      types.EventClaim,
		Secret:    args.Secret,
		Signature: signature,
		Slot:      slot,
	}, true, nil
}

func decodeRefundEvent(body []byte, signature string, slot uint64) (*types.ChainEvent, bool, error) {
	dec := bin.NewBorshDecoder(body)
	var args refundArgs
	if err := dec.Decode(&args); err != nil {
		return nil, false, fmt.Errorf("escrow: failed to decode refund args: %w", err)
	}
	return &types.ChainEvent{
		Kind:      types.EventRefund,
		Signature: signature,
		Slot:      slot,
	}, true, nil
}

func toEscrowKind(k SwapType) types.EscrowKind {
	switch k {
	case SwapTypeHtlc:
		return types.KindHTLC
	case SwapTypeChain:
		return types.KindChain
	case SwapTypeChainNonced:
		return types.KindChainNonced
	case SwapTypeChainTxhash:
		return types.KindChainTxID
	default:
		return types.KindHTLC
	}
}
