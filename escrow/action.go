// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package escrow

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/coins"
)

// computeBudgetProgramID is the well-known address of the compute-budget
// program whose SetComputeUnitLimit/SetComputeUnitPrice instructions every
// composed transaction is prefixed with (spec.md §4.B).
var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Action is the result of one escrow-adapter builder: a list of
// instructions, an estimated compute-unit budget, and an optional extra
// signer (e.g. a freshly-created scratch account's keypair). Actions
// compose into a single transaction (spec.md §4.B "Each builder yields an
// Action").
type Action struct {
	Instructions []solana.Instruction
	ComputeUnits uint32
	ExtraSigner  *solana.PrivateKey
}

// ComposeTransaction builds a single transaction from one or more Actions,
// prepending a compute-unit-limit instruction (summed across actions) and a
// compute-unit-price instruction derived from feeRate, exactly as spec.md
// §4.B describes ("the framework prepends a compute-unit-limit instruction
// and a compute-unit-price instruction derived from the fee-rate string").
func ComposeTransaction(
	actions []Action,
	feePayer solana.PublicKey,
	recentBlockhash solana.Hash,
	feeRate string,
) (*solana.Transaction, []solana.PrivateKey, error) {
	rate, err := coins.ParseFeeRate(feeRate)
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: bad fee rate: %w", err)
	}

	var totalCU uint32
	var instructions []solana.Instruction
	var extraSigners []solana.PrivateKey

	for _, a := range actions {
		totalCU += a.ComputeUnits
		instructions = append(instructions, a.Instructions...)
		if a.ExtraSigner != nil {
			extraSigners = append(extraSigners, *a.ExtraSigner)
		}
	}

	limitIx, err := setComputeUnitLimitInstruction(totalCU)
	if err != nil {
		return nil, nil, err
	}
	priceIx, err := setComputeUnitPriceInstruction(rate.Base)
	if err != nil {
		return nil, nil, err
	}

	all := append([]solana.Instruction{limitIx, priceIx}, instructions...)

	tx, err := solana.NewTransaction(all, recentBlockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: failed to build transaction: %w", err)
	}
	return tx, extraSigners, nil
}

func setComputeUnitLimitInstruction(units uint32) (solana.Instruction, error) {
	data, err := encodeComputeBudgetInstruction(2, units)
	if err != nil {
		return nil, err
	}
	return newInstruction(computeBudgetProgramID, nil, data), nil
}

func setComputeUnitPriceInstruction(microLamportsPerCU string) (solana.Instruction, error) {
	var microLamports uint64
	if _, err := fmt.Sscanf(microLamportsPerCU, "%d", &microLamports); err != nil {
		microLamports = 0
	}
	data, err := encodeComputeBudgetInstruction(3, microLamports)
	if err != nil {
		return nil, err
	}
	return newInstruction(computeBudgetProgramID, nil, data), nil
}

// encodeComputeBudgetInstruction encodes the compute-budget program's
// (tag byte, little-endian arg) instruction layout.
func encodeComputeBudgetInstruction(tag byte, arg interface{}) ([]byte, error) {
	switch v := arg.(type) {
	case uint32:
		return append([]byte{tag}, le32(v)...), nil
	case uint64:
		return append([]byte{tag}, le64(v)...), nil
	default:
		return nil, fmt.Errorf("escrow: unsupported compute-budget arg type %T", arg)
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
