// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package txsender

import (
	"github.com/gagliardetto/solana-go"
)

// splTransferComputeUnits is the budget reserved for a plain SPL Token
// Transfer instruction, on the same order of magnitude as the escrow
// adapter's own defaultComputeUnits.
const splTransferComputeUnits = 40_000

// splTransferTag is the SPL Token program's "Transfer" instruction
// discriminant.
const splTransferTag = 3

// associatedTokenAddress derives the canonical associated-token-account
// address for (owner, mint), the same derivation escrow.Adapter uses
// internally for offerer/claimer ATAs.
func associatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), solana.TokenProgramID.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	return addr, err
}

// transferInstruction builds the SPL Token program's Transfer instruction,
// moving amount from source to destination, authorized by owner.
func transferInstruction(source, destination, owner solana.PublicKey, amount uint64) solana.Instruction {
	data := append([]byte{splTransferTag}, le64(amount)...)
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(owner, false, true),
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, data)
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
