// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package escrow

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// instructionTag is the first byte of every instruction's data, identifying
// which handler the program should dispatch to (spec.md §6 "On-chain
// instruction surface").
type instructionTag uint8

const (
	tagDeposit instructionTag = iota
	tagWithdraw
	tagOffererInitializePayIn
	tagOffererInitialize
	tagOffererRefund
	tagOffererRefundPayIn
	tagClaimerClaim
	tagClaimerClaimPayOut
	tagInitData
	tagWriteData
	tagCloseData
)

func encodeInstruction(tag instructionTag, args interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(tag))
	if args == nil {
		return buf.Bytes(), nil
	}
	enc := bin.NewBorshEncoder(buf)
	if err := enc.Encode(args); err != nil {
		return nil, fmt.Errorf("escrow: failed to encode instruction args: %w", err)
	}
	return buf.Bytes(), nil
}

// amountArgs is the single u64 amount that deposit and withdraw carry (spec.md §6).
type amountArgs struct {
	Amount uint64
}

// initPayInArgs is the arg tuple for offererInitializePayIn.
type initPayInArgs struct {
	SwapData   SwapData
	TxoHash    [32]byte
	AuthExpiry uint64
}

// initArgs is the arg tuple for offererInitialize.
type initArgs struct {
	SwapData        SwapData
	SecurityDeposit uint64
	ClaimerBounty   uint64
	TxoHash         [32]byte
	AuthExpiry      uint64
}

// refundArgs carries the auth_expiry used by both refund variants.
type refundArgs struct {
	AuthExpiry uint64
}

// claimArgs carries the revealed secret.
type claimArgs struct {
	Secret [32]byte
}

// writeDataArgs is the arg tuple for writeData.
type writeDataArgs struct {
	Start uint32
	Data  []byte
}

// newInstruction builds a solana.GenericInstruction for the escrow program.
func newInstruction(programID solana.PublicKey, accounts solana.AccountMetaSlice, data []byte) solana.Instruction {
	return solana.NewInstruction(programID, accounts, data)
}
