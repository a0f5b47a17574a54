// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package escrow implements the escrow contract adapter (spec.md §4.B): the
// node's deterministic-address derivation, instruction/action builders,
// fee-rate handling, on-chain status reads, and the tx-data scratch-account
// protocol used by on-chain-proof claims.
//
// The escrow program is modeled as a Solana Anchor-style program — spec.md's
// own nouns (program-derived address, associated token account, compute-unit
// budget/price instructions) name that account model specifically. This
// keeps the teacher's Action/Sender *shape* (one builder per instruction,
// composed into a transaction, handed to txsender) while targeting
// github.com/gagliardetto/solana-go instead of the teacher's go-ethereum
// ABI calls — see DESIGN.md.
package escrow

import (
	"github.com/gagliardetto/solana-go"
)

// seed prefixes used by the escrow program's PDA derivations (spec.md §4.B).
var (
	seedVaultAuthority = []byte("authority")
	seedVault          = []byte("vault")
	seedUserVault      = []byte("uservault")
	seedEscrowState    = []byte("state")
	seedTxData         = []byte("data")
)

// Addresses derives the deterministic accounts the escrow program reads and
// writes, given its program ID.
type Addresses struct {
	ProgramID solana.PublicKey
}

// NewAddresses returns an Addresses deriver bound to the given program ID.
func NewAddresses(programID solana.PublicKey) *Addresses {
	return &Addresses{ProgramID: programID}
}

// SwapVaultAuthority is the singleton PDA authorized to move funds out of
// every per-token vault.
func (a *Addresses) SwapVaultAuthority() (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedVaultAuthority}, a.ProgramID)
}

// SwapVault is the per-token pooled vault account.
func (a *Addresses) SwapVault(token solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedVault, token.Bytes()}, a.ProgramID)
}

// SwapUserVault is the per-(user, token) LP balance and reputation account.
func (a *Addresses) SwapUserVault(user, token solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedUserVault, user.Bytes(), token.Bytes()}, a.ProgramID)
}

// SwapEscrowState is the per-swap PDA keyed by payment hash.
func (a *Addresses) SwapEscrowState(paymentHash [32]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedEscrowState, paymentHash[:]}, a.ProgramID)
}

// SwapTxData is the ephemeral scratch account used to stage a Bitcoin
// inclusion-proof payload ahead of an on-chain-proof claim (spec.md §4.B
// "Tx-data scratch protocol").
func (a *Addresses) SwapTxData(reversedTxID [32]byte, signer solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{seedTxData, reversedTxID[:], signer.Bytes()},
		a.ProgramID,
	)
}
