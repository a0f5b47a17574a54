// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package relayer builds and submits claim transactions on behalf of a swap
// counterparty, retargeting the teacher's gasless-meta-tx relay shape at
// BTC-relay header-sync plus escrow claim transactions (spec.md §13
// supplemented "Relayer-submitted claims"): build the request, simulate it,
// and only then broadcast, so a stale or already-claimed request is caught
// cheaply.
package relayer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/btcproof"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
)

// syncComputeUnits is the per-instruction compute budget reserved for a
// relay header-sync instruction, matching the order of magnitude of the
// escrow adapter's own defaultComputeUnits.
const syncComputeUnits = 60_000

// RelayClaimRequest is an unsigned claim transaction plus the extra signers
// an escrow.Action required, ready for a relayer to sign, simulate, and
// submit (spec.md §4.E "returns the batch for the supervisor to send").
type RelayClaimRequest struct {
	Transaction  *solana.Transaction
	ExtraSigners []solana.PrivateKey
}

// CreateRelayClaimRequest builds the claim transaction for one escrow,
// prepending any BTC-relay header-sync instructions proof still carries
// ahead of the claim instruction in the same transaction (spec.md §4.E
// step 2/3). secret is the HTLC preimage for KindHTLC terms; for chain-proof
// kinds (KindChain/KindChainNonced/KindChainTxID) it is the zero hash, since
// those claims are authorized by the synced header and previously-written
// Merkle proof rather than a revealed secret.
func CreateRelayClaimRequest(
	adapter *escrow.Adapter,
	t *types.EscrowTerms,
	secret [32]byte,
	proof *btcproof.Batch,
	feePayer solana.PublicKey,
	feeRate string,
	recentBlockhash solana.Hash,
) (*RelayClaimRequest, error) {
	claim, err := adapter.BuildClaim(t, secret)
	if err != nil {
		return nil, fmt.Errorf("relayer: failed to build claim action: %w", err)
	}

	actions := []escrow.Action{*claim}
	if proof != nil && len(proof.SyncInstrs) > 0 {
		syncAction := escrow.Action{
			Instructions: proof.SyncInstrs,
			ComputeUnits: uint32(len(proof.SyncInstrs)) * syncComputeUnits,
		}
		actions = append([]escrow.Action{syncAction}, actions...)
	}

	tx, extraSigners, err := escrow.ComposeTransaction(actions, feePayer, recentBlockhash, feeRate)
	if err != nil {
		return nil, fmt.Errorf("relayer: failed to compose claim transaction: %w", err)
	}
	return &RelayClaimRequest{Transaction: tx, ExtraSigners: extraSigners}, nil
}
