// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package btcproof

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gagliardetto/solana-go"
)

// ErrRelayNotSynced is returned when no committed header can be found or
// produced for a confirmed transaction (spec.md §4.E step 3).
var ErrRelayNotSynced = errors.New("btcproof: relay not synced")

// CommittedHeader identifies the BTC-relay program's on-chain record of the
// Bitcoin header containing a proven transaction.
type CommittedHeader struct {
	BlockHash   chainhash.Hash
	BlockHeight uint64
}

// ConfirmedTx is the subset of a Bitcoin transaction observation the
// builder needs: which block it landed in, its position, and the full
// ordered txid list of that block (to build the Merkle proof).
type ConfirmedTx struct {
	BlockHash     chainhash.Hash
	BlockHeight   uint64
	TxID          chainhash.Hash
	Index         int
	BlockTxIDs    []chainhash.Hash
	Confirmations uint32
}

// RelayReader answers whether the BTC-relay program already has a header
// committed for a given block hash, at or above a minimum height.
type RelayReader interface {
	StoredHeader(ctx context.Context, blockHash chainhash.Hash, minHeight uint64) (*CommittedHeader, error)
}

// Synchronizer extends the relay to cover a header it has not yet seen,
// returning the transactions needed to do so plus the headers those
// transactions will commit, keyed by height (spec.md §4.E step 2).
type Synchronizer interface {
	Synchronize(ctx context.Context, targetHeight uint64) ([]solana.Instruction, map[uint64]CommittedHeader, error)
}

// Batch is the result of proving a confirmed transaction: the Merkle proof,
// the header it commits against, and any relay-synchronization
// instructions that must be included ahead of the claim in the same
// transaction batch (spec.md §4.E "returns the batch for the supervisor to
// send").
type Batch struct {
	Proof      *Proof
	Header     CommittedHeader
	SyncInstrs []solana.Instruction
}

// ProveAndCommit implements the header acquisition policy of spec.md §4.E:
// query the relay for an already-stored header, synchronize if absent, and
// fail with ErrRelayNotSynced if synchronization still leaves no header.
func ProveAndCommit(
	ctx context.Context,
	tx ConfirmedTx,
	confirmationsRequired uint16,
	relay RelayReader,
	sync Synchronizer,
) (*Batch, error) {
	proof, err := BuildMerkleProof(tx.BlockTxIDs, tx.Index)
	if err != nil {
		return nil, err
	}

	minHeight := tx.BlockHeight + uint64(confirmationsRequired) - 1

	header, err := relay.StoredHeader(ctx, tx.BlockHash, minHeight)
	if err != nil {
		return nil, fmt.Errorf("btcproof: failed to query relay: %w", err)
	}
	if header != nil {
		return &Batch{Proof: proof, Header: *header}, nil
	}

	if sync == nil {
		return nil, ErrRelayNotSynced
	}

	instrs, headers, err := sync.Synchronize(ctx, tx.BlockHeight)
	if err != nil {
		return nil, fmt.Errorf("btcproof: failed to synchronize relay: %w", err)
	}
	computed, ok := headers[tx.BlockHeight]
	if !ok {
		return nil, ErrRelayNotSynced
	}

	return &Batch{Proof: proof, Header: computed, SyncInstrs: instrs}, nil
}
