// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package btcproof builds Bitcoin Merkle inclusion proofs and resolves the
// BTC-relay header a proof commits against (spec.md §4.E).
package btcproof

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Proof is a Merkle inclusion proof for one transaction within a block, in
// the {reversed_txid, pos, merkle[]} shape the escrow program's BTC-relay
// verify instruction expects (spec.md §4.E).
type Proof struct {
	ReversedTxID [32]byte
	Pos          uint32
	Merkle       [][32]byte
}

// hashMerkleBranches concatenates and double-SHA256-hashes two nodes, the
// same combining rule Bitcoin's block Merkle tree uses.
func hashMerkleBranches(left, right chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:])
}

// BuildMerkleProof computes the inclusion proof for the transaction at
// index within txids, an ordered list of every transaction id in its block.
func BuildMerkleProof(txids []chainhash.Hash, index int) (*Proof, error) {
	if index < 0 || index >= len(txids) {
		return nil, fmt.Errorf("btcproof: index %d out of range for %d transactions", index, len(txids))
	}

	level := make([]chainhash.Hash, len(txids))
	copy(level, txids)
	cur := index

	var siblings []chainhash.Hash
	for len(level) > 1 {
		var siblingIdx int
		if cur%2 == 0 {
			siblingIdx = cur + 1
			if siblingIdx >= len(level) {
				siblingIdx = cur
			}
		} else {
			siblingIdx = cur - 1
		}
		siblings = append(siblings, level[siblingIdx])

		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashMerkleBranches(level[i], right))
		}
		level = next
		cur /= 2
	}

	var reversed [32]byte
	copy(reversed[:], txids[index][:])
	reverseBytes(reversed[:])

	merkle := make([][32]byte, len(siblings))
	for i, s := range siblings {
		merkle[i] = [32]byte(s)
	}

	return &Proof{
		ReversedTxID: reversed,
		Pos:          uint32(index),
		Merkle:       merkle,
	}, nil
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
