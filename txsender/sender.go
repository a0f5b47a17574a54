// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package txsender submits the escrow adapter's composed transactions to the
// smart chain, in two flavors: an in-process Sender that holds its own
// signing key, and an ExternalSender that hands transactions to a front-end
// over a channel pair and waits for it to report back a signature — the
// same Action/Sender split the teacher's protocol/txsender uses, retargeted
// from go-ethereum ABI calls to Solana transactions (spec.md §12 "keep its
// HOW ... replace its WHAT").
package txsender

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/common/types"
)

// ChainClient is the minimal smart-chain RPC surface a Sender needs: a
// recent blockhash to build a transaction against, simulate-then-broadcast,
// and a status poll for a previously-submitted signature.
type ChainClient interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) error
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	TransactionStatus(ctx context.Context, sig solana.Signature) (types.ChainTxStatus, error)
}

// Sender is the interface both concrete submission paths implement. It is
// the production backing for swapfsm's ChainCommitter and TxSubmitter
// interfaces through the narrowing adapters in cmd/swapd (adapters.go):
// Commit backs ChainCommitter, Send backs TxSubmitter's token payout, and
// Claim/Refund back the relayer's own claim/refund
// paths when the intermediary acts as its own relayer.
type Sender interface {
	// Commit submits the escrow Init action for terms, observed against
	// txoHash for chain-proof kinds (the zero hash for HTLC kinds).
	Commit(ctx context.Context, terms *types.EscrowTerms, txoHash [32]byte) (txID string, rawTx []byte, err error)
	// Send submits a plain SPL Token transfer to dstAddress, used by the
	// FROM_BTC_LN_TRUSTED direction, which has no escrow step at all.
	Send(ctx context.Context, token, dstAddress string, amount uint64) (txID string, rawTx []byte, err error)
	// Claim submits the escrow Claim action, revealing secret (the zero hash
	// for chain-proof kinds, which carry no preimage).
	Claim(ctx context.Context, terms *types.EscrowTerms, secret [32]byte) (txID string, err error)
	// Refund submits the escrow Refund action.
	Refund(ctx context.Context, terms *types.EscrowTerms, authExpiry uint64) (txID string, err error)
	// PollStatus reports the terminal status of a previously-submitted txID.
	PollStatus(ctx context.Context, txID string) (types.ChainTxStatus, error)
}

func parseTxID(txID string) (solana.Signature, error) {
	raw, err := solana.SignatureFromBase58(txID)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("txsender: malformed tx id %q: %w", txID, err)
	}
	return raw, nil
}
