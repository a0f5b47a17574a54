// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package txsender

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
)

// InProcessSender holds its own signing key and submits transactions
// directly, the way the teacher's swap_state.go drives its bound
// SwapCreator contract without a front-end round trip.
type InProcessSender struct {
	adapter *escrow.Adapter
	key     solana.PrivateKey
	chain   ChainClient
	feeRate string
}

// NewInProcessSender returns a Sender that signs and submits with key.
func NewInProcessSender(adapter *escrow.Adapter, key solana.PrivateKey, chain ChainClient, feeRate string) *InProcessSender {
	return &InProcessSender{adapter: adapter, key: key, chain: chain, feeRate: feeRate}
}

func (s *InProcessSender) buildAndSend(ctx context.Context, actions []escrow.Action) (string, []byte, error) {
	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to fetch blockhash: %w", err)
	}
	tx, extraSigners, err := escrow.ComposeTransaction(actions, s.key.PublicKey(), blockhash, s.feeRate)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to compose transaction: %w", err)
	}

	signers := append([]solana.PrivateKey{s.key}, extraSigners...)
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(pk) {
				return &signers[i]
			}
		}
		return nil
	}); err != nil {
		return "", nil, fmt.Errorf("txsender: failed to sign transaction: %w", err)
	}

	rawTx, err := tx.MarshalBinary()
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to serialize transaction: %w", err)
	}

	if err := s.chain.SimulateTransaction(ctx, tx); err != nil {
		return "", nil, fmt.Errorf("txsender: simulation failed: %w", err)
	}
	sig, err := s.chain.SendTransaction(ctx, tx)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to submit transaction: %w", err)
	}
	return sig.String(), rawTx, nil
}

// Commit submits the escrow Init action.
func (s *InProcessSender) Commit(ctx context.Context, terms *types.EscrowTerms, txoHash [32]byte) (string, []byte, error) {
	authExpiry := uint64(0) // no counterparty init-auth grant: the intermediary commits unilaterally here.
	action, err := s.adapter.BuildInit(terms, txoHash, authExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to build init action: %w", err)
	}
	return s.buildAndSend(ctx, []escrow.Action{*action})
}

// Send submits a plain SPL Token transfer from the intermediary's own
// funding-wallet token account to dstAddress's associated token account —
// the FROM_BTC_LN_TRUSTED direction's payout has no escrow step at all.
func (s *InProcessSender) Send(ctx context.Context, token, dstAddress string, amount uint64) (string, []byte, error) {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: bad token address %q: %w", token, err)
	}
	dst, err := solana.PublicKeyFromBase58(dstAddress)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: bad destination address %q: %w", dstAddress, err)
	}
	sourceATA, err := associatedTokenAddress(s.key.PublicKey(), mint)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to derive funding-wallet ATA: %w", err)
	}
	destATA, err := associatedTokenAddress(dst, mint)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to derive destination ATA: %w", err)
	}

	action := escrow.Action{
		Instructions: []solana.Instruction{transferInstruction(sourceATA, destATA, s.key.PublicKey(), amount)},
		ComputeUnits: splTransferComputeUnits,
	}
	return s.buildAndSend(ctx, []escrow.Action{action})
}

// Claim submits the escrow Claim action.
func (s *InProcessSender) Claim(ctx context.Context, terms *types.EscrowTerms, secret [32]byte) (string, error) {
	action, err := s.adapter.BuildClaim(terms, secret)
	if err != nil {
		return "", fmt.Errorf("txsender: failed to build claim action: %w", err)
	}
	txID, _, err := s.buildAndSend(ctx, []escrow.Action{*action})
	return txID, err
}

// Refund submits the escrow Refund action.
func (s *InProcessSender) Refund(ctx context.Context, terms *types.EscrowTerms, authExpiry uint64) (string, error) {
	action, err := s.adapter.BuildRefund(terms, authExpiry)
	if err != nil {
		return "", fmt.Errorf("txsender: failed to build refund action: %w", err)
	}
	txID, _, err := s.buildAndSend(ctx, []escrow.Action{*action})
	return txID, err
}

// PollStatus reports the terminal status of a previously-submitted txID.
func (s *InProcessSender) PollStatus(ctx context.Context, txID string) (types.ChainTxStatus, error) {
	sig, err := parseTxID(txID)
	if err != nil {
		return types.TxStatusNotFound, err
	}
	return s.chain.TransactionStatus(ctx, sig)
}
