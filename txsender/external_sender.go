// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package txsender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
)

var errTransactionTimeout = errors.New("txsender: timed out waiting for front-end to sign transaction")

// transactionTimeout is how long a front-end has to sign and submit a
// handed-off transaction before the call fails; mainnet gets a longer grace
// period, matching the teacher's own mainnet/stagenet distinction.
var transactionTimeout = time.Minute * 2

// Request is an unsigned transaction handed to the front-end for signing,
// the Solana-shaped equivalent of the teacher's ABI-encoded Transaction.
type Request struct {
	Transaction  *solana.Transaction
	ExtraSigners []solana.PrivateKey
}

// ExternalSender hands transactions to a front-end over a channel pair and
// waits for it to report back the signature it submitted, rather than
// signing in-process (spec.md §12 "channel-based external-signer handoff").
type ExternalSender struct {
	adapter   *escrow.Adapter
	feePayer  solana.PublicKey
	chain     ChainClient
	feeRate   string

	mu  sync.Mutex
	out chan *Request
	in  chan string // base58 tx signature, reported back by the front-end
}

// NewExternalSender returns an ExternalSender bound to feePayer, the
// front-end's own address.
func NewExternalSender(env common.Environment, adapter *escrow.Adapter, feePayer solana.PublicKey, chain ChainClient, feeRate string) *ExternalSender {
	if env == common.Mainnet {
		transactionTimeout = time.Hour
	}
	return &ExternalSender{
		adapter:  adapter,
		feePayer: feePayer,
		chain:    chain,
		feeRate:  feeRate,
		out:      make(chan *Request),
		in:       make(chan string),
	}
}

// OngoingCh returns the channel of outgoing transactions awaiting a
// front-end signature.
func (s *ExternalSender) OngoingCh() <-chan *Request {
	return s.out
}

// IncomingCh returns the channel the front-end reports signed transaction
// signatures back on.
func (s *ExternalSender) IncomingCh() chan<- string {
	return s.in
}

func (s *ExternalSender) handOff(ctx context.Context, actions []escrow.Action) (string, []byte, error) {
	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to fetch blockhash: %w", err)
	}
	tx, extraSigners, err := escrow.ComposeTransaction(actions, s.feePayer, blockhash, s.feeRate)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to compose transaction: %w", err)
	}
	rawTx, err := tx.MarshalBinary()
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to serialize transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.out <- &Request{Transaction: tx, ExtraSigners: extraSigners}
	select {
	case <-time.After(transactionTimeout):
		return "", nil, errTransactionTimeout
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case txID := <-s.in:
		return txID, rawTx, nil
	}
}

// Commit submits the escrow Init action via the front-end.
func (s *ExternalSender) Commit(ctx context.Context, terms *types.EscrowTerms, txoHash [32]byte) (string, []byte, error) {
	action, err := s.adapter.BuildInit(terms, txoHash, 0)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to build init action: %w", err)
	}
	return s.handOff(ctx, []escrow.Action{*action})
}

// Send hands a plain SPL Token transfer to the front-end.
func (s *ExternalSender) Send(ctx context.Context, token, dstAddress string, amount uint64) (string, []byte, error) {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: bad token address %q: %w", token, err)
	}
	dst, err := solana.PublicKeyFromBase58(dstAddress)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: bad destination address %q: %w", dstAddress, err)
	}
	sourceATA, err := associatedTokenAddress(s.feePayer, mint)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to derive funding-wallet ATA: %w", err)
	}
	destATA, err := associatedTokenAddress(dst, mint)
	if err != nil {
		return "", nil, fmt.Errorf("txsender: failed to derive destination ATA: %w", err)
	}
	action := escrow.Action{
		Instructions: []solana.Instruction{transferInstruction(sourceATA, destATA, s.feePayer, amount)},
		ComputeUnits: splTransferComputeUnits,
	}
	return s.handOff(ctx, []escrow.Action{action})
}

// Claim hands the escrow Claim action to the front-end.
func (s *ExternalSender) Claim(ctx context.Context, terms *types.EscrowTerms, secret [32]byte) (string, error) {
	action, err := s.adapter.BuildClaim(terms, secret)
	if err != nil {
		return "", fmt.Errorf("txsender: failed to build claim action: %w", err)
	}
	txID, _, err := s.handOff(ctx, []escrow.Action{*action})
	return txID, err
}

// Refund hands the escrow Refund action to the front-end.
func (s *ExternalSender) Refund(ctx context.Context, terms *types.EscrowTerms, authExpiry uint64) (string, error) {
	action, err := s.adapter.BuildRefund(terms, authExpiry)
	if err != nil {
		return "", fmt.Errorf("txsender: failed to build refund action: %w", err)
	}
	txID, _, err := s.handOff(ctx, []escrow.Action{*action})
	return txID, err
}

// PollStatus reports the terminal status of a previously-submitted txID.
func (s *ExternalSender) PollStatus(ctx context.Context, txID string) (types.ChainTxStatus, error) {
	sig, err := parseTxID(txID)
	if err != nil {
		return types.TxStatusNotFound, err
	}
	return s.chain.TransactionStatus(ctx, sig)
}
