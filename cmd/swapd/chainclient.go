// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
	"github.com/athanor-intermediary/swapd/watcher"
)

// solanaClient is the one concrete binding of every chain-facing interface
// this module defines against an RPC-reachable Solana node: txsender's
// ChainClient, the relayer's Submitter, and the watcher's PollSource/
// LogSubscriber. The teacher wires its extethclient.EthClient the same
// way — a single concrete client satisfying every package-local interface
// the rest of the daemon defines against "the chain".
type solanaClient struct {
	rpcClient *rpc.Client
	wsClient  *ws.Client
}

// dialSolana connects to both the JSON-RPC and websocket endpoints of a
// Solana node.
func dialSolana(ctx context.Context, rpcEndpoint, wsEndpoint string) (*solanaClient, error) {
	wsClient, err := ws.Connect(ctx, wsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to connect to solana websocket endpoint: %w", err)
	}
	return &solanaClient{
		rpcClient: rpc.New(rpcEndpoint),
		wsClient:  wsClient,
	}, nil
}

// LatestBlockhash implements txsender.ChainClient.
func (c *solanaClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("swapd: failed to fetch latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// SimulateTransaction implements txsender.ChainClient and relayer.Submitter.
func (c *solanaClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction) error {
	resp, err := c.rpcClient.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		Commitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return fmt.Errorf("swapd: simulation request failed: %w", err)
	}
	if resp.Value.Err != nil {
		return fmt.Errorf("swapd: simulation reverted: %v", resp.Value.Err)
	}
	return nil
}

// SendTransaction implements txsender.ChainClient and relayer.Submitter.
func (c *solanaClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: true, // the caller already simulated; avoid double-checking.
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("swapd: failed to submit transaction: %w", err)
	}
	return sig, nil
}

// TransactionStatus implements txsender.ChainClient.
func (c *solanaClient) TransactionStatus(ctx context.Context, sig solana.Signature) (types.ChainTxStatus, error) {
	out, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return types.TxStatusNotFound, fmt.Errorf("swapd: failed to fetch signature status: %w", err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return types.TxStatusNotFound, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return types.TxStatusReverted, nil
	}
	if status.ConfirmationStatus == rpc.ConfirmationStatusProcessed {
		return types.TxStatusNotFound, nil
	}
	return types.TxStatusSuccess, nil
}

// TokenAccountBalance returns an SPL token account's raw amount, used by
// balance.go to answer the vault's available-balance query.
func (c *solanaClient) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (*big.Int, error) {
	out, err := c.rpcClient.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to fetch token account balance: %w", err)
	}
	amount, ok := new(big.Int).SetString(out.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("swapd: malformed token account amount %q", out.Value.Amount)
	}
	return amount, nil
}

// SignaturesSince implements watcher.PollSource.
func (c *solanaClient) SignaturesSince(ctx context.Context, programID solana.PublicKey, after string) ([]watcher.SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Commitment: rpc.CommitmentConfirmed,
	}
	if after != "" {
		sig, err := solana.SignatureFromBase58(after)
		if err != nil {
			return nil, fmt.Errorf("swapd: invalid checkpoint signature %q: %w", after, err)
		}
		opts.Until = sig
	}
	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, programID, opts)
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to list program signatures: %w", err)
	}
	out := make([]watcher.SignatureInfo, 0, len(sigs))
	for _, s := range sigs { // newest-first, as the RPC lists them; the watcher reverses them.
		out = append(out, watcher.SignatureInfo{Signature: s.Signature.String(), Slot: s.Slot})
	}
	return out, nil
}

// GetTransaction implements watcher.PollSource.
func (c *solanaClient) GetTransaction(ctx context.Context, signature string) (*watcher.FetchedTransaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("swapd: invalid signature %q: %w", signature, err)
	}
	maxVersion := uint64(0)
	result, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to fetch transaction %s: %w", signature, err)
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to decode transaction %s: %w", signature, err)
	}
	return &watcher.FetchedTransaction{
		Slot:         result.Slot,
		Instructions: decodeRawInstructions(tx),
	}, nil
}

// decodeRawInstructions flattens a transaction's top-level instructions
// into escrow.RawInstruction, resolving each instruction's account indices
// against the transaction's account key list.
func decodeRawInstructions(tx *solana.Transaction) []escrow.RawInstruction {
	keys := tx.Message.AccountKeys
	out := make([]escrow.RawInstruction, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) {
			continue
		}
		accounts := make([]solana.PublicKey, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			if int(idx) < len(keys) {
				accounts = append(accounts, keys[idx])
			}
		}
		out = append(out, escrow.RawInstruction{
			ProgramID: keys[ix.ProgramIDIndex],
			Accounts:  accounts,
			Data:      ix.Data,
		})
	}
	return out
}

// solanaLogSubscription adapts a *ws.LogSubscription to watcher.LogSubscription.
type solanaLogSubscription struct {
	sub *ws.LogSubscription
}

func (s *solanaLogSubscription) Next(ctx context.Context) (watcher.SignatureInfo, error) {
	type result struct {
		info watcher.SignatureInfo
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		got, err := s.sub.Recv(ctx)
		if err != nil {
			resultCh <- result{err: err}
			return
		}
		resultCh <- result{info: watcher.SignatureInfo{
			Signature: got.Value.Signature.String(),
			Slot:      got.Context.Slot,
		}}
	}()
	select {
	case <-ctx.Done():
		return watcher.SignatureInfo{}, ctx.Err()
	case r := <-resultCh:
		return r.info, r.err
	}
}

func (s *solanaLogSubscription) Close() error {
	s.sub.Unsubscribe()
	return nil
}

// Subscribe implements watcher.LogSubscriber.
func (c *solanaClient) Subscribe(ctx context.Context, programID solana.PublicKey) (watcher.LogSubscription, error) {
	sub, err := c.wsClient.LogsSubscribeMentions(programID, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to subscribe to program logs: %w", err)
	}
	return &solanaLogSubscription{sub: sub}, nil
}
