// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/txsender"
)

// chainCommitterAdapter narrows a txsender.Sender to swapfsm.ChainCommitter,
// dropping the raw signed tx: FROM_BTC's commit step never needs to retry
// from a kept raw tx the way the relayer's claim/refund paths do.
type chainCommitterAdapter struct {
	sender txsender.Sender
}

func (a chainCommitterAdapter) Commit(ctx context.Context, terms *types.EscrowTerms, txoHash [32]byte) (string, error) {
	txID, _, err := a.sender.Commit(ctx, terms, txoHash)
	return txID, err
}

func (a chainCommitterAdapter) PollStatus(ctx context.Context, txID string) (types.ChainTxStatus, error) {
	return a.sender.PollStatus(ctx, txID)
}

// txSubmitterAdapter narrows a txsender.Sender to swapfsm.TxSubmitter for
// one fixed token: FROM_BTC_LN_TRUSTED's machine is built per-direction
// (and so per-token), while Sender.Send takes the token as an explicit
// argument to serve every direction from one sender.
type txSubmitterAdapter struct {
	sender txsender.Sender
	token  string
}

func (a txSubmitterAdapter) Submit(ctx context.Context, dstAddress string, amount *big.Int) (string, []byte, error) {
	if !amount.IsUint64() {
		return "", nil, fmt.Errorf("swapd: amount %s does not fit in a token's native uint64 wire form", amount)
	}
	return a.sender.Send(ctx, a.token, dstAddress, amount.Uint64())
}

// balanceCheckerAdapter narrows a vaultBalance to swapfsm.BalanceChecker.
type balanceCheckerAdapter struct {
	balance *vaultBalance
}

func (a balanceCheckerAdapter) HasSufficientBalance(ctx context.Context, token string, amount *big.Int) (bool, error) {
	available, err := a.balance.Available(ctx, token)
	if err != nil {
		return false, err
	}
	return available.BigInt().Cmp(amount) >= 0, nil
}
