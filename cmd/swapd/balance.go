// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/coins"
	"github.com/athanor-intermediary/swapd/escrow"
)

// tokenBalanceReader is the subset of *solanaClient balance.go depends on.
type tokenBalanceReader interface {
	TokenAccountBalance(ctx context.Context, account solana.PublicKey) (*big.Int, error)
}

// tokenInfo is one configured token's SPL mint and decimal count.
type tokenInfo struct {
	Mint     solana.PublicKey
	Decimals uint8
}

// vaultBalance implements supervisor.VaultBalance by reading the escrow
// program's per-token pooled vault account directly (spec.md §4.B's
// SwapVault PDA), the same account the escrow adapter's Init/Withdraw
// actions move funds through.
type vaultBalance struct {
	chain   tokenBalanceReader
	addrs   *escrow.Addresses
	tokens  map[string]tokenInfo // token symbol/identifier -> mint + decimals
}

// newVaultBalance wires a vaultBalance to the chain client and the
// configured token-symbol-to-mint table (spec.md §4.H admission's `token`
// parameter is a symbol like the teacher's asset strings, not a raw mint
// address, so direction config supplies the mapping).
func newVaultBalance(chain tokenBalanceReader, addrs *escrow.Addresses, tokens map[string]tokenInfo) *vaultBalance {
	return &vaultBalance{chain: chain, addrs: addrs, tokens: tokens}
}

// Available implements supervisor.VaultBalance.
func (b *vaultBalance) Available(ctx context.Context, token string) (*coins.TokenAmount, error) {
	info, ok := b.tokens[token]
	if !ok {
		return nil, fmt.Errorf("swapd: unknown token %q", token)
	}
	vault, _, err := b.addrs.SwapVault(info.Mint)
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to derive vault PDA for %q: %w", token, err)
	}
	raw, err := b.chain.TokenAccountBalance(ctx, vault)
	if err != nil {
		return nil, err
	}
	return coins.NewTokenAmount(raw, info.Decimals), nil
}
