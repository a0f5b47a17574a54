// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package escrow

import (
	"context"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/common/types"
)

// EscrowStateAccount is the decoded on-chain layout of a SwapEscrowState PDA,
// the subset of fields get_commit_status needs (spec.md §4.B "Status read").
type EscrowStateAccount struct {
	Initialized bool
	PaymentHash [32]byte
	Sequence    uint64
	Offerer     solana.PublicKey
	Claimer     solana.PublicKey
	Expiry      uint64
}

// AccountReader fetches and decodes accounts from the smart chain. Returns
// (nil, nil) when the account does not exist (closed or never created) —
// callers must not treat that as an error.
type AccountReader interface {
	GetEscrowState(ctx context.Context, addr solana.PublicKey) (*EscrowStateAccount, error)
	CurrentUnixTime(ctx context.Context) (int64, error)
}

// EventHistory answers whether a terminal event was already observed for a
// given escrow state PDA and sequence (spec.md §4.B status step 3). This
// module ships no implementation of it.
type EventHistory interface {
	HasClaim(ctx context.Context, escrowState solana.PublicKey, sequence uint64) (bool, error)
	HasRefund(ctx context.Context, escrowState solana.PublicKey, sequence uint64) (bool, error)
}

// DecodeEscrowStateAccount decodes the raw account bytes the program stores
// at a SwapEscrowState PDA. Returns nil if the account is uninitialized
// (all-zero discriminator), matching AccountReader's nil-on-absent contract.
func DecodeEscrowStateAccount(data []byte) (*EscrowStateAccount, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := bin.NewBorshDecoder(data)
	var acct EscrowStateAccount
	if err := dec.Decode(&acct); err != nil {
		return nil, fmt.Errorf("escrow: failed to decode escrow state account: %w", err)
	}
	if !acct.Initialized {
		return nil, nil
	}
	return &acct, nil
}

// correctPDA reports whether the decoded account actually corresponds to
// this swap: its payment hash and sequence must match the terms used to
// derive the PDA in the first place. A PDA can in principle be reused after
// being closed and reopened for an unrelated swap that happens to hash to
// the same derivation path's seed collision class — this check rules that
// out explicitly rather than trusting address derivation alone.
func correctPDA(acct *EscrowStateAccount, t *types.EscrowTerms) bool {
	return acct.PaymentHash == t.PaymentHash && acct.Sequence == t.Sequence
}

// GetCommitStatus implements the four-step status read of spec.md §4.B.
// callerIsOfferer tells the algorithm which side of the swap the caller is,
// since "expired" and "refundable" are only meaningful from the offerer's
// perspective.
func (a *Adapter) GetCommitStatus(
	ctx context.Context,
	reader AccountReader,
	history EventHistory,
	t *types.EscrowTerms,
	callerIsOfferer bool,
	refundGracePeriod time.Duration,
) (types.CommitStatus, error) {
	escrowState, _, err := a.addrs.SwapEscrowState(t.PaymentHash)
	if err != nil {
		return types.StatusNotCommitted, fmt.Errorf("escrow: failed to derive escrow state PDA: %w", err)
	}

	now, err := reader.CurrentUnixTime(ctx)
	if err != nil {
		return types.StatusNotCommitted, fmt.Errorf("escrow: failed to read chain clock: %w", err)
	}
	expired := isExpired(t, now, refundGracePeriod)

	acct, err := reader.GetEscrowState(ctx, escrowState)
	if err != nil {
		return types.StatusNotCommitted, fmt.Errorf("escrow: failed to read escrow state account: %w", err)
	}

	// Step 1: account exists and matches this swap.
	if acct != nil && correctPDA(acct, t) {
		if callerIsOfferer && expired {
			return types.StatusRefundable, nil
		}
		return types.StatusCommitted, nil
	}

	// Step 2: the account is gone (closed by claim/refund), but from the
	// offerer's perspective the swap is past expiry with nothing observed.
	if callerIsOfferer && expired {
		return types.StatusExpired, nil
	}

	// Step 3: consult event history for the PDA.
	claimed, err := history.HasClaim(ctx, escrowState, t.Sequence)
	if err != nil {
		return types.StatusNotCommitted, fmt.Errorf("escrow: failed to query claim history: %w", err)
	}
	if claimed {
		return types.StatusPaid, nil
	}
	refunded, err := history.HasRefund(ctx, escrowState, t.Sequence)
	if err != nil {
		return types.StatusNotCommitted, fmt.Errorf("escrow: failed to query refund history: %w", err)
	}
	if refunded {
		if expired {
			return types.StatusExpired, nil
		}
		return types.StatusNotCommitted, nil
	}

	// Step 4.
	return types.StatusNotCommitted, nil
}

func isExpired(t *types.EscrowTerms, nowUnix int64, refundGracePeriod time.Duration) bool {
	if t.ExpiryIsBlockHeight() {
		// Block-height expiries are not compared against any chain tip:
		// a block-height-denominated swap always reads as not expired here.
		return false
	}
	return int64(t.Expiry)+int64(refundGracePeriod.Seconds()) < nowUnix
}
