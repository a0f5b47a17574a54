// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package watcher

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/escrow"
)

// SignatureInfo is one entry of the program's signature history, oldest
// fields only (spec.md §4.D "Poll loop").
type SignatureInfo struct {
	Signature string
	Slot      uint64
}

// FetchedTransaction is everything the decoder needs out of one fetched
// transaction: its instructions (already flattened, inner instructions
// included) and the slot it landed in.
type FetchedTransaction struct {
	Slot         uint64
	Instructions []escrow.RawInstruction
}

// PollSource is the poll-loop's view of the chain: signature history plus
// transaction fetch, both scoped to the escrow program address.
type PollSource interface {
	// SignaturesSince returns signatures for programID strictly newer than
	// after, newest-first as the chain lists them (the watcher reverses them
	// into oldest-first order), or all available signatures if after is the
	// zero value.
	SignaturesSince(ctx context.Context, programID solana.PublicKey, after string) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*FetchedTransaction, error)
}

// LogSubscription is a live subscription to one program's instruction log,
// used by the websocket listener.
type LogSubscription interface {
	// Next blocks until a new signature involving the program is observed,
	// or ctx is done.
	Next(ctx context.Context) (SignatureInfo, error)
	Close() error
}

// LogSubscriber opens a LogSubscription for a program address.
type LogSubscriber interface {
	Subscribe(ctx context.Context, programID solana.PublicKey) (LogSubscription, error)
}
