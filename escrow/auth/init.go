// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package auth implements the auth-signature protocol (spec.md §4.C): the
// init-auth transaction-signature scheme used before an offerer commits
// funds, and the refund-auth Ed25519 scheme used before a cooperative early
// refund.
package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
)

// InitAuth is the signed authorization an offerer's counterparty returns
// before the offerer commits the init transaction.
type InitAuth struct {
	Prefix    string
	Timeout   int64 // unix seconds
	Signature string // "{slot};{hex(sig)}"
}

// BlockhashSource resolves the blockhash a given slot's block supplied, with
// callers expected to cache recent lookups (spec.md §4.C "with a small
// cache").
type BlockhashSource interface {
	BlockhashForSlot(ctx context.Context, slot uint64) (solana.Hash, error)
	ProcessedSlot(ctx context.Context) (uint64, error)
	FinalizedSlot(ctx context.Context) (uint64, error)
}

// Signer constructs and signs the init-auth transaction. It is implemented
// by the side granting the authorization (the counterparty countersigning
// the offerer's commit), not by the offerer itself.
type Signer struct {
	adapter  *escrow.Adapter
	key      solana.PrivateKey
	isClaim  bool // claim_initialize vs initialize
}

// NewSigner returns a Signer that builds init-auth grants using key, for
// either the "initialize" prefix (isClaim=false) or "claim_initialize"
// prefix (isClaim=true).
func NewSigner(adapter *escrow.Adapter, key solana.PrivateKey, isClaim bool) *Signer {
	return &Signer{adapter: adapter, key: key, isClaim: isClaim}
}

func prefixFor(isClaim bool) string {
	if isClaim {
		return "claim_initialize"
	}
	return "initialize"
}

// Grant builds the actual initialize instruction from t, fills in a recent
// finalized blockhash, signs it, and returns the resulting InitAuth.
func (s *Signer) Grant(
	ctx context.Context,
	src BlockhashSource,
	t *types.EscrowTerms,
	txoHash [32]byte,
	timeout int64,
) (*InitAuth, error) {
	finalizedSlot, err := src.FinalizedSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read finalized slot: %w", err)
	}
	blockhash, err := src.BlockhashForSlot(ctx, finalizedSlot)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to resolve blockhash for slot %d: %w", finalizedSlot, err)
	}

	action, err := s.adapter.BuildInit(t, txoHash, uint64(timeout))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to build init instruction: %w", err)
	}
	tx, err := solana.NewTransaction(action.Instructions, blockhash, solana.TransactionPayer(s.key.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to build init-auth transaction: %w", err)
	}
	sigs, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: failed to sign init-auth transaction: %w", err)
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("auth: transaction produced no signature")
	}

	return &InitAuth{
		Prefix:    prefixFor(s.isClaim),
		Timeout:   timeout,
		Signature: fmt.Sprintf("%d;%s", finalizedSlot, hex.EncodeToString(sigs[0][:])),
	}, nil
}

// parseSignature splits the "{slot};{hex(sig)}" wire form.
func parseSignature(s string) (uint64, solana.Signature, error) {
	parts := strings.SplitN(s, ";", 2)
	if len(parts) != 2 {
		return 0, solana.Signature{}, fmt.Errorf("auth: malformed signature field %q", s)
	}
	slot, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, solana.Signature{}, fmt.Errorf("auth: malformed slot in signature field: %w", err)
	}
	raw, err := hex.DecodeString(parts[1])
	if err != nil || len(raw) != 64 {
		return 0, solana.Signature{}, fmt.Errorf("auth: malformed signature hex in signature field")
	}
	var sig solana.Signature
	copy(sig[:], raw)
	return slot, sig, nil
}

// Verifier reconstructs the init-auth transaction deterministically and
// checks the four validity conditions of spec.md §4.C.
type Verifier struct {
	adapter *escrow.Adapter
}

// NewVerifier returns a Verifier bound to the escrow adapter used to
// reconstruct the candidate transaction.
func NewVerifier(adapter *escrow.Adapter) *Verifier {
	return &Verifier{adapter: adapter}
}

// Verify checks auth against t, returning nil if it is valid. expectedPrefix
// distinguishes "initialize" grants (for the committing offerer) from
// "claim_initialize" grants (for the claimer side), per spec.md §4.C. When
// expectedPrefix is "initialize", the swap's own expiry is also
// checked against claim_grace_period so the swap cannot expire before the
// counterparty can safely claim.
func (v *Verifier) Verify(
	ctx context.Context,
	src BlockhashSource,
	signerKey solana.PublicKey,
	t *types.EscrowTerms,
	txoHash [32]byte,
	auth *InitAuth,
	expectedPrefix string,
	now time.Time,
) error {
	if auth.Prefix != expectedPrefix {
		return fmt.Errorf("auth: unexpected prefix %q, want %q", auth.Prefix, expectedPrefix)
	}
	if auth.Timeout < now.Add(common.AuthGracePeriod).Unix() {
		return fmt.Errorf("auth: timeout %d does not clear the auth grace period", auth.Timeout)
	}

	slot, sig, err := parseSignature(auth.Signature)
	if err != nil {
		return err
	}

	processedSlot, err := src.ProcessedSlot(ctx)
	if err != nil {
		return fmt.Errorf("auth: failed to read processed slot: %w", err)
	}
	if slot+common.TxSlotValidity-common.SignatureSlotBuffer <= processedSlot {
		return fmt.Errorf("auth: signature slot %d has expired against processed slot %d", slot, processedSlot)
	}

	if expectedPrefix == "initialize" {
		minExpiry := now.Add(common.AuthGracePeriod).Add(common.ClaimGracePeriod).Unix()
		if !t.ExpiryIsBlockHeight() && int64(t.Expiry) < minExpiry {
			return fmt.Errorf("auth: swap expiry %d leaves no safe claim window", t.Expiry)
		}
	}

	blockhash, err := src.BlockhashForSlot(ctx, slot)
	if err != nil {
		return fmt.Errorf("auth: failed to resolve blockhash for slot %d: %w", slot, err)
	}

	action, err := v.adapter.BuildInit(t, txoHash, uint64(auth.Timeout))
	if err != nil {
		return fmt.Errorf("auth: failed to reconstruct init instruction: %w", err)
	}
	tx, err := solana.NewTransaction(action.Instructions, blockhash, solana.TransactionPayer(signerKey))
	if err != nil {
		return fmt.Errorf("auth: failed to reconstruct init-auth transaction: %w", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("auth: failed to serialize reconstructed message: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(signerKey.Bytes()), msg, sig[:]) {
		return fmt.Errorf("auth: signature verification failed")
	}
	return nil
}
