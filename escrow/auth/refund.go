// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/athanor-intermediary/swapd/common/types"
)

// refundAuthPrefix is the fixed prefix byte string mixed into every
// refund-auth payload, distinguishing it from any other Ed25519-signed
// message this node might produce.
var refundAuthPrefix = []byte("refund_auth")

// RefundAuth is a claimer-issued cooperative early-refund authorization.
type RefundAuth struct {
	Timeout   int64
	Signature [64]byte
}

// RefundPayload builds the sha256 payload the claimer signs: prefix ||
// amount_le_u64 || expiry_le_u64 || sequence_le_u64 || payment_hash ||
// timeout_le_u64 (spec.md §4.C "Refund-auth").
func RefundPayload(t *types.EscrowTerms, timeout int64) [32]byte {
	buf := make([]byte, 0, len(refundAuthPrefix)+8+8+8+32+8)
	buf = append(buf, refundAuthPrefix...)
	buf = appendLE64(buf, t.Amount.Uint64())
	buf = appendLE64(buf, t.Expiry)
	buf = appendLE64(buf, t.Sequence)
	buf = append(buf, t.PaymentHash[:]...)
	buf = appendLE64(buf, uint64(timeout))
	return sha256.Sum256(buf)
}

func appendLE64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// SignRefund produces a RefundAuth over t, signed by the claimer's key.
func SignRefund(key ed25519.PrivateKey, t *types.EscrowTerms, timeout int64) *RefundAuth {
	payload := RefundPayload(t, timeout)
	sig := ed25519.Sign(key, payload[:])
	var out [64]byte
	copy(out[:], sig)
	return &RefundAuth{Timeout: timeout, Signature: out}
}

// VerifyRefund reports whether auth is a valid claimer authorization for t.
// It only performs the off-chain signature check; the on-chain program
// additionally requires an Ed25519-program verify instruction carrying the
// identical message and signature in the same transaction (spec.md §4.C).
func VerifyRefund(claimerKey ed25519.PublicKey, t *types.EscrowTerms, auth *RefundAuth) error {
	payload := RefundPayload(t, auth.Timeout)
	if !ed25519.Verify(claimerKey, payload[:], auth.Signature[:]) {
		return fmt.Errorf("auth: refund authorization signature invalid")
	}
	return nil
}

// IsSignatureExpired reports whether auth.Timeout has passed, using a
// finalized-time reading so terminal decisions are never reverted by chain
// reorganization (spec.md §4.C "Expiry decision").
func IsSignatureExpired(auth *RefundAuth, finalizedUnixTime int64) bool {
	return auth.Timeout < finalizedUnixTime
}
