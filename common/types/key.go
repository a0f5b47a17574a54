// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"encoding/binary"
	"encoding/hex"
)

// RecordKey builds the store key format mandated by spec.md §4.A:
// hex(payment_hash) || "_" || hex_u64_le(sequence).
func RecordKey(paymentHash Hash, sequence uint64) string {
	var seqLE [8]byte
	binary.LittleEndian.PutUint64(seqLE[:], sequence)
	return paymentHash.String() + "_" + hex.EncodeToString(seqLE[:])
}
