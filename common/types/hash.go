// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Hash is a fixed 32-byte identifier: a payment hash, a txo hash, or a
// smart-chain transaction/escrow identifier. It round-trips through JSON as
// lowercase hex, matching the store's hex-everything serialization rule
// (spec.md §6).
type Hash [32]byte

// ErrInvalidHashLength is returned when decoding a hex string of the wrong
// length into a Hash.
var ErrInvalidHashLength = errors.New("invalid hash length")

// HashFromBytes copies b into a new Hash, erroring if the length is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("%w: got %d bytes", ErrInvalidHashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex decodes a hex string (with or without 0x prefix) into a Hash.
func HashFromHex(s string) (Hash, error) {
	s = trim0x(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// String returns the lowercase hex encoding, no 0x prefix.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON implements json.Marshaler.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// IsZero returns true if the hash is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}
