// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package coins provides token-amount conversions and fee-rate string
// encoding shared by the escrow adapter and the supervisor's quoting step.
// It plays the role the teacher's coins.PiconeroAmount/EthAssetAmount play in
// swap_state.go and external_sender.go, generalized from a fixed XMR/ETH
// pair to an arbitrary token with a configurable decimal count.
package coins

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

// TokenAmount wraps a wire-exact integer amount together with the decimal
// count needed to render it as a human-facing apd.Decimal, the same
// "As-variant" shape as the teacher's amount wrappers.
type TokenAmount struct {
	raw      *big.Int
	decimals uint8
}

// NewTokenAmount builds a TokenAmount from its smallest-unit integer value.
func NewTokenAmount(raw *big.Int, decimals uint8) *TokenAmount {
	return &TokenAmount{raw: new(big.Int).Set(raw), decimals: decimals}
}

// BigInt returns the wire-exact smallest-unit value.
func (a *TokenAmount) BigInt() *big.Int {
	return new(big.Int).Set(a.raw)
}

// AsDecimal renders the amount in standard units (e.g. whole tokens) as an
// apd.Decimal: the raw integer coefficient shifted left by -decimals places.
func (a *TokenAmount) AsDecimal() (*apd.Decimal, error) {
	d := new(apd.Decimal)
	d.Coeff.SetString(a.raw.String(), 10)
	if a.raw.Sign() < 0 {
		d.Negative = true
		d.Coeff.Abs(&d.Coeff)
	}
	d.Exponent = -int32(a.decimals)
	return d, nil
}

// Add returns a new TokenAmount that is the sum of a and b. Panics if the
// decimal counts differ, mirroring the teacher's refusal to mix asset types.
func (a *TokenAmount) Add(b *TokenAmount) *TokenAmount {
	if a.decimals != b.decimals {
		panic("coins: cannot add amounts with different decimal counts")
	}
	return NewTokenAmount(new(big.Int).Add(a.raw, b.raw), a.decimals)
}

// Cmp compares the underlying integer values; panics on decimal mismatch.
func (a *TokenAmount) Cmp(b *TokenAmount) int {
	if a.decimals != b.decimals {
		panic("coins: cannot compare amounts with different decimal counts")
	}
	return a.raw.Cmp(b.raw)
}

// IsZero reports whether the amount is exactly zero.
func (a *TokenAmount) IsZero() bool {
	return a.raw.Sign() == 0
}

// RawFromDecimal is the inverse of AsDecimal: it converts a human-units
// apd.Decimal (as produced by the quoting step, spec.md §4.H step 4) into
// the wire-exact smallest-unit integer for a token with the given decimal
// count. It errors if d carries more precision than decimals can represent
// exactly, rather than silently truncating.
func RawFromDecimal(d *apd.Decimal, decimals uint8) (*big.Int, error) {
	shift := int64(d.Exponent) + int64(decimals)
	coeff := new(big.Int).Set(&d.Coeff)

	switch {
	case shift >= 0:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(shift), nil)
		coeff.Mul(coeff, scale)
	default:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(-shift), nil)
		quo, rem := new(big.Int).QuoRem(coeff, scale, new(big.Int))
		if rem.Sign() != 0 {
			return nil, fmt.Errorf("coins: amount %s has more precision than %d decimals", d.String(), decimals)
		}
		coeff = quo
	}
	if d.Negative {
		coeff.Neg(coeff)
	}
	return coeff, nil
}
