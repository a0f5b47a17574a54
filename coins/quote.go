// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package coins

import (
	"github.com/cockroachdb/apd/v3"
)

// Quote is the result of the supervisor's admission-pipeline quoting step
// (spec.md §4.H step 4).
type Quote struct {
	AmountBD        *apd.Decimal
	SwapFee         *apd.Decimal
	SwapFeeInToken  *apd.Decimal
	TotalInToken    *apd.Decimal
}

// BuildQuote computes the quote for a requested amount at the given price
// and fee rate (a fraction, e.g. 0.001 for 10bps). When exactOut is true,
// amount is the amount the counterparty should receive and the fee is added
// on top to get total; otherwise amount is what the counterparty is paying
// in and the fee is deducted to arrive at the output.
func BuildQuote(amount, price, feeFraction *apd.Decimal, exactOut bool) (*Quote, error) {
	ctx := apd.BaseContext.WithPrecision(40)

	amountInToken := new(apd.Decimal)
	if _, err := ctx.Mul(amountInToken, amount, price); err != nil {
		return nil, err
	}

	fee := new(apd.Decimal)
	if _, err := ctx.Mul(fee, amountInToken, feeFraction); err != nil {
		return nil, err
	}

	total := new(apd.Decimal)
	if exactOut {
		if _, err := ctx.Add(total, amountInToken, fee); err != nil {
			return nil, err
		}
	} else {
		if _, err := ctx.Sub(total, amountInToken, fee); err != nil {
			return nil, err
		}
	}

	return &Quote{
		AmountBD:       amount,
		SwapFee:        fee,
		SwapFeeInToken: fee,
		TotalInToken:   total,
	}, nil
}
