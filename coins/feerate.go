// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package coins

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// FeeRate is a parsed smart-chain fee-rate string. The base rate is opaque to
// this package (it is handed to the chain-specific fee estimator the
// supervisor is built against); the optional "#a;b" suffix flags whether a
// wrapped-native ATA-init instruction is needed and how much balance the
// wrapped-native ATA already holds (spec.md §4.B "Fee-rate encoding").
type FeeRate struct {
	Base              string
	NeedsWrappedNativeATAInit bool
	WrappedNativeATABalance   *big.Int
}

// ParseFeeRate parses a fee-rate string of the form "<base>" or
// "<base>#<0|1>;<balance>".
func ParseFeeRate(s string) (*FeeRate, error) {
	hashIdx := strings.IndexByte(s, '#')
	if hashIdx < 0 {
		return &FeeRate{Base: s}, nil
	}

	base := s[:hashIdx]
	suffix := s[hashIdx+1:]
	parts := strings.SplitN(suffix, ";", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("coins: malformed fee-rate suffix %q", suffix)
	}

	flag, err := strconv.Atoi(parts[0])
	if err != nil || (flag != 0 && flag != 1) {
		return nil, fmt.Errorf("coins: malformed ATA-init flag %q", parts[0])
	}

	balance, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return nil, fmt.Errorf("coins: malformed wrapped-native balance %q", parts[1])
	}

	return &FeeRate{
		Base:                      base,
		NeedsWrappedNativeATAInit: flag == 1,
		WrappedNativeATABalance:   balance,
	}, nil
}

// String re-emits the canonical encoding accepted by ParseFeeRate.
func (f *FeeRate) String() string {
	if f.WrappedNativeATABalance == nil {
		return f.Base
	}
	flag := 0
	if f.NeedsWrappedNativeATAInit {
		flag = 1
	}
	return fmt.Sprintf("%s#%d;%s", f.Base, flag, f.WrappedNativeATABalance.String())
}
