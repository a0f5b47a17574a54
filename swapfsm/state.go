// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package swapfsm implements the per-direction swap state machines
// (spec.md §4.G): FROM_BTC_LN_TRUSTED in full, plus FROM_BTC, TO_BTC_LN, and
// TO_BTC sharing the same pre-commit skeleton and per-record lease.
package swapfsm

import "github.com/athanor-intermediary/swapd/common/types"

// FromBTCLNTrustedState codes, kept stable for persisted records
// (spec.md §4.G).
const (
	FromBTCLNTrustedRefunded  int8 = -2
	FromBTCLNTrustedCanceled  int8 = -1
	FromBTCLNTrustedCreated   int8 = 0
	FromBTCLNTrustedReceived  int8 = 1
	FromBTCLNTrustedSent      int8 = 2
	FromBTCLNTrustedConfirmed int8 = 3
	FromBTCLNTrustedSettled   int8 = 4
)

// IsFailedFromBTCLNTrusted, IsInitiatedFromBTCLNTrusted and
// IsSuccessFromBTCLNTrusted classify a FROM_BTC_LN_TRUSTED record's state
// deterministically, as spec.md §4.G requires of every machine.
func IsFailedFromBTCLNTrusted(state int8) bool {
	return state == FromBTCLNTrustedRefunded || state == FromBTCLNTrustedCanceled
}

func IsInitiatedFromBTCLNTrusted(state int8) bool {
	return state >= FromBTCLNTrustedReceived && state < FromBTCLNTrustedSettled
}

func IsSuccessFromBTCLNTrusted(state int8) bool {
	return state == FromBTCLNTrustedSettled
}

// FromBTCState codes (spec.md §4.G "FROM_BTC (on-chain)").
const (
	FromBTCRefunded  int8 = -2
	FromBTCCanceled  int8 = -1
	FromBTCCreated   int8 = 0
	FromBTCReceived  int8 = 1
	FromBTCCommitted int8 = 2
	FromBTCClaimed   int8 = 3
)

func IsFailedFromBTC(state int8) bool {
	return state == FromBTCRefunded || state == FromBTCCanceled
}

func IsInitiatedFromBTC(state int8) bool {
	return state >= FromBTCReceived && state < FromBTCClaimed
}

func IsSuccessFromBTC(state int8) bool {
	return state == FromBTCClaimed
}

// ToBTCLNState codes (spec.md §4.G "TO_BTC_LN").
const (
	ToBTCLNRefunded  int8 = -2
	ToBTCLNCanceled  int8 = -1
	ToBTCLNCreated   int8 = 0
	ToBTCLNCommitted int8 = 1
	ToBTCLNPaying    int8 = 2
	ToBTCLNPaid      int8 = 3
	ToBTCLNClaimed   int8 = 4
)

func IsFailedToBTCLN(state int8) bool {
	return state == ToBTCLNRefunded || state == ToBTCLNCanceled
}

func IsInitiatedToBTCLN(state int8) bool {
	return state >= ToBTCLNCommitted && state < ToBTCLNClaimed
}

func IsSuccessToBTCLN(state int8) bool {
	return state == ToBTCLNClaimed
}

// ToBTCState codes (spec.md §4.G "TO_BTC").
const (
	ToBTCRefunded  int8 = -2
	ToBTCCanceled  int8 = -1
	ToBTCCreated   int8 = 0
	ToBTCCommitted int8 = 1
	ToBTCPaying    int8 = 2
	ToBTCPaid      int8 = 3
	ToBTCClaimed   int8 = 4
)

func IsFailedToBTC(state int8) bool {
	return state == ToBTCRefunded || state == ToBTCCanceled
}

func IsInitiatedToBTC(state int8) bool {
	return state >= ToBTCCommitted && state < ToBTCClaimed
}

func IsSuccessToBTC(state int8) bool {
	return state == ToBTCClaimed
}

// classifier groups the three deterministic predicates spec.md §4.G
// requires of every machine, so the supervisor can dispatch on a record's
// Direction without a type switch over concrete machine types.
type classifier struct {
	isFailed    func(int8) bool
	isInitiated func(int8) bool
	isSuccess   func(int8) bool
}

var classifiers = map[types.Direction]classifier{
	types.FromBTCLNTrusted: {IsFailedFromBTCLNTrusted, IsInitiatedFromBTCLNTrusted, IsSuccessFromBTCLNTrusted},
	types.FromBTCLN:        {IsFailedFromBTCLNTrusted, IsInitiatedFromBTCLNTrusted, IsSuccessFromBTCLNTrusted},
	types.FromBTC:          {IsFailedFromBTC, IsInitiatedFromBTC, IsSuccessFromBTC},
	types.ToBTCLNTrusted:   {IsFailedToBTCLN, IsInitiatedToBTCLN, IsSuccessToBTCLN},
	types.ToBTCLN:          {IsFailedToBTCLN, IsInitiatedToBTCLN, IsSuccessToBTCLN},
	types.ToBTC:            {IsFailedToBTC, IsInitiatedToBTC, IsSuccessToBTC},
}

// Classify returns whether r is failed, initiated, or succeeded, per the
// classifier registered for its Direction.
func Classify(r *types.SwapRecord) (failed, initiated, success bool) {
	c, ok := classifiers[r.Direction]
	if !ok {
		return false, false, false
	}
	return c.isFailed(r.State), c.isInitiated(r.State), c.isSuccess(r.State)
}
