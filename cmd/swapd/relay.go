// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/athanor-intermediary/swapd/btcproof"
)

// unsyncedRelay is a placeholder btcproof.RelayReader: no example in the
// pack implements a BTC-relay light client, so this always reports that no
// header is stored. TO_BTC claims built against it surface
// btcproof.ErrRelayNotSynced until a real light-client synchronizer exists;
// it is wired in ahead of that so ToBTCSupervisor's claim-proof path
// type-checks against a concrete dependency rather than a nil interface.
type unsyncedRelay struct{}

// StoredHeader implements btcproof.RelayReader.
func (unsyncedRelay) StoredHeader(ctx context.Context, blockHash chainhash.Hash, minHeight uint64) (*btcproof.CommittedHeader, error) {
	return nil, nil
}
