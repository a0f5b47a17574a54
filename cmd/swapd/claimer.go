// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/store"
	"github.com/athanor-intermediary/swapd/swapfsm"
	"github.com/athanor-intermediary/swapd/txsender"
)

// claimPollInterval is independent of supervisor.Group's reconciliation
// tick: a PAID record becomes claimable as soon as its payout confirms,
// which the tick alone would notice too late for a responsive claim.
const claimPollInterval = 15 * time.Second

// toBTCLNClaimer submits the escrow Claim action for every TO_BTC_LN record
// that has reached PAID, revealing the Lightning preimage on-chain. Nothing
// else in this process calls txsender.Sender.Claim for this direction: the
// intermediary acts as its own relayer (txsender/sender.go), so there is no
// front-end round trip to wait on.
type toBTCLNClaimer struct {
	store  store.Store
	sender txsender.Sender
}

func (c *toBTCLNClaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(claimPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *toBTCLNClaimer) sweep(ctx context.Context) {
	records, err := c.store.Query(
		store.Eq(store.FieldDirection, store.DirectionValue(types.ToBTCLN)),
		store.Eq(store.FieldState, store.Uint64Value(uint64(swapfsm.ToBTCLNPaid))),
	)
	if err != nil {
		log.Warnf("swapd: claim sweep query failed: %s", err)
		return
	}
	for _, record := range records {
		secretBytes, err := hex.DecodeString(record.Artifacts.SecretHex)
		if err != nil || len(secretBytes) != 32 {
			log.Warnf("swapd: record %s has no usable preimage, skipping claim", record.Key())
			continue
		}
		var secret [32]byte
		copy(secret[:], secretBytes)

		txID, err := c.sender.Claim(ctx, &record.Terms, secret)
		if err != nil {
			log.Warnf("swapd: claim submission failed for %s: %s", record.Key(), err)
			continue
		}
		record.Artifacts.ClaimTxID = txID
		if err := c.store.Save(record); err != nil {
			log.Warnf("swapd: failed to persist claim tx id for %s: %s", record.Key(), err)
		}
	}
}
