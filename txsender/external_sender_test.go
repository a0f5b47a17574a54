// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package txsender

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/escrow"
)

func Test_ExternalSender_Commit_roundTrip(t *testing.T) {
	adapter := escrow.NewAdapter(testProgramID)
	feePayer := solana.NewWallet()
	chain := &fakeChainClient{status: 0}
	sender := NewExternalSender(common.Development, adapter, feePayer.PublicKey(), chain, "1000")

	origTimeout := transactionTimeout
	transactionTimeout = 200 * time.Millisecond
	defer func() { transactionTimeout = origTimeout }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := <-sender.OngoingCh()
		require.NotNil(t, req.Transaction)
		signers := append([]solana.PrivateKey{feePayer.PrivateKey}, req.ExtraSigners...)
		_, err := req.Transaction.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
			for i := range signers {
				if signers[i].PublicKey().Equals(pk) {
					return &signers[i]
				}
			}
			return nil
		})
		require.NoError(t, err)
		sig, err := chain.SendTransaction(context.Background(), req.Transaction)
		require.NoError(t, err)
		sender.IncomingCh() <- sig.String()
	}()

	// The front-end's fee payer commits as the escrow's offerer, a required signer.
	terms := testTerms()
	terms.Offerer = feePayer.PublicKey().String()

	txID, rawTx, err := sender.Commit(context.Background(), terms, [32]byte{})
	require.NoError(t, err)
	require.NotEmpty(t, txID)
	require.NotEmpty(t, rawTx)
	<-done
}

func Test_ExternalSender_Commit_timesOutWithoutResponse(t *testing.T) {
	adapter := escrow.NewAdapter(testProgramID)
	feePayer := solana.NewWallet()
	chain := &fakeChainClient{}
	sender := NewExternalSender(common.Development, adapter, feePayer.PublicKey(), chain, "1000")

	origTimeout := transactionTimeout
	transactionTimeout = 20 * time.Millisecond
	defer func() { transactionTimeout = origTimeout }()

	go func() { <-sender.OngoingCh() }()

	_, _, err := sender.Commit(context.Background(), testTerms(), [32]byte{})
	require.ErrorIs(t, err, errTransactionTimeout)
}
