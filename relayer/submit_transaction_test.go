// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package relayer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/athanor-intermediary/swapd/btcproof"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
)

var testProgramID = solana.MustPublicKeyFromBase58("Eon8VvGNyEf8Vw3NnqPsGYdUXbwmtkTVSkk3GqYnzS8E")

func testTerms(t *testing.T) *types.EscrowTerms {
	t.Helper()
	offerer := solana.NewWallet().PublicKey()
	claimer := solana.NewWallet().PublicKey()
	token := solana.NewWallet().PublicKey()
	var paymentHash types.Hash
	paymentHash[0] = 1

	return &types.EscrowTerms{
		Offerer:     offerer.String(),
		Claimer:     claimer.String(),
		Token:       token.String(),
		Amount:      big.NewInt(1_000_000),
		PaymentHash: paymentHash,
		Kind:        types.KindChainTxID,
		PayOut:      true,
	}
}

// fakeSubmitter is a hand-rolled Submitter double: one call simulates cleanly,
// every later call (modeling a since-claimed escrow) fails simulation.
type fakeSubmitter struct {
	simulateCalls int
	failAfter     int
}

func (f *fakeSubmitter) SimulateTransaction(ctx context.Context, tx *solana.Transaction) error {
	f.simulateCalls++
	if f.failAfter > 0 && f.simulateCalls > f.failAfter {
		return errors.New("simulation: account already closed")
	}
	return nil
}

func (f *fakeSubmitter) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	sig[0] = byte(f.simulateCalls)
	return sig, nil
}

func Test_ValidateAndSendTransaction(t *testing.T) {
	adapter := escrow.NewAdapter(testProgramID)
	terms := testTerms(t)
	claimer := solana.NewWallet().PrivateKey
	terms.Claimer = claimer.PublicKey().String() // the claim's required signer pays the fee

	req, err := CreateRelayClaimRequest(adapter, terms, [32]byte{}, nil, claimer.PublicKey(), "1000", solana.Hash{})
	require.NoError(t, err)
	require.NotNil(t, req.Transaction)

	submitter := &fakeSubmitter{failAfter: 1}

	resp, err := ValidateAndSendTransaction(context.Background(), req, claimer, submitter)
	require.NoError(t, err)
	require.NotNil(t, resp)

	// A second claim attempt against the same (now-closed) escrow fails on
	// simulation and is never broadcast.
	req2, err := CreateRelayClaimRequest(adapter, terms, [32]byte{}, nil, claimer.PublicKey(), "1000", solana.Hash{})
	require.NoError(t, err)

	_, err = ValidateAndSendTransaction(context.Background(), req2, claimer, submitter)
	require.ErrorIs(t, err, ErrSimulationFailed)
}

func Test_CreateRelayClaimRequest_includesSyncInstructions(t *testing.T) {
	adapter := escrow.NewAdapter(testProgramID)
	terms := testTerms(t)
	claimer := solana.NewWallet().PrivateKey

	syncIx := solana.NewInstruction(testProgramID, solana.AccountMetaSlice{}, []byte{9})
	proof := &btcproof.Batch{SyncInstrs: []solana.Instruction{syncIx}}

	req, err := CreateRelayClaimRequest(adapter, terms, [32]byte{}, proof, claimer.PublicKey(), "1000", solana.Hash{})
	require.NoError(t, err)

	// compute-unit-limit + compute-unit-price + sync + claim
	require.Len(t, req.Transaction.Message.Instructions, 4)
}
