// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package txsender

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
)

var errNoSuchAccount = errors.New("simulation: no such account")

var testProgramID = solana.MustPublicKeyFromBase58("Eon8VvGNyEf8Vw3NnqPsGYdUXbwmtkTVSkk3GqYnzS8E")

type fakeChainClient struct {
	blockhash  solana.Hash
	status     types.ChainTxStatus
	sendErr    error
	simulateErr error
	sent       []*solana.Transaction
}

func (f *fakeChainClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return f.blockhash, nil
}

func (f *fakeChainClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction) error {
	return f.simulateErr
}

func (f *fakeChainClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	var sig solana.Signature
	sig[0] = byte(len(f.sent))
	return sig, nil
}

func (f *fakeChainClient) TransactionStatus(ctx context.Context, sig solana.Signature) (types.ChainTxStatus, error) {
	return f.status, nil
}

func testTerms() *types.EscrowTerms {
	var paymentHash types.Hash
	paymentHash[0] = 7
	return &types.EscrowTerms{
		Offerer:     solana.NewWallet().PublicKey().String(),
		Claimer:     solana.NewWallet().PublicKey().String(),
		Token:       solana.NewWallet().PublicKey().String(),
		Amount:      big.NewInt(5_000_000),
		PaymentHash: paymentHash,
		Kind:        types.KindChainTxID,
		PayOut:      true,
	}
}

func Test_InProcessSender_Commit(t *testing.T) {
	adapter := escrow.NewAdapter(testProgramID)
	key := solana.NewWallet().PrivateKey
	chain := &fakeChainClient{status: types.TxStatusSuccess}
	sender := NewInProcessSender(adapter, key, chain, "1000")

	// The sender's own key commits as the escrow's offerer, a required signer.
	terms := testTerms()
	terms.Offerer = key.PublicKey().String()

	txID, rawTx, err := sender.Commit(context.Background(), terms, [32]byte{})
	require.NoError(t, err)
	require.NotEmpty(t, txID)
	require.NotEmpty(t, rawTx)
	require.Len(t, chain.sent, 1)

	status, err := sender.PollStatus(context.Background(), txID)
	require.NoError(t, err)
	require.Equal(t, types.TxStatusSuccess, status)
}

func Test_InProcessSender_Send(t *testing.T) {
	adapter := escrow.NewAdapter(testProgramID)
	key := solana.NewWallet().PrivateKey
	chain := &fakeChainClient{status: types.TxStatusSuccess}
	sender := NewInProcessSender(adapter, key, chain, "1000")

	dst := solana.NewWallet().PublicKey().String()
	token := solana.NewWallet().PublicKey().String()

	txID, _, err := sender.Send(context.Background(), token, dst, 42)
	require.NoError(t, err)
	require.NotEmpty(t, txID)
}

func Test_InProcessSender_Claim_simulationFailure(t *testing.T) {
	adapter := escrow.NewAdapter(testProgramID)
	key := solana.NewWallet().PrivateKey
	chain := &fakeChainClient{simulateErr: errNoSuchAccount}
	sender := NewInProcessSender(adapter, key, chain, "1000")

	// The sender's key is the terms' claimer, so signing succeeds and the
	// error comes from simulation.
	terms := testTerms()
	terms.Claimer = key.PublicKey().String()

	_, err := sender.Claim(context.Background(), terms, [32]byte{})
	require.Error(t, err)
	require.Empty(t, chain.sent)
}
