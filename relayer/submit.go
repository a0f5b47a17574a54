// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package relayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrSimulationFailed is returned when the relayed transaction fails the
// submitter's dry-run simulation and is never broadcast — the cheap way to
// catch an escrow that was already claimed or refunded out from under this
// request.
var ErrSimulationFailed = errors.New("relayer: relayed transaction failed on simulation")

// SubmitResponse is the result of a successfully submitted relay transaction.
type SubmitResponse struct {
	TxHash solana.Signature
}

// Submitter is the chain RPC surface the relayer needs: a dry-run
// simulation and the actual broadcast. Production wiring backs this with an
// RPC client; tests fake it directly.
type Submitter interface {
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) error
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// ValidateAndSendTransaction signs req's transaction with signer and any
// extra signers the request carries, simulates it, and only broadcasts it
// once the simulation succeeds.
func ValidateAndSendTransaction(
	ctx context.Context,
	req *RelayClaimRequest,
	signer solana.PrivateKey,
	submitter Submitter,
) (*SubmitResponse, error) {
	signers := append([]solana.PrivateKey{signer}, req.ExtraSigners...)
	_, err := req.Transaction.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(pk) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("relayer: failed to sign claim transaction: %w", err)
	}

	if err := submitter.SimulateTransaction(ctx, req.Transaction); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSimulationFailed, err)
	}

	sig, err := submitter.SendTransaction(ctx, req.Transaction)
	if err != nil {
		return nil, fmt.Errorf("relayer: failed to submit claim transaction: %w", err)
	}
	return &SubmitResponse{TxHash: sig}, nil
}
