// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const programIDFileName = "escrow_program_id.txt"

// resolveEscrowProgramID mirrors the teacher's getOrDeploySwapCreator
// resolve-or-persist shape (cmd/swapd/contract_test.go), adapted to
// Solana's deployment model: unlike a go-ethereum contract, an Anchor
// program isn't deployed by the daemon process itself (that's `anchor
// deploy`/`solana program deploy`, run out of band by the operator) — so
// this resolves an already-deployed program's ID instead of deploying one,
// but keeps the same "configured address wins, else fall back to the
// last one this data directory used, and the two must agree" contract.
func resolveEscrowProgramID(dataDir string, configured string) (solana.PublicKey, error) {
	path := filepath.Join(dataDir, programIDFileName)

	persisted, err := readPersistedProgramID(path)
	if err != nil {
		return solana.PublicKey{}, err
	}

	configured = strings.TrimSpace(configured)
	switch {
	case configured == "" && persisted == "":
		return solana.PublicKey{}, fmt.Errorf(
			"swapd: no escrow_program_id configured and none persisted at %s; " +
				"deploy the escrow program and set escrow_program_id", path)
	case configured == "":
		return solana.PublicKeyFromBase58(persisted)
	case persisted == "":
		id, err := solana.PublicKeyFromBase58(configured)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("swapd: invalid escrow_program_id: %w", err)
		}
		if err := os.WriteFile(path, []byte(configured), 0o600); err != nil {
			return solana.PublicKey{}, fmt.Errorf("swapd: failed to persist escrow_program_id: %w", err)
		}
		return id, nil
	case configured != persisted:
		return solana.PublicKey{}, fmt.Errorf(
			"swapd: configured escrow_program_id %s does not match %s already persisted at %s",
			configured, persisted, path)
	default:
		return solana.PublicKeyFromBase58(configured)
	}
}

func readPersistedProgramID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("swapd: failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
