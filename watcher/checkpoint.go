// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package watcher tails the escrow program's instruction log, emitting an
// ordered sequence of Initialize/Claim/Refund events (spec.md §4.D).
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Checkpoint is the last transaction this node has fully processed.
type Checkpoint struct {
	Signature string
	Slot      uint64
}

const checkpointFileName = "blockheight.txt"

func checkpointPath(dataDir string) string {
	return filepath.Join(dataDir, checkpointFileName)
}

// LoadCheckpoint reads <dataDir>/blockheight.txt ("{signature};{slot}"). A
// missing file is not an error: it returns the zero Checkpoint, meaning
// "tail from the beginning."
func LoadCheckpoint(dataDir string) (Checkpoint, error) {
	data, err := os.ReadFile(checkpointPath(dataDir))
	if os.IsNotExist(err) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("watcher: failed to read checkpoint: %w", err)
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ";", 2)
	if len(parts) != 2 {
		return Checkpoint{}, fmt.Errorf("watcher: malformed checkpoint file")
	}
	slot, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("watcher: malformed checkpoint slot: %w", err)
	}
	return Checkpoint{Signature: parts[0], Slot: slot}, nil
}

// SaveCheckpoint atomically replaces the checkpoint file: write to a temp
// file in the same directory, then rename, so a crash mid-write never
// leaves a torn checkpoint behind.
func SaveCheckpoint(dataDir string, cp Checkpoint) error {
	tmp, err := os.CreateTemp(dataDir, checkpointFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("watcher: failed to create checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	line := fmt.Sprintf("%s;%d", cp.Signature, cp.Slot)
	if _, err := tmp.WriteString(line); err != nil {
		tmp.Close()
		return fmt.Errorf("watcher: failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("watcher: failed to close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), checkpointPath(dataDir)); err != nil {
		return fmt.Errorf("watcher: failed to install checkpoint: %w", err)
	}
	return nil
}
