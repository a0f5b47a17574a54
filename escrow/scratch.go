// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package escrow

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mr-tron/base58"
	"github.com/gagliardetto/solana-go"
)

var log = logging.Logger("escrow")

// firstChunkSize and laterChunkSize bound the tx-data scratch protocol's
// per-instruction payload (spec.md §4.B "Tx-data scratch protocol"): the
// first chunk rides along with the account-create + init-data instruction,
// so it is kept smaller than the plain write-data chunks that follow.
const (
	firstChunkSize = 420
	laterChunkSize = 950
	initDataComputeUnits = 15_000
	writeDataComputeUnits = 20_000
)

// EncodeTxDataPayload builds the scratch-account payload for an on-chain
// inclusion-proof claim: encode_u32_le(vout) || tx_hex (spec.md §4.B).
func EncodeTxDataPayload(vout uint32, txHex string) []byte {
	payload := make([]byte, 4+len(txHex))
	binary.LittleEndian.PutUint32(payload[:4], vout)
	copy(payload[4:], txHex)
	return payload
}

// chunkPayload splits payload into the first-chunk/later-chunks sizes the
// protocol mandates.
func chunkPayload(payload []byte) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	var chunks [][]byte
	first := firstChunkSize
	if first > len(payload) {
		first = len(payload)
	}
	chunks = append(chunks, payload[:first])
	rest := payload[first:]
	for len(rest) > 0 {
		n := laterChunkSize
		if n > len(rest) {
			n = len(rest)
		}
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}
	return chunks
}

// BuildTxDataWrite composes the full sequence of Actions needed to stage a
// proof payload into a scratch PDA: one init-data Action carrying the first
// chunk, followed by one write-data Action per remaining chunk.
func (a *Adapter) BuildTxDataWrite(
	signer solana.PublicKey,
	reversedTxID [32]byte,
	payload []byte,
) ([]Action, solana.PublicKey, error) {
	dataAcct, _, err := a.addrs.SwapTxData(reversedTxID, signer)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("escrow: failed to derive tx-data PDA: %w", err)
	}

	chunks := chunkPayload(payload)
	if len(chunks) == 0 {
		return nil, solana.PublicKey{}, fmt.Errorf("escrow: empty tx-data payload")
	}

	var actions []Action
	for i, chunk := range chunks {
		var tag instructionTag
		var cu uint32
		if i == 0 {
			tag = tagInitData
			cu = initDataComputeUnits
		} else {
			tag = tagWriteData
			cu = writeDataComputeUnits
		}
		start := uint32(0)
		if i > 0 {
			start = uint32(firstChunkSize + (i-1)*laterChunkSize)
		}
		data, err := encodeInstruction(tag, writeDataArgs{Start: start, Data: chunk})
		if err != nil {
			return nil, solana.PublicKey{}, err
		}
		accounts := solana.AccountMetaSlice{
			solana.NewAccountMeta(signer, true, true),
			solana.NewAccountMeta(dataAcct, true, false),
			solana.NewAccountMeta(systemProgramID, false, false),
		}
		actions = append(actions, Action{
			Instructions: []solana.Instruction{newInstruction(a.addrs.ProgramID, accounts, data)},
			ComputeUnits: cu,
		})
	}
	return actions, dataAcct, nil
}

// ScratchRecord is one entry in the durable side-table of created scratch
// accounts, kept so they can be swept (closed, rent reclaimed) on next
// start even if the process crashed mid-claim (spec.md §4.B).
type ScratchRecord struct {
	Address      string `json:"address"`
	Signer       string `json:"signer"`
	ReversedTxID string `json:"reversed_txid"`
	Closed       bool   `json:"closed"`
}

// ScratchLedger is a small append-and-rewrite JSON file tracking every
// scratch account passed to Record, read back by Sweeper.Run. It is a
// plain file of its own, kept apart from the store package's chaindb
// database.
type ScratchLedger struct {
	mu   sync.Mutex
	path string
}

// NewScratchLedger opens (creating if absent) the scratch side-table at
// <dataDir>/scratch_accounts.json.
func NewScratchLedger(dataDir string) (*ScratchLedger, error) {
	path := filepath.Join(dataDir, "scratch_accounts.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0o600); err != nil {
			return nil, fmt.Errorf("escrow: failed to create scratch ledger: %w", err)
		}
	}
	return &ScratchLedger{path: path}, nil
}

func (l *ScratchLedger) load() ([]ScratchRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var records []ScratchRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (l *ScratchLedger) save(records []ScratchRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0o600)
}

// Record appends a newly-created scratch account to the ledger.
func (l *ScratchLedger) Record(addr, signer solana.PublicKey, reversedTxID [32]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return fmt.Errorf("escrow: failed to load scratch ledger: %w", err)
	}
	records = append(records, ScratchRecord{
		Address:      base58.Encode(addr.Bytes()),
		Signer:       base58.Encode(signer.Bytes()),
		ReversedTxID: base58.Encode(reversedTxID[:]),
	})
	return l.save(records)
}

// Open returns every scratch account not yet marked closed.
func (l *ScratchLedger) Open() ([]ScratchRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to load scratch ledger: %w", err)
	}
	var open []ScratchRecord
	for _, r := range records {
		if !r.Closed {
			open = append(open, r)
		}
	}
	return open, nil
}

// MarkClosed flags a scratch account as swept so subsequent sweeps skip it.
func (l *ScratchLedger) MarkClosed(addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return fmt.Errorf("escrow: failed to load scratch ledger: %w", err)
	}
	for i := range records {
		if records[i].Address == addr {
			records[i].Closed = true
		}
	}
	return l.save(records)
}

// Sweeper closes every open scratch account recorded in the ledger when
// Run is called. The swapd daemon does not construct one, so no sweep runs
// at startup.
type Sweeper struct {
	adapter *Adapter
	ledger  *ScratchLedger
	sender  func(action *Action, signerAddr string) error
}

// NewSweeper binds a Sweeper to the adapter/ledger pair and the closure used
// to submit a CloseDataAccount action.
func NewSweeper(adapter *Adapter, ledger *ScratchLedger, sender func(action *Action, signerAddr string) error) *Sweeper {
	return &Sweeper{adapter: adapter, ledger: ledger, sender: sender}
}

// Run closes every open scratch account in the ledger, logging and
// continuing past individual failures rather than aborting the whole sweep.
func (s *Sweeper) Run() error {
	open, err := s.ledger.Open()
	if err != nil {
		return err
	}
	for _, r := range open {
		var reversedTxID [32]byte
		raw, err := base58.Decode(r.ReversedTxID)
		if err != nil || len(raw) != 32 {
			log.Warnf("sweeper: skipping malformed scratch record for %s", r.Address)
			continue
		}
		copy(reversedTxID[:], raw)

		action, err := s.adapter.BuildCloseDataAccount(r.Signer, reversedTxID)
		if err != nil {
			log.Warnf("sweeper: failed to build close instruction for %s: %s", r.Address, err)
			continue
		}
		if err := s.sender(action, r.Signer); err != nil {
			log.Warnf("sweeper: failed to submit close for %s: %s", r.Address, err)
			continue
		}
		if err := s.ledger.MarkClosed(r.Address); err != nil {
			log.Warnf("sweeper: failed to mark %s closed: %s", r.Address, err)
		}
	}
	return nil
}
