// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package store implements the persistent swap store (spec.md §4.A):
// a crash-safe keyed store of SwapRecords with a full-scan query facility.
// It wraps github.com/ChainSafe/chaindb the same way the teacher's
// protocol/swap.manager wraps a chaindb.Database, generalized from the
// teacher's *swap.Info domain type to this module's *types.SwapRecord and
// the typed predicate tree from predicate.go.
package store

import (
	"errors"
	"fmt"

	"github.com/ChainSafe/chaindb"
	logging "github.com/ipfs/go-log/v2"

	"github.com/athanor-intermediary/swapd/common/types"
)

var log = logging.Logger("store")

// Store is the contract spec.md §4.A describes.
type Store interface {
	Save(record *types.SwapRecord) error
	Load(paymentHash types.Hash, sequence uint64) (*types.SwapRecord, error)
	Query(predicates ...Predicate) ([]*types.SwapRecord, error)
	Remove(paymentHash types.Hash, sequence uint64) error
	LoadAll() ([]*types.SwapRecord, error)
	Close() error
}

type store struct {
	db chaindb.Database
}

var _ Store = (*store)(nil)

// New opens (creating if needed) the backing chaindb directory at dataDir.
// This is the store's init() step from spec.md §4.A.
func New(dataDir string) (Store, error) {
	db, err := chaindb.NewBadgerDB(&chaindb.Config{
		DataDir: dataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to open backing db: %w", err)
	}
	return &store{db: db}, nil
}

// NewInMemory opens an ephemeral store, for tests.
func NewInMemory() (Store, error) {
	db, err := chaindb.NewBadgerDB(&chaindb.Config{InMemory: true})
	if err != nil {
		return nil, fmt.Errorf("store: failed to open in-memory db: %w", err)
	}
	return &store{db: db}, nil
}

// Save performs an atomic write-or-replace of record. A failure here is
// treated by callers as a fatal startup/admission error (spec.md §4.A).
func (s *store) Save(record *types.SwapRecord) error {
	data, err := Serialize(record)
	if err != nil {
		return fmt.Errorf("store: serialize failed: %w", err)
	}
	key := []byte(types.RecordKey(record.PaymentHash, record.Sequence))
	if err := s.db.Put(key, data); err != nil {
		return fmt.Errorf("store: put failed: %w", err)
	}
	return nil
}

// Load fetches the exact record for (paymentHash, sequence).
func (s *store) Load(paymentHash types.Hash, sequence uint64) (*types.SwapRecord, error) {
	key := []byte(types.RecordKey(paymentHash, sequence))
	data, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, chaindb.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get failed: %w", err)
	}
	return Deserialize(data)
}

// Query performs a full scan, returning every record matching the
// conjunction of the given predicates (spec.md §4.A: "Query is a full scan;
// no secondary indexes are required").
func (s *store) Query(predicates ...Predicate) ([]*types.SwapRecord, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	matched := make([]*types.SwapRecord, 0, len(all))
	for _, r := range all {
		if matchAll(r, predicates) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Remove deletes the record for (paymentHash, sequence). A failure is
// logged, not returned as fatal: per spec.md §4.A "failure to remove is
// logged and the record is considered live", so callers of Remove must not
// assume the record is gone purely because Remove returned nil — they
// should re-Load/re-Query to check.
func (s *store) Remove(paymentHash types.Hash, sequence uint64) error {
	key := []byte(types.RecordKey(paymentHash, sequence))
	if err := s.db.Del(key); err != nil {
		log.Warnf("failed to remove swap %s_%d: %s", paymentHash, sequence, err)
	}
	return nil
}

// LoadAll rehydrates every persisted record, for startup recovery.
func (s *store) LoadAll() ([]*types.SwapRecord, error) {
	iter := s.db.NewIterator()
	defer iter.Release()

	var records []*types.SwapRecord
	for iter.First(); iter.Valid(); iter.Next() {
		record, err := Deserialize(iter.Value())
		if err != nil {
			log.Warnf("skipping unreadable record %s: %s", iter.Key(), err)
			continue
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: iteration failed: %w", err)
	}
	return records, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

// ErrNotFound is returned by Load when no record exists for the given key.
var ErrNotFound = errors.New("store: no record with given payment hash and sequence")
