// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swapfsm

import (
	"fmt"
	"sync"
	"time"

	"github.com/athanor-intermediary/swapd/common"
)

// leaseTable grants a 30-second exclusive lease per record key, used by the
// RECEIVED→SENT transition to guard against a duplicate commit being
// submitted for the same swap (spec.md §4.G "Concurrency key").
type leaseTable struct {
	mu      sync.Mutex
	holders map[string]time.Time // key -> expiry
}

func newLeaseTable() *leaseTable {
	return &leaseTable{holders: make(map[string]time.Time)}
}

// Acquire grants the lease for key if it is free or its prior holder's
// lease has expired. Returns false if another caller currently holds it.
func (t *leaseTable) Acquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if expiry, ok := t.holders[key]; ok && time.Now().Before(expiry) {
		return false
	}
	t.holders[key] = time.Now().Add(common.RecordLeaseTimeout)
	return true
}

// Release drops the lease for key, regardless of whether it has expired.
func (t *leaseTable) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.holders, key)
}

// Held reports whether key's lease is currently live.
func (t *leaseTable) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.holders[key]
	return ok && time.Now().Before(expiry)
}

// errLeaseHeld is returned by transitions that require the exclusive lease
// but find it already held by another in-flight transition.
var errLeaseHeld = fmt.Errorf("swapfsm: record lease already held")
