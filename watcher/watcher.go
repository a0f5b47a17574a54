// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	logging "github.com/ipfs/go-log/v2"

	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/escrow"
)

var log = logging.Logger("watcher")

// eventChanSize is arbitrary; large enough that a slow consumer doesn't
// make the poll loop or ws listener block mid-batch.
const eventChanSize = 64

// Watcher tails one escrow program's instruction log through two parallel
// ingestion sources — a checkpointed poll loop and, optionally, a websocket
// listener — deduplicating events the two sources both observe (spec.md
// §4.D).
type Watcher struct {
	programID solana.PublicKey
	adapter   *escrow.Adapter
	dataDir   string
	poll      PollSource
	sub       LogSubscriber

	events chan types.ChainEvent

	mu       sync.Mutex
	inFlight map[string]struct{} // signatures currently being fetched/decoded
	emitted  map[string]struct{} // signatures already emitted, bounded below
	order    []string            // insertion order for emitted, to bound its size
}

const emittedCacheLimit = 4096

// New returns a Watcher for programID. sub may be nil to disable the
// websocket listener and rely solely on the poll loop.
func New(programID solana.PublicKey, adapter *escrow.Adapter, dataDir string, poll PollSource, sub LogSubscriber) *Watcher {
	return &Watcher{
		programID: programID,
		adapter:   adapter,
		dataDir:   dataDir,
		poll:      poll,
		sub:       sub,
		events:    make(chan types.ChainEvent, eventChanSize),
		inFlight:  make(map[string]struct{}),
		emitted:   make(map[string]struct{}),
	}
}

// Start launches the poll loop (and the websocket listener, if configured)
// and returns the event channel. The channel is closed when ctx is done.
func (w *Watcher) Start(ctx context.Context) <-chan types.ChainEvent {
	go w.pollLoop(ctx)
	if w.sub != nil {
		go w.wsLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		close(w.events)
	}()
	return w.events
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(common.ChainPollInterval)
	defer ticker.Stop()

	w.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	cp, err := LoadCheckpoint(w.dataDir)
	if err != nil {
		log.Warnf("watcher: failed to load checkpoint: %s", err)
		return
	}

	sigs, err := w.poll.SignaturesSince(ctx, w.programID, cp.Signature)
	if err != nil {
		log.Warnf("watcher: failed to fetch signatures: %s", err)
		return
	}
	if len(sigs) == 0 {
		return
	}

	// The chain returns signatures newest-first; the watcher always
	// processes and emits oldest-first.
	oldestFirst := make([]SignatureInfo, len(sigs))
	for i, s := range sigs {
		oldestFirst[len(sigs)-1-i] = s
	}

	newest := sigs[0]
	if cp.Signature != "" && newest.Slot < cp.Slot {
		log.Warnf("watcher: newest signature slot %d is behind checkpoint slot %d, discarding batch (node desync)",
			newest.Slot, cp.Slot)
		return
	}

	var lastGood *SignatureInfo
	for i := range oldestFirst {
		sig := oldestFirst[i]
		tx, err := w.poll.GetTransaction(ctx, sig.Signature)
		if err != nil {
			log.Warnf("watcher: failed to fetch transaction %s, aborting batch: %s", sig.Signature, err)
			break
		}
		w.decodeAndEmit(sig.Signature, tx)
		lastGood = &oldestFirst[i]
	}

	if lastGood != nil {
		if err := SaveCheckpoint(w.dataDir, Checkpoint{Signature: lastGood.Signature, Slot: lastGood.Slot}); err != nil {
			log.Warnf("watcher: failed to persist checkpoint: %s", err)
		}
	}
}

func (w *Watcher) wsLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		sub, err := w.sub.Subscribe(ctx, w.programID)
		if err != nil {
			log.Warnf("watcher: websocket subscribe failed, retrying: %s", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(common.ChainPollInterval):
			}
			continue
		}
		w.drainSubscription(ctx, sub)
	}
}

func (w *Watcher) drainSubscription(ctx context.Context, sub LogSubscription) {
	defer sub.Close()
	for {
		sig, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("watcher: websocket listener error, reconnecting: %s", err)
			}
			return
		}
		if !w.claimInFlight(sig.Signature) {
			continue
		}
		tx, err := w.poll.GetTransaction(ctx, sig.Signature)
		w.releaseInFlight(sig.Signature)
		if err != nil {
			log.Warnf("watcher: websocket listener failed to fetch transaction %s: %s", sig.Signature, err)
			continue
		}
		w.decodeAndEmit(sig.Signature, tx)
	}
}

// claimInFlight reports whether this signature was not already seen or
// being processed, and if so marks it in-flight. Deduplicates concurrent
// observation by the poll loop and the websocket listener.
func (w *Watcher) claimInFlight(signature string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.emitted[signature]; ok {
		return false
	}
	if _, ok := w.inFlight[signature]; ok {
		return false
	}
	w.inFlight[signature] = struct{}{}
	return true
}

func (w *Watcher) releaseInFlight(signature string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, signature)
}

func (w *Watcher) markEmitted(signature string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.emitted[signature]; ok {
		return false
	}
	w.emitted[signature] = struct{}{}
	w.order = append(w.order, signature)
	if len(w.order) > emittedCacheLimit {
		drop := w.order[0]
		w.order = w.order[1:]
		delete(w.emitted, drop)
	}
	return true
}

func (w *Watcher) decodeAndEmit(signature string, tx *FetchedTransaction) {
	if !w.markEmitted(signature) {
		return
	}
	for _, ix := range tx.Instructions {
		ev, ok, err := w.adapter.DecodeInstructionEvent(ix, signature, tx.Slot)
		if err != nil {
			log.Warnf("watcher: failed to decode instruction in %s: %s", signature, err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case w.events <- *ev:
		default:
			log.Warnf("watcher: event channel full, dropping event from %s", signature)
		}
	}
}
