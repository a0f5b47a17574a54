// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	logging "github.com/ipfs/go-log/v2"

	"github.com/athanor-intermediary/swapd/common/types"
)

var log = logging.Logger("swapd")

// btcClient wraps a Bitcoin Core-compatible JSON-RPC connection, grounded
// on the walletcontroller.RpcWalletController shape from the pack: one
// *rpcclient.Client, opened once at startup, used both to pay out TO_BTC
// swaps and to watch for FROM_BTC deposits.
type btcClient struct {
	rpc    *rpcclient.Client
	params *chaincfg.Params
}

// dialBitcoin opens a JSON-RPC connection to a bitcoind/btcd node with an
// already-loaded (or watch-only) wallet.
func dialBitcoin(host, user, pass string, params *chaincfg.Params) (*btcClient, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("swapd: failed to connect to bitcoin node: %w", err)
	}
	return &btcClient{rpc: client, params: params}, nil
}

// Pay implements swapfsm.BTCPayer, the TO_BTC direction's payout leg.
func (c *btcClient) Pay(ctx context.Context, dstAddress string, amountSats int64) (string, error) {
	addr, err := btcutil.DecodeAddress(dstAddress, c.params)
	if err != nil {
		return "", fmt.Errorf("swapd: invalid destination address %q: %w", dstAddress, err)
	}
	txHash, err := c.rpc.SendToAddress(addr, btcutil.Amount(amountSats))
	if err != nil {
		return "", fmt.Errorf("swapd: sendtoaddress failed: %w", err)
	}
	return txHash.String(), nil
}

// Confirmations implements swapfsm.BTCPayer.
func (c *btcClient) Confirmations(ctx context.Context, txid string) (int, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return 0, fmt.Errorf("swapd: invalid txid %q: %w", txid, err)
	}
	tx, err := c.rpc.GetTransaction(hash)
	if err != nil {
		return 0, fmt.Errorf("swapd: gettransaction failed for %s: %w", txid, err)
	}
	return int(tx.Confirmations), nil
}

// depositRecord is what the FROM_BTC dispatcher needs once a tracked
// address's funding transaction reaches confirmationsRequired.
type depositRecord struct {
	recordKey             string
	paymentHash           types.Hash
	sequence              uint64
	confirmationsRequired uint16
	notifiedConfirmed     bool
}

// depositWatcher derives one fresh watch-only address per FROM_BTC swap
// from an extended public key, imports it into the node's wallet, and
// polls listsinceblock for payments to any of them. There is no
// spec-level FROM_BTC deposit-address concept to ground this on directly
// (the escrow terms only carry a txo hash once confirmed), so this fills
// the gap the same way an exchange hot wallet does: one derived address
// per deposit, matched back to its swap by address.
type depositWatcher struct {
	rpc    rpcClientForWatcher
	params *chaincfg.Params
	xpub   *hdkeychain.ExtendedKey

	onConfirmed func(ctx context.Context, paymentHash types.Hash, sequence uint64, txoHash [32]byte)

	mu       sync.Mutex
	nextIdx  uint32
	tracked  map[string]*depositRecord // address -> record
	lastHash *chainhash.Hash
}

// rpcClientForWatcher is the subset of *rpcclient.Client the deposit
// watcher calls, split out so tests can fake it without a live node.
type rpcClientForWatcher interface {
	ImportAddress(address string) error
	ListSinceBlockMinConf(blockHash *chainhash.Hash, minConfirms int) (*btcjson.ListSinceBlockResult, error)
	GetBlockVerboseTx(blockHash *chainhash.Hash) (*btcjson.GetBlockVerboseTxResult, error)
}

// newDepositWatcher derives addresses from an account-level extended
// public key (never a private key: the daemon never needs to spend these
// deposits itself, only to observe them).
func newDepositWatcher(
	client rpcClientForWatcher,
	params *chaincfg.Params,
	xpubStr string,
	onConfirmed func(ctx context.Context, paymentHash types.Hash, sequence uint64, txoHash [32]byte),
) (*depositWatcher, error) {
	xpub, err := hdkeychain.NewKeyFromString(xpubStr)
	if err != nil {
		return nil, fmt.Errorf("swapd: invalid deposit xpub: %w", err)
	}
	return &depositWatcher{
		rpc:         client,
		params:      params,
		xpub:        xpub,
		onConfirmed: onConfirmed,
		tracked:     make(map[string]*depositRecord),
	}, nil
}

// NewDepositAddress implements supervisor.DepositAddressSource: it derives
// the next unused child address, imports it watch-only, and remembers it
// keyed by the swap's store key.
func (w *depositWatcher) NewDepositAddress(ctx context.Context, key string) (string, error) {
	w.mu.Lock()
	idx := w.nextIdx
	w.nextIdx++
	w.mu.Unlock()

	child, err := w.xpub.Derive(idx)
	if err != nil {
		return "", fmt.Errorf("swapd: failed to derive deposit address %d: %w", idx, err)
	}
	addr, err := child.Address(w.params)
	if err != nil {
		return "", fmt.Errorf("swapd: failed to compute deposit address %d: %w", idx, err)
	}
	if err := w.rpc.ImportAddress(addr.EncodeAddress()); err != nil {
		return "", fmt.Errorf("swapd: failed to import deposit address: %w", err)
	}

	w.mu.Lock()
	w.tracked[addr.EncodeAddress()] = &depositRecord{recordKey: key}
	w.mu.Unlock()
	return addr.EncodeAddress(), nil
}

// Track registers the (paymentHash, sequence, confirmationsRequired) a
// previously-issued deposit address belongs to, once its swap record
// exists (NewDepositAddress alone only has the store key string).
func (w *depositWatcher) Track(address string, paymentHash types.Hash, sequence uint64, confirmationsRequired uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.tracked[address]; ok {
		rec.paymentHash = paymentHash
		rec.sequence = sequence
		rec.confirmationsRequired = confirmationsRequired
	}
}

// Run polls listsinceblock every interval, invoking onConfirmed exactly
// once per tracked deposit the first time it reaches
// confirmationsRequired confirmations.
func (w *depositWatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil {
				log.Warnf("swapd: deposit poll failed: %s", err)
			}
		}
	}
}

func (w *depositWatcher) pollOnce(ctx context.Context) error {
	w.mu.Lock()
	since := w.lastHash
	w.mu.Unlock()

	result, err := w.rpc.ListSinceBlockMinConf(since, 0)
	if err != nil {
		return fmt.Errorf("listsinceblock: %w", err)
	}

	for _, t := range result.Transactions {
		w.mu.Lock()
		rec, ok := w.tracked[t.Address]
		w.mu.Unlock()
		if !ok || rec.notifiedConfirmed || t.Confirmations < int64(rec.confirmationsRequired) {
			continue
		}

		blockHash, err := chainhash.NewHashFromStr(t.BlockHash)
		if err != nil {
			log.Warnf("swapd: bad block hash for deposit %s: %s", t.TxID, err)
			continue
		}
		block, err := w.rpc.GetBlockVerboseTx(blockHash)
		if err != nil {
			log.Warnf("swapd: failed to fetch block for deposit %s: %s", t.TxID, err)
			continue
		}
		txoHash, err := deriveTxoHash(block, t.TxID)
		if err != nil {
			log.Warnf("swapd: failed to build txo hash for deposit %s: %s", t.TxID, err)
			continue
		}

		rec.notifiedConfirmed = true
		w.onConfirmed(ctx, rec.paymentHash, rec.sequence, txoHash)
	}

	if newHash, err := chainhash.NewHashFromStr(result.LastBlock); err == nil {
		w.mu.Lock()
		w.lastHash = newHash
		w.mu.Unlock()
	}
	return nil
}

// deriveTxoHash confirms txid is present in block and returns its hash in
// the [32]byte form the FromBTC machine keys records by. The block's full
// ordered tx list and this tx's index within it (needed by
// btcproof.BuildMerkleProof to actually prove inclusion) are re-fetched
// from the same block at commit time, once the machine is ready to build
// the claim transaction.
func deriveTxoHash(block *btcjson.GetBlockVerboseTxResult, txid string) ([32]byte, error) {
	for _, tx := range block.Tx {
		if tx.Txid == txid {
			hash, err := chainhash.NewHashFromStr(txid)
			if err != nil {
				return [32]byte{}, err
			}
			return [32]byte(*hash), nil
		}
	}
	return [32]byte{}, fmt.Errorf("swapd: txid %s not found in block %s", txid, block.Hash)
}
