// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package supervisor implements component H: one supervisor per direction,
// each exposing start/handle_request/on_chain_event plus a periodic
// reconciliation tick (spec.md §4.H). It plays the role the teacher's
// rpc.Config/ProtocolBackend split plays for XMRTaker/XMRMaker — one
// direction-shaped backend wired to its own state machine — generalized
// from a two-role XMR/ETH swap to this module's six swap directions.
package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
	logging "github.com/ipfs/go-log/v2"

	"github.com/athanor-intermediary/swapd/coins"
	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/lnadapter"
)

var log = logging.Logger("supervisor")

// PriceSource supplies the current token price (spec.md §4.H step 3
// "price" prefetch).
type PriceSource interface {
	Price(ctx context.Context, token string) (*apd.Decimal, error)
}

// VaultBalance supplies the vault's available balance for a token (spec.md
// §4.H step 3 "balance" prefetch, step 5 balance check).
type VaultBalance interface {
	Available(ctx context.Context, token string) (*coins.TokenAmount, error)
}

// CreateInvoiceRequest is the parsed body of POST /createInvoice (spec.md
// §6).
type CreateInvoiceRequest struct {
	Address  string
	Amount   *apd.Decimal
	ExactOut bool
	ChainID  types.ChainID
	Token    string
}

// ResponseError is a structured admission-pipeline failure, rendered as the
// HTTP-200-with-code envelope spec.md §6 describes.
type ResponseError struct {
	Code int
	Msg  string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("supervisor: [%d] %s", e.Code, e.Msg)
}

func newResponseError(code int, msg string) error {
	return &ResponseError{Code: code, Msg: msg}
}

// ErrAdmissionAborted is returned when one prefetch's failure aborts the
// others (spec.md §4.H "shared AbortController").
var ErrAdmissionAborted = errors.New("supervisor: admission pipeline aborted")

// prefetchGroup runs a fixed set of named prefetches concurrently, sharing
// one cancellation signal: the first failure cancels every other in-flight
// prefetch and the group returns that first error (spec.md §4.H "Each
// prefetch shares a single AbortController: any failure aborts all peers").
// This mirrors the teacher's own use of a single `context.WithCancel` to
// tear down `readyWatcher`/`refundedWatcher` together in swap_state.go.
type prefetchGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	errCh  chan error
	n      int
}

func newPrefetchGroup(ctx context.Context, n int) *prefetchGroup {
	ctx, cancel := context.WithCancel(ctx)
	return &prefetchGroup{ctx: ctx, cancel: cancel, errCh: make(chan error, n), n: n}
}

// run launches fn in its own goroutine. fn must itself observe g.ctx.Done()
// at its own suspension points and return promptly on cancellation.
func (g *prefetchGroup) run(fn func(ctx context.Context) error) {
	go func() {
		err := fn(g.ctx)
		if err != nil {
			g.cancel()
		}
		g.errCh <- err
	}()
}

// wait blocks for all n prefetches to finish and returns the first error
// encountered, if any.
func (g *prefetchGroup) wait() error {
	var first error
	for i := 0; i < g.n; i++ {
		if err := <-g.errCh; err != nil && first == nil {
			first = err
		}
	}
	g.cancel()
	return first
}

// checkAmountBounds is admission step 2 (spec.md §4.H): pre-check amount
// bounds before launching any prefetch.
func checkAmountBounds(amount, min, max *apd.Decimal) error {
	ctx := apd.BaseContext.WithPrecision(40)
	var cmpMin, cmpMax apd.Decimal
	if _, err := ctx.Sub(&cmpMin, amount, min); err != nil {
		return newResponseError(common.CodeInvalidRequestBody, "invalid amount")
	}
	if cmpMin.Sign() < 0 {
		return newResponseError(common.CodeInvalidRequestBody, "amount below minimum")
	}
	if _, err := ctx.Sub(&cmpMax, amount, max); err != nil {
		return newResponseError(common.CodeInvalidRequestBody, "invalid amount")
	}
	if cmpMax.Sign() > 0 {
		return newResponseError(common.CodeInvalidRequestBody, "amount above maximum")
	}
	return nil
}

// hasInboundLiquidity is the LN inbound-liquidity admission check (spec.md
// §4.H step 5, scenario 4): at least one active channel whose remote
// balance covers amountMsat.
func hasInboundLiquidity(channels []lnadapter.Channel, amountMsat int64) bool {
	for _, c := range channels {
		if c.Active && c.RemoteBalanceMsat >= amountMsat {
			return true
		}
	}
	return false
}
