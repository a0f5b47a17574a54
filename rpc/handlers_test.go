// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/supervisor"
)

type fakeSupervisor struct {
	createResp *supervisor.CreateInvoiceResponse
	createErr  error
	status     *supervisor.InvoiceStatusResponse
	statusErr  error
}

func (f *fakeSupervisor) HandleRequest(context.Context, supervisor.CreateInvoiceRequest) (*supervisor.CreateInvoiceResponse, error) {
	return f.createResp, f.createErr
}

func (f *fakeSupervisor) GetInvoiceStatus(types.Hash) (*supervisor.InvoiceStatusResponse, error) {
	return f.status, f.statusErr
}

func Test_createInvoice_success(t *testing.T) {
	fee, _, _ := apd.NewFromString("0.01")
	total, _, _ := apd.NewFromString("1.01")
	h := &handler{supervisors: map[types.ChainID]Supervisor{
		1: &fakeSupervisor{createResp: &supervisor.CreateInvoiceResponse{
			PaymentRequest:  "lnbc1...",
			SwapFee:         fee,
			Total:           total,
			IntermediaryKey: "So1anaPubkey",
		}},
	}}

	req := httptest.NewRequest(http.MethodPost, "/createInvoice?chain=1", strings.NewReader(
		`{"address":"So1anaDestAddr","amount":"1"}`))
	w := httptest.NewRecorder()
	h.createInvoice(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":10000`)
	require.Contains(t, w.Body.String(), `"pr":"lnbc1..."`)
}

func Test_createInvoice_admissionError(t *testing.T) {
	h := &handler{supervisors: map[types.ChainID]Supervisor{
		1: &fakeSupervisor{createErr: &supervisor.ResponseError{
			Code: common.CodeNotEnoughLNLiquidity,
			Msg:  "Not enough LN inbound liquidity",
		}},
	}}

	req := httptest.NewRequest(http.MethodPost, "/createInvoice?chain=1", strings.NewReader(
		`{"address":"So1anaDestAddr","amount":"1"}`))
	w := httptest.NewRecorder()
	h.createInvoice(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":20050`)
}

func Test_createInvoice_chainRequired(t *testing.T) {
	h := &handler{supervisors: map[types.ChainID]Supervisor{
		1: &fakeSupervisor{},
		2: &fakeSupervisor{},
	}}

	req := httptest.NewRequest(http.MethodPost, "/createInvoice", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.createInvoice(w, req)

	require.Contains(t, w.Body.String(), `"code":20100`)
}

func Test_getInvoiceStatus_terminalSuccess(t *testing.T) {
	h := &handler{supervisors: map[types.ChainID]Supervisor{
		1: &fakeSupervisor{status: &supervisor.InvoiceStatusResponse{
			Code: common.CodeSuccess,
			TxID: "abc123",
		}},
	}}

	req := httptest.NewRequest(http.MethodGet,
		"/getInvoiceStatus?chain=1&paymentHash="+strings.Repeat("ab", 32), nil)
	w := httptest.NewRecorder()
	h.getInvoiceStatus(w, req)

	require.Contains(t, w.Body.String(), `"code":10000`)
	require.Contains(t, w.Body.String(), `"txId":"abc123"`)
}

func Test_getInvoiceStatus_badPaymentHash(t *testing.T) {
	h := &handler{supervisors: map[types.ChainID]Supervisor{
		1: &fakeSupervisor{},
	}}

	req := httptest.NewRequest(http.MethodGet, "/getInvoiceStatus?chain=1&paymentHash=nothex", nil)
	w := httptest.NewRecorder()
	h.getInvoiceStatus(w, req)

	require.Contains(t, w.Body.String(), `"code":20100`)
}
