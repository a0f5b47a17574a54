// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
	"github.com/athanor-intermediary/swapd/supervisor"
)

// Supervisor is the subset of supervisor.FromBTCLNTrustedSupervisor the
// HTTP layer calls; spec.md §6's createInvoice/getInvoiceStatus pair is
// specified against this direction.
type Supervisor interface {
	HandleRequest(ctx context.Context, req supervisor.CreateInvoiceRequest) (*supervisor.CreateInvoiceResponse, error)
	GetInvoiceStatus(paymentHash types.Hash) (*supervisor.InvoiceStatusResponse, error)
}

type handler struct {
	supervisors map[types.ChainID]Supervisor
}

// envelope is spec.md §6's `{msg, code, data}` response shape.
type envelope struct {
	Msg  string      `json:"msg"`
	Code int         `json:"code"`
	Data interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	msg := "Success"
	if code != common.CodeSuccess {
		msg = "Error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // spec.md §6: errors use HTTP 200 with a code field.
	_ = json.NewEncoder(w).Encode(envelope{Msg: msg, Code: code, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	var respErr *supervisor.ResponseError
	if errors.As(err, &respErr) {
		writeJSON(w, respErr.Code, nil)
		return
	}
	log.Warnf("rpc: unexpected error: %s", err)
	writeJSON(w, common.CodeExpiredOrCanceled, nil)
}

func (h *handler) supervisorFor(r *http.Request) (Supervisor, types.ChainID, error) {
	chainParam := r.URL.Query().Get("chain")
	if chainParam == "" {
		if len(h.supervisors) == 1 {
			for id, sv := range h.supervisors {
				return sv, id, nil
			}
		}
		return nil, 0, errors.New("rpc: chain query parameter required")
	}
	raw, err := strconv.ParseUint(chainParam, 10, 64)
	if err != nil {
		return nil, 0, errors.New("rpc: invalid chain query parameter")
	}
	id := types.ChainID(raw)
	sv, ok := h.supervisors[id]
	if !ok {
		return nil, 0, errors.New("rpc: unknown chain")
	}
	return sv, id, nil
}

type createInvoiceBody struct {
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	ExactOut bool   `json:"exactOut"`
	Token    string `json:"token"`
}

// createInvoice implements POST /createInvoice (spec.md §6).
func (h *handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	sv, chainID, err := h.supervisorFor(r)
	if err != nil {
		writeJSON(w, common.CodeInvalidRequestBody, nil)
		return
	}

	var body createInvoiceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, common.CodeInvalidRequestBody, nil)
		return
	}
	amount, _, err := apd.NewFromString(body.Amount)
	if err != nil {
		writeJSON(w, common.CodeInvalidRequestBody, nil)
		return
	}

	resp, err := sv.HandleRequest(r.Context(), supervisor.CreateInvoiceRequest{
		Address:  body.Address,
		Amount:   amount,
		ExactOut: body.ExactOut,
		ChainID:  chainID,
		Token:    body.Token,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, common.CodeSuccess, map[string]interface{}{
		"pr":              resp.PaymentRequest,
		"swapFee":         resp.SwapFee.String(),
		"total":           resp.Total.String(),
		"intermediaryKey": resp.IntermediaryKey,
	})
}

// getInvoiceStatus implements GET/POST /getInvoiceStatus (spec.md §6).
func (h *handler) getInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	sv, _, err := h.supervisorFor(r)
	if err != nil {
		writeJSON(w, common.CodeInvalidRequestBody, nil)
		return
	}

	paymentHashHex := r.URL.Query().Get("paymentHash")
	if paymentHashHex == "" && r.Method == http.MethodPost {
		var body struct {
			PaymentHash string `json:"paymentHash"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			paymentHashHex = body.PaymentHash
		}
	}
	paymentHash, err := types.HashFromHex(paymentHashHex)
	if err != nil {
		writeJSON(w, common.CodeInvalidRequestBody, nil)
		return
	}

	status, err := sv.GetInvoiceStatus(paymentHash)
	if err != nil {
		writeError(w, err)
		return
	}

	var data map[string]interface{}
	if status.TxID != "" {
		data = map[string]interface{}{"txId": status.TxID}
	}
	writeJSON(w, status.Code, data)
}
