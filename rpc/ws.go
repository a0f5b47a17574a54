// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/athanor-intermediary/swapd/common"
	"github.com/athanor-intermediary/swapd/common/types"
)

// statusPollInterval is how often a subscribed connection re-checks an
// invoice's status while it remains non-terminal.
const statusPollInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	// Same permissive CORS posture as the teacher's gorilla/handlers setup:
	// the front-end may be served from a different origin than swapd.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeRequest is the single message a client sends on connecting.
type subscribeRequest struct {
	PaymentHash string `json:"paymentHash"`
	Chain       uint64 `json:"chain"`
}

// wsHub upgrades /ws connections and polls a subscribed invoice's status
// on the connecting supervisor, pushing the current status every
// statusPollInterval (changed or not) until the swap reaches a terminal
// code. It exists to give clients a push-style
// alternative to polling GET /getInvoiceStatus themselves.
type wsHub struct {
	ctx         context.Context
	supervisors map[types.ChainID]Supervisor
}

func newWSHub(ctx context.Context, supervisors map[types.ChainID]Supervisor) *wsHub {
	return &wsHub{ctx: ctx, supervisors: supervisors}
}

func (h *wsHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("rpc: websocket upgrade failed: %s", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	var req subscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	paymentHash, err := types.HashFromHex(req.PaymentHash)
	if err != nil {
		_ = conn.WriteJSON(envelope{Msg: "Error", Code: common.CodeInvalidRequestBody})
		return
	}
	sv, ok := h.supervisors[types.ChainID(req.Chain)]
	if !ok {
		_ = conn.WriteJSON(envelope{Msg: "Error", Code: common.CodeInvalidRequestBody})
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	go h.drainClient(conn, cancel) // detect client disconnect/close frames

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		status, err := sv.GetInvoiceStatus(paymentHash)
		if err != nil {
			return
		}
		var data map[string]interface{}
		if status.TxID != "" {
			data = map[string]interface{}{"txId": status.TxID}
		}
		msg := "Success"
		if status.Code != common.CodeSuccess {
			msg = "Error"
		}
		if err := conn.WriteJSON(envelope{Msg: msg, Code: status.Code, Data: data}); err != nil {
			return
		}
		if isTerminalCode(status.Code) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drainClient reads (and discards) incoming frames so gorilla/websocket's
// ping/pong and close-frame handling keeps working, cancelling ctx once
// the client disconnects.
func (h *wsHub) drainClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func isTerminalCode(code int) bool {
	switch code {
	case common.CodeSuccess, common.CodeExpiredOrCanceled:
		return true
	default:
		return false
	}
}
