// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package rpc provides the HTTP server for incoming createInvoice/
// getInvoiceStatus requests and the websocket status stream (spec.md §6).
// It plays the role the teacher's gorilla/mux + gorilla/handlers router
// played for its JSON-RPC namespaces, retargeted from JSON-RPC 2.0
// dispatch to spec.md's plain REST surface since this module has no
// counterparty-initiated RPC calls to multiplex.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"github.com/athanor-intermediary/swapd/common/types"
)

var log = logging.Logger("rpc")

// Server serves spec.md §6's HTTP and websocket surface.
type Server struct {
	ctx        context.Context
	listener   net.Listener
	httpServer *http.Server
	hub        *wsHub
}

// Config bundles a Server's dependencies. One Supervisor is registered
// per chain ID it serves; the `chain` query parameter selects between
// them (spec.md §6).
type Config struct {
	Ctx         context.Context
	Address     string // "IP:port"
	Supervisors map[types.ChainID]Supervisor
}

// NewServer builds and binds the listener but does not yet accept
// connections; call Start to begin serving.
func NewServer(cfg *Config) (*Server, error) {
	serverCtx, serverCancel := context.WithCancel(cfg.Ctx)

	hub := newWSHub(serverCtx, cfg.Supervisors)

	r := mux.NewRouter()
	h := &handler{supervisors: cfg.Supervisors}
	r.HandleFunc("/createInvoice", h.createInvoice).Methods(http.MethodPost)
	r.HandleFunc("/getInvoiceStatus", h.getInvoiceStatus).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/ws", hub.serveWS)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(serverCtx, "tcp", cfg.Address)
	if err != nil {
		serverCancel()
		return nil, err
	}

	headersOk := handlers.AllowedHeaders([]string{"content-type"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "OPTIONS"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	httpServer := &http.Server{
		Addr:              ln.Addr().String(),
		ReadHeaderTimeout: time.Second,
		Handler:           handlers.CORS(headersOk, methodsOk, originsOk)(r),
		BaseContext: func(net.Listener) context.Context {
			return serverCtx
		},
	}

	return &Server{
		ctx:        serverCtx,
		listener:   ln,
		httpServer: httpServer,
		hub:        hub,
	}, nil
}

// HttpURL returns the URL used for HTTP requests. //nolint:revive
func (s *Server) HttpURL() string {
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}

// WsURL returns the URL used for websocket requests.
func (s *Server) WsURL() string {
	return fmt.Sprintf("ws://%s/ws", s.httpServer.Addr)
}

// Start serves the HTTP and websocket surface until the server's context
// is cancelled or Stop is called.
func (s *Server) Start() error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	log.Infof("starting HTTP server on %s", s.HttpURL())
	log.Infof("starting websocket server on %s", s.WsURL())

	serverErr := make(chan error, 1)
	go func() {
		// Serve never returns nil. It returns http.ErrServerClosed if it was
		// terminated by Shutdown.
		serverErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-s.ctx.Done():
		// Shutdown below is passed a closed context, which means it will shut
		// down immediately without servicing already-connected clients.
		err := s.httpServer.Shutdown(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("http server shutdown errored: %s", err)
		}
		return s.ctx.Err()
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("RPC server failed: %s", err)
		} else {
			log.Info("RPC server shut down")
		}
		return err
	}
}

// Stop shuts the HTTP and websocket server down. If the server's context
// is not cancelled, a graceful shutdown happens where existing
// connections are serviced until disconnected; if the context is
// cancelled, the shutdown is immediate.
func (s *Server) Stop() error {
	return s.httpServer.Shutdown(s.ctx)
}
