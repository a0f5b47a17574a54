// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Command swapctl is a thin HTTP client over swapd's spec.md §6 surface:
// createInvoice and getInvoiceStatus, one flag-based subcommand each, the
// same hand-rolled-flags style the now-retired swap-offer CLI used instead
// of a CLI framework.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultServer = "http://127.0.0.1:5000"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "swapctl: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: swapctl <createInvoice|getInvoiceStatus> [flags]")
	}
	switch args[0] {
	case "createInvoice":
		return runCreateInvoice(args[1:])
	case "getInvoiceStatus":
		return runGetInvoiceStatus(args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runCreateInvoice(args []string) error {
	fs := flag.NewFlagSet("createInvoice", flag.ExitOnError)
	server := fs.String("server", defaultServer, "swapd HTTP address")
	chain := fs.String("chain", "", "chain ID (omit if swapd serves a single chain)")
	address := fs.String("address", "", "payout address or BOLT-11 invoice, direction-dependent")
	amount := fs.String("amount", "", "swap amount, decimal string")
	exactOut := fs.Bool("exact-out", false, "treat amount as the exact payout amount instead of the input amount")
	token := fs.String("token", "", "token symbol/identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *amount == "" || *token == "" {
		return fmt.Errorf("-amount and -token are required")
	}

	body, err := json.Marshal(createInvoiceRequest{
		Address:  *address,
		Amount:   *amount,
		ExactOut: *exactOut,
		Token:    *token,
	})
	if err != nil {
		return err
	}

	var resp envelope
	if err := post(*server, "/createInvoice", *chain, body, &resp); err != nil {
		return err
	}
	return printEnvelope(resp)
}

func runGetInvoiceStatus(args []string) error {
	fs := flag.NewFlagSet("getInvoiceStatus", flag.ExitOnError)
	server := fs.String("server", defaultServer, "swapd HTTP address")
	chain := fs.String("chain", "", "chain ID (omit if swapd serves a single chain)")
	paymentHash := fs.String("payment-hash", "", "hex-encoded payment hash returned by createInvoice")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *paymentHash == "" {
		return fmt.Errorf("-payment-hash is required")
	}

	url := fmt.Sprintf("%s/getInvoiceStatus?paymentHash=%s", *server, *paymentHash)
	if *chain != "" {
		url += "&chain=" + *chain
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := do(req)
	if err != nil {
		return err
	}
	return printEnvelope(resp)
}

// createInvoiceRequest mirrors rpc.createInvoiceBody's wire shape.
type createInvoiceRequest struct {
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	ExactOut bool   `json:"exactOut"`
	Token    string `json:"token"`
}

// envelope mirrors spec.md §6's `{msg, code, data}` response shape.
type envelope struct {
	Msg  string          `json:"msg"`
	Code int             `json:"code"`
	Data json.RawMessage `json:"data,omitempty"`
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func post(server, path, chain string, body []byte, out *envelope) error {
	url := server + path
	if chain != "" {
		url += "?chain=" + chain
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := do(req)
	if err != nil {
		return err
	}
	*out = resp
	return nil
}

func do(req *http.Request) (envelope, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to read response: %w", err)
	}
	var out envelope
	if err := json.Unmarshal(raw, &out); err != nil {
		return envelope{}, fmt.Errorf("failed to parse response %q: %w", raw, err)
	}
	return out, nil
}

func printEnvelope(e envelope) error {
	out, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if e.Code != 10000 { // common.CodeSuccess; swapctl has no import of swapd's internal packages.
		return fmt.Errorf("request failed with code %d", e.Code)
	}
	return nil
}
