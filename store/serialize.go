// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/athanor-intermediary/swapd/common/types"
)

// wireTerms is the on-disk shape of types.EscrowTerms: every integer field
// stringified base-10, every byte string hex, per spec.md §6 "Persisted
// state layout".
type wireTerms struct {
	Offerer               string `json:"offerer"`
	Claimer               string `json:"claimer"`
	Token                 string `json:"token"`
	Amount                string `json:"amount"`
	PaymentHash           string `json:"paymentHash"`
	Sequence              string `json:"sequence"`
	Expiry                string `json:"expiry"`
	ConfirmationsRequired uint16 `json:"confirmationsRequired"`
	EscrowNonce           string `json:"escrowNonce"`
	PayIn                 bool   `json:"payIn"`
	PayOut                bool   `json:"payOut"`
	Kind                  string `json:"kind"`
	SecurityDeposit       string `json:"securityDeposit"`
	ClaimerBounty         string `json:"claimerBounty"`
	TxoHash               string `json:"txoHash,omitempty"`
}

// wireRecord is the full on-disk document for one SwapRecord, one JSON
// document per swap stored under the record's key (spec.md §6).
type wireRecord struct {
	Type        string      `json:"type"` // chain-family discriminator, e.g. "sol"
	PaymentHash string      `json:"paymentHash"`
	Sequence    string      `json:"sequence"`
	Direction   string      `json:"direction"`
	ChainID     string      `json:"chainId"`
	State       int8        `json:"state"`
	Terms       wireTerms   `json:"terms"`
	Artifacts   wireArtifacts `json:"artifacts"`
	Meta        types.Metadata `json:"meta"`
}

type wireArtifacts struct {
	Invoice              string `json:"invoice,omitempty"`
	InitTxID             string `json:"initTxId,omitempty"`
	CommitTxID           string `json:"commitTxId,omitempty"`
	ClaimTxID            string `json:"claimTxId,omitempty"`
	RefundTxID           string `json:"refundTxId,omitempty"`
	RawSignedTx          string `json:"rawSignedTx,omitempty"`
	SecretHex            string `json:"secretHex,omitempty"`
	CounterpartyDestAddr string `json:"counterpartyDestAddr,omitempty"`
	DepositAddress       string `json:"depositAddress,omitempty"`
}

// chainFamily is the single discriminator value this module's one concrete
// escrow adapter (Solana) writes and accepts.
const chainFamily = "sol"

// Serialize renders a SwapRecord into its canonical on-disk JSON form.
func Serialize(r *types.SwapRecord) ([]byte, error) {
	wt := wireTerms{
		Offerer:               r.Terms.Offerer,
		Claimer:               r.Terms.Claimer,
		Token:                 r.Terms.Token,
		Amount:                bigIntOrZero(r.Terms.Amount),
		PaymentHash:           r.Terms.PaymentHash.String(),
		Sequence:              fmt.Sprintf("%d", r.Terms.Sequence),
		Expiry:                fmt.Sprintf("%d", r.Terms.Expiry),
		ConfirmationsRequired: r.Terms.ConfirmationsRequired,
		EscrowNonce:           fmt.Sprintf("%d", r.Terms.EscrowNonce),
		PayIn:                 r.Terms.PayIn,
		PayOut:                r.Terms.PayOut,
		Kind:                  r.Terms.Kind.String(),
		SecurityDeposit:       bigIntOrZero(r.Terms.SecurityDeposit),
		ClaimerBounty:         bigIntOrZero(r.Terms.ClaimerBounty),
	}
	if r.Terms.TxoHash != nil {
		wt.TxoHash = r.Terms.TxoHash.String()
	}

	wr := wireRecord{
		Type:        chainFamily,
		PaymentHash: r.PaymentHash.String(),
		Sequence:    fmt.Sprintf("%d", r.Sequence),
		Direction:   string(r.Direction),
		ChainID:     fmt.Sprintf("%d", r.ChainID),
		State:       r.State,
		Terms:       wt,
		Artifacts: wireArtifacts{
			Invoice:              r.Artifacts.Invoice,
			InitTxID:             r.Artifacts.InitTxID,
			CommitTxID:           r.Artifacts.CommitTxID,
			ClaimTxID:            r.Artifacts.ClaimTxID,
			RefundTxID:           r.Artifacts.RefundTxID,
			RawSignedTx:          hex.EncodeToString(r.Artifacts.RawSignedTx),
			SecretHex:            r.Artifacts.SecretHex,
			CounterpartyDestAddr: r.Artifacts.CounterpartyDestAddr,
			DepositAddress:       r.Artifacts.DepositAddress,
		},
		Meta: r.Meta,
	}

	return json.Marshal(wr)
}

// Deserialize parses the canonical on-disk JSON form back into a SwapRecord.
// The `type` discriminator is checked against the single family this build
// supports; an unrecognized discriminator is a hard error rather than a
// silent best-effort decode, per spec.md's "steering the deserialization
// constructor" language.
func Deserialize(data []byte) (*types.SwapRecord, error) {
	var wr wireRecord
	if err := json.Unmarshal(data, &wr); err != nil {
		return nil, err
	}
	if wr.Type != chainFamily {
		return nil, fmt.Errorf("store: unsupported record type %q", wr.Type)
	}

	paymentHash, err := types.HashFromHex(wr.PaymentHash)
	if err != nil {
		return nil, fmt.Errorf("store: bad paymentHash: %w", err)
	}
	sequence, err := parseUint64(wr.Sequence)
	if err != nil {
		return nil, fmt.Errorf("store: bad sequence: %w", err)
	}
	chainID, err := parseUint64(wr.ChainID)
	if err != nil {
		return nil, fmt.Errorf("store: bad chainId: %w", err)
	}

	terms, err := deserializeTerms(&wr.Terms)
	if err != nil {
		return nil, err
	}

	rawSignedTx, err := hex.DecodeString(wr.Artifacts.RawSignedTx)
	if err != nil {
		return nil, fmt.Errorf("store: bad rawSignedTx: %w", err)
	}

	return &types.SwapRecord{
		PaymentHash: paymentHash,
		Sequence:    sequence,
		Direction:   types.Direction(wr.Direction),
		ChainID:     types.ChainID(chainID),
		State:       wr.State,
		Terms:       *terms,
		Artifacts: types.Artifacts{
			Invoice:              wr.Artifacts.Invoice,
			InitTxID:             wr.Artifacts.InitTxID,
			CommitTxID:           wr.Artifacts.CommitTxID,
			ClaimTxID:            wr.Artifacts.ClaimTxID,
			RefundTxID:           wr.Artifacts.RefundTxID,
			RawSignedTx:          rawSignedTx,
			SecretHex:            wr.Artifacts.SecretHex,
			CounterpartyDestAddr: wr.Artifacts.CounterpartyDestAddr,
			DepositAddress:       wr.Artifacts.DepositAddress,
		},
		Meta: wr.Meta,
	}, nil
}

func deserializeTerms(wt *wireTerms) (*types.EscrowTerms, error) {
	paymentHash, err := types.HashFromHex(wt.PaymentHash)
	if err != nil {
		return nil, fmt.Errorf("store: bad terms.paymentHash: %w", err)
	}
	sequence, err := parseUint64(wt.Sequence)
	if err != nil {
		return nil, err
	}
	expiry, err := parseUint64(wt.Expiry)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint64(wt.EscrowNonce)
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(wt.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("store: bad terms.amount %q", wt.Amount)
	}
	securityDeposit, ok := new(big.Int).SetString(wt.SecurityDeposit, 10)
	if !ok {
		return nil, fmt.Errorf("store: bad terms.securityDeposit %q", wt.SecurityDeposit)
	}
	claimerBounty, ok := new(big.Int).SetString(wt.ClaimerBounty, 10)
	if !ok {
		return nil, fmt.Errorf("store: bad terms.claimerBounty %q", wt.ClaimerBounty)
	}

	kind, err := parseEscrowKind(wt.Kind)
	if err != nil {
		return nil, err
	}

	terms := &types.EscrowTerms{
		Offerer:               wt.Offerer,
		Claimer:               wt.Claimer,
		Token:                 wt.Token,
		Amount:                amount,
		PaymentHash:           paymentHash,
		Sequence:              sequence,
		Expiry:                expiry,
		ConfirmationsRequired: wt.ConfirmationsRequired,
		EscrowNonce:           nonce,
		PayIn:                 wt.PayIn,
		PayOut:                wt.PayOut,
		Kind:                  kind,
		SecurityDeposit:       securityDeposit,
		ClaimerBounty:         claimerBounty,
	}
	if wt.TxoHash != "" {
		txoHash, err := types.HashFromHex(wt.TxoHash)
		if err != nil {
			return nil, fmt.Errorf("store: bad terms.txoHash: %w", err)
		}
		terms.TxoHash = &txoHash
	}
	return terms, nil
}

func parseEscrowKind(s string) (types.EscrowKind, error) {
	switch s {
	case "htlc":
		return types.KindHTLC, nil
	case "chain":
		return types.KindChain, nil
	case "chainNonced":
		return types.KindChainNonced, nil
	case "chainTxid":
		return types.KindChainTxID, nil
	default:
		return 0, fmt.Errorf("store: unknown escrow kind %q", s)
	}
}

func bigIntOrZero(i *big.Int) string {
	if i == nil {
		return "0"
	}
	return i.String()
}

func parseUint64(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
