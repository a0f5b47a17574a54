// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package escrow

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/athanor-intermediary/swapd/common/types"
)

// well-known program IDs the adapter never needs to look up at runtime.
var (
	systemProgramID       = solana.SystemProgramID
	tokenProgramID        = solana.TokenProgramID
	associatedTokenProgID = solana.SPLAssociatedTokenAccountProgramID
)

// defaultComputeUnits is the budget handed to ordinary instructions; claim
// and refund do slightly more account validation so get a larger share.
const (
	defaultComputeUnits = 60_000
	claimComputeUnits   = 90_000
	refundComputeUnits  = 80_000
)

// Adapter builds Actions against one escrow program deployment. It holds no
// mutable state of its own — every builder is a pure function of its
// arguments and the program's deterministic addresses.
type Adapter struct {
	addrs *Addresses
}

// NewAdapter returns an Adapter bound to the given program ID.
func NewAdapter(programID solana.PublicKey) *Adapter {
	return &Adapter{addrs: NewAddresses(programID)}
}

// ProgramID returns the bound escrow program's address.
func (a *Adapter) ProgramID() solana.PublicKey {
	return a.addrs.ProgramID
}

func parsePublicKey(field, s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("escrow: bad %s address %q: %w", field, s, err)
	}
	return pk, nil
}

func associatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgramID.Bytes(), mint.Bytes()},
		associatedTokenProgID,
	)
	return addr, err
}

// termAddresses resolves every account an Init/Claim/Refund instruction
// needs from an EscrowTerms' textual fields.
type termAddresses struct {
	offerer      solana.PublicKey
	claimer      solana.PublicKey
	token        solana.PublicKey
	escrowState  solana.PublicKey
	vault        solana.PublicKey
	vaultAuth    solana.PublicKey
	offererATA   solana.PublicKey
	claimerATA   solana.PublicKey
}

func (a *Adapter) resolve(t *types.EscrowTerms) (*termAddresses, error) {
	offerer, err := parsePublicKey("offerer", t.Offerer)
	if err != nil {
		return nil, err
	}
	claimer, err := parsePublicKey("claimer", t.Claimer)
	if err != nil {
		return nil, err
	}
	token, err := parsePublicKey("token", t.Token)
	if err != nil {
		return nil, err
	}
	escrowState, _, err := a.addrs.SwapEscrowState(t.PaymentHash)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive escrow state PDA: %w", err)
	}
	vault, _, err := a.addrs.SwapVault(token)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive vault PDA: %w", err)
	}
	vaultAuth, _, err := a.addrs.SwapVaultAuthority()
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive vault authority PDA: %w", err)
	}
	offererATA, err := associatedTokenAddress(offerer, token)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive offerer ATA: %w", err)
	}
	claimerATA, err := associatedTokenAddress(claimer, token)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive claimer ATA: %w", err)
	}
	return &termAddresses{
		offerer:     offerer,
		claimer:     claimer,
		token:       token,
		escrowState: escrowState,
		vault:       vault,
		vaultAuth:   vaultAuth,
		offererATA:  offererATA,
		claimerATA:  claimerATA,
	}, nil
}

// BuildInit builds the offererInitialize or offererInitializePayIn
// instruction depending on t.PayIn (spec.md §4.B "Init"). txoHash is the
// observed on-chain proof-of-payment hash for chain-based kinds, and is the
// zero hash for HTLC kind. authExpiry is the init-auth signature's
// timeout in unix seconds (zero when there is no such signature).
func (a *Adapter) BuildInit(
	t *types.EscrowTerms,
	txoHash [32]byte,
	authExpiry uint64,
) (*Action, error) {
	addrs, err := a.resolve(t)
	if err != nil {
		return nil, err
	}
	sd := FromEscrowTerms(t)

	var tag instructionTag
	var data []byte
	if t.PayIn {
		tag = tagOffererInitializePayIn
		data, err = encodeInstruction(tag, initPayInArgs{SwapData: sd, TxoHash: txoHash, AuthExpiry: authExpiry})
	} else {
		securityDeposit := uint64(0)
		if t.SecurityDeposit != nil {
			securityDeposit = t.SecurityDeposit.Uint64()
		}
		claimerBounty := uint64(0)
		if t.ClaimerBounty != nil {
			claimerBounty = t.ClaimerBounty.Uint64()
		}
		tag = tagOffererInitialize
		data, err = encodeInstruction(tag, initArgs{
			SwapData:        sd,
			SecurityDeposit: securityDeposit,
			ClaimerBounty:   claimerBounty,
			TxoHash:         txoHash,
			AuthExpiry:      authExpiry,
		})
	}
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(addrs.offerer, true, true),
		solana.NewAccountMeta(addrs.claimer, false, false),
		solana.NewAccountMeta(addrs.escrowState, true, false),
		solana.NewAccountMeta(addrs.vault, true, false),
		solana.NewAccountMeta(addrs.vaultAuth, false, false),
		solana.NewAccountMeta(addrs.offererATA, true, false),
		solana.NewAccountMeta(addrs.token, false, false),
		solana.NewAccountMeta(systemProgramID, false, false),
		solana.NewAccountMeta(tokenProgramID, false, false),
	}

	return &Action{
		Instructions: []solana.Instruction{newInstruction(a.addrs.ProgramID, accounts, data)},
		ComputeUnits: defaultComputeUnits,
	}, nil
}

// BuildClaim builds the claimerClaim or claimerClaimPayOut instruction
// (spec.md §4.B "Claim"), revealing secret.
func (a *Adapter) BuildClaim(t *types.EscrowTerms, secret [32]byte) (*Action, error) {
	addrs, err := a.resolve(t)
	if err != nil {
		return nil, err
	}
	tag := tagClaimerClaim
	if t.PayOut {
		tag = tagClaimerClaimPayOut
	}
	data, err := encodeInstruction(tag, claimArgs{Secret: secret})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(addrs.claimer, true, true),
		solana.NewAccountMeta(addrs.offerer, false, false),
		solana.NewAccountMeta(addrs.escrowState, true, false),
		solana.NewAccountMeta(addrs.vault, true, false),
		solana.NewAccountMeta(addrs.vaultAuth, false, false),
		solana.NewAccountMeta(addrs.claimerATA, true, false),
		solana.NewAccountMeta(addrs.token, false, false),
		solana.NewAccountMeta(tokenProgramID, false, false),
	}

	return &Action{
		Instructions: []solana.Instruction{newInstruction(a.addrs.ProgramID, accounts, data)},
		ComputeUnits: claimComputeUnits,
	}, nil
}

// BuildRefund builds the offererRefund or offererRefundPayIn instruction
// (spec.md §4.B "Refund"). authExpiry is the unix-seconds timeout of the
// refund-authorization signature, if any; it is also used as the
// instruction's own auth_expiry field so the program can re-derive the same
// bound the off-chain signer verified against.
func (a *Adapter) BuildRefund(t *types.EscrowTerms, authExpiry uint64) (*Action, error) {
	addrs, err := a.resolve(t)
	if err != nil {
		return nil, err
	}
	tag := tagOffererRefund
	if t.PayIn {
		tag = tagOffererRefundPayIn
	}
	data, err := encodeInstruction(tag, refundArgs{AuthExpiry: authExpiry})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(addrs.offerer, true, true),
		solana.NewAccountMeta(addrs.claimer, false, false),
		solana.NewAccountMeta(addrs.escrowState, true, false),
		solana.NewAccountMeta(addrs.vault, true, false),
		solana.NewAccountMeta(addrs.vaultAuth, false, false),
		solana.NewAccountMeta(addrs.offererATA, true, false),
		solana.NewAccountMeta(addrs.token, false, false),
		solana.NewAccountMeta(tokenProgramID, false, false),
	}

	return &Action{
		Instructions: []solana.Instruction{newInstruction(a.addrs.ProgramID, accounts, data)},
		ComputeUnits: refundComputeUnits,
	}, nil
}

// BuildDeposit builds a deposit instruction, moving amount of a user's
// tokens into their per-(user, token) LP vault (spec.md §4.B "LP
// balance management").
func (a *Adapter) BuildDeposit(user, tokenStr string, amount uint64) (*Action, error) {
	return a.buildAmountAction(tagDeposit, user, tokenStr, amount)
}

// BuildWithdraw is the inverse of BuildDeposit.
func (a *Adapter) BuildWithdraw(user, tokenStr string, amount uint64) (*Action, error) {
	return a.buildAmountAction(tagWithdraw, user, tokenStr, amount)
}

func (a *Adapter) buildAmountAction(tag instructionTag, userStr, tokenStr string, amount uint64) (*Action, error) {
	user, err := parsePublicKey("user", userStr)
	if err != nil {
		return nil, err
	}
	token, err := parsePublicKey("token", tokenStr)
	if err != nil {
		return nil, err
	}
	userVault, _, err := a.addrs.SwapUserVault(user, token)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive user vault PDA: %w", err)
	}
	vault, _, err := a.addrs.SwapVault(token)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive vault PDA: %w", err)
	}
	vaultAuth, _, err := a.addrs.SwapVaultAuthority()
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive vault authority PDA: %w", err)
	}
	userATA, err := associatedTokenAddress(user, token)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive user ATA: %w", err)
	}

	data, err := encodeInstruction(tag, amountArgs{Amount: amount})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(userVault, true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(vaultAuth, false, false),
		solana.NewAccountMeta(userATA, true, false),
		solana.NewAccountMeta(token, false, false),
		solana.NewAccountMeta(systemProgramID, false, false),
		solana.NewAccountMeta(tokenProgramID, false, false),
	}

	return &Action{
		Instructions: []solana.Instruction{newInstruction(a.addrs.ProgramID, accounts, data)},
		ComputeUnits: defaultComputeUnits,
	}, nil
}

// BuildCloseDataAccount builds the closeData instruction that reclaims the
// rent of a fully-swept tx-data scratch account (spec.md §4.B "Tx-data
// scratch protocol").
func (a *Adapter) BuildCloseDataAccount(signerStr string, reversedTxID [32]byte) (*Action, error) {
	signer, err := parsePublicKey("signer", signerStr)
	if err != nil {
		return nil, err
	}
	dataAcct, _, err := a.addrs.SwapTxData(reversedTxID, signer)
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to derive tx-data PDA: %w", err)
	}
	data, err := encodeInstruction(tagCloseData, nil)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(signer, true, true),
		solana.NewAccountMeta(dataAcct, true, false),
	}

	return &Action{
		Instructions: []solana.Instruction{newInstruction(a.addrs.ProgramID, accounts, data)},
		ComputeUnits: defaultComputeUnits,
	}, nil
}
