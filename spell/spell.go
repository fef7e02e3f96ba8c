// Package spell builds the declarative state-transition descriptors submitted
// to the external proof service. A spell references the UTXOs a transaction
// spends, the outputs it creates and the charm (contract state) attached to
// each side. Spells are transient: they are built, sent to the prover and
// discarded.
package spell

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
)

const (
	// Version of the spell format understood by the prover.
	Version = 2

	// appKey indexes the single app binding every vault spell carries.
	appKey = "$00"

	// p2trOutputSize is the serialized size of a taproot output, used for
	// the dust check on distribution outputs.
	p2trOutputSize = 43
)

var (
	// ErrVaultLocked is returned when a distribution is attempted before
	// the check-in deadline has strictly passed.
	ErrVaultLocked = fmt.Errorf("vault is locked: check-in deadline has not passed yet")
)

type Input struct {
	UtxoId string         `json:"utxo_id"`
	Charms map[string]any `json:"charms,omitempty"`
}

type Output struct {
	Address string         `json:"address"`
	Sats    uint64         `json:"sats"`
	Charms  map[string]any `json:"charms,omitempty"`
}

type Spell struct {
	Version       int               `json:"version"`
	Apps          map[string]string `json:"apps"`
	Ins           []Input           `json:"ins"`
	Outs          []Output          `json:"outs"`
	PrivateInputs map[string]any    `json:"private_inputs,omitempty"`
}

// AppId derives the deterministic app identity from the funding UTXO: the
// contract validates that SHA-256 of the witness UTXO id equals it, which
// ties every vault to the exact output that created it.
func AppId(fundingUtxo types.Outpoint) string {
	sum := sha256.Sum256([]byte(fundingUtxo.String()))
	return hex.EncodeToString(sum[:])
}

func appBinding(appId, appVk string) string {
	return fmt.Sprintf("n/%s/%s", appId, appVk)
}

type CreateParams struct {
	FundingUtxo        types.Outpoint
	VaultAddress       string
	AmountSats         uint64
	OwnerPubKey        string
	TriggerDelayBlocks uint64
	Beneficiaries      []types.Beneficiary
	AppVk              string
}

// NewCreateSpell builds the spell minting a new inheritance charm on top of
// the funding UTXO. LastCheckinBlock starts at 0 and is set by the proof
// system relative to the block the transaction is mined in.
func NewCreateSpell(params CreateParams) (*Spell, error) {
	if err := types.ValidateBeneficiaries(params.Beneficiaries); err != nil {
		return nil, err
	}
	if params.TriggerDelayBlocks == 0 {
		return nil, fmt.Errorf("trigger delay must be at least 1 block")
	}

	contract := types.InheritanceContract{
		OwnerPubKey:        params.OwnerPubKey,
		LastCheckinBlock:   0,
		TriggerDelayBlocks: params.TriggerDelayBlocks,
		Beneficiaries:      params.Beneficiaries,
		Status:             types.StatusActive,
	}

	return &Spell{
		Version: Version,
		Apps: map[string]string{
			appKey: appBinding(AppId(params.FundingUtxo), params.AppVk),
		},
		Ins: []Input{{
			UtxoId: params.FundingUtxo.String(),
		}},
		Outs: []Output{{
			Address: params.VaultAddress,
			Sats:    params.AmountSats,
			Charms:  map[string]any{appKey: contract},
		}},
		PrivateInputs: map[string]any{
			appKey: params.FundingUtxo.String(),
		},
	}, nil
}

type TransitionParams struct {
	VaultUtxo    types.Outpoint
	VaultAddress string
	VaultValue   uint64
	Contract     types.InheritanceContract
	CurrentBlock uint64
	AppId        string
	AppVk        string
}

// NewCheckinSpell advances LastCheckinBlock to the current chain height,
// resetting the distribution deadline. The fee reserve is deducted from the
// carried-forward value.
func NewCheckinSpell(params TransitionParams) (*Spell, error) {
	next := params.Contract
	next.LastCheckinBlock = params.CurrentBlock

	return newTransitionSpell(params, next)
}

// NewUpdateBeneficiariesSpell replaces the beneficiary set and, as a side
// effect, resets the check-in clock: beneficiary edits always extend the
// deadline.
func NewUpdateBeneficiariesSpell(
	params TransitionParams, beneficiaries []types.Beneficiary,
) (*Spell, error) {
	if err := types.ValidateBeneficiaries(beneficiaries); err != nil {
		return nil, err
	}

	next := params.Contract
	next.Beneficiaries = beneficiaries
	next.LastCheckinBlock = params.CurrentBlock

	return newTransitionSpell(params, next)
}

func newTransitionSpell(
	params TransitionParams, next types.InheritanceContract,
) (*Spell, error) {
	if params.Contract.Status != types.StatusActive {
		return nil, fmt.Errorf("vault is not active, current status: %s", params.Contract.Status)
	}
	if params.VaultValue <= types.FeeReserveSats {
		return nil, fmt.Errorf(
			"vault value %d does not cover the fee reserve of %d sats",
			params.VaultValue, types.FeeReserveSats,
		)
	}

	return &Spell{
		Version: Version,
		Apps: map[string]string{
			appKey: appBinding(params.AppId, params.AppVk),
		},
		Ins: []Input{{
			UtxoId: params.VaultUtxo.String(),
			Charms: map[string]any{appKey: params.Contract},
		}},
		Outs: []Output{{
			Address: params.VaultAddress,
			Sats:    params.VaultValue - types.FeeReserveSats,
			Charms:  map[string]any{appKey: next},
		}},
	}, nil
}

// NewDistributeSpell burns the charm and pays out every beneficiary. This is
// the sole state-machine gate in the system: it fails with ErrVaultLocked
// unless the chain tip is strictly past the check-in deadline. Sats lost to
// floor division are left to the miner, a documented rounding policy.
func NewDistributeSpell(params TransitionParams) (*Spell, error) {
	if params.Contract.Status == types.StatusDistributed {
		return nil, fmt.Errorf("vault is already distributed")
	}
	if params.CurrentBlock <= params.Contract.UnlockHeight() {
		return nil, fmt.Errorf(
			"%w: unlocks after block %d, current block %d",
			ErrVaultLocked, params.Contract.UnlockHeight(), params.CurrentBlock,
		)
	}
	if params.VaultValue <= types.FeeReserveSats {
		return nil, fmt.Errorf(
			"vault value %d does not cover the fee reserve of %d sats",
			params.VaultValue, types.FeeReserveSats,
		)
	}

	distributable := params.VaultValue - types.FeeReserveSats

	outs := make([]Output, 0, len(params.Contract.Beneficiaries))
	for _, beneficiary := range params.Contract.Beneficiaries {
		share := distributable * uint64(beneficiary.Percentage) / 100
		if txrules.IsDustAmount(
			btcutil.Amount(share), p2trOutputSize, txrules.DefaultRelayFeePerKb,
		) {
			return nil, fmt.Errorf(
				"distribution share of %d sats for %s is below the dust threshold",
				share, beneficiary.Address,
			)
		}
		// No charm on any output: the token is burned, the contract is
		// terminal after this spell.
		outs = append(outs, Output{
			Address: beneficiary.Address,
			Sats:    share,
		})
	}

	return &Spell{
		Version: Version,
		Apps: map[string]string{
			appKey: appBinding(params.AppId, params.AppVk),
		},
		Ins: []Input{{
			UtxoId: params.VaultUtxo.String(),
			Charms: map[string]any{appKey: params.Contract},
		}},
		Outs: outs,
	}, nil
}

// Burns reports whether the spell carries no contract state on any output,
// i.e. it terminates the charm.
func (s *Spell) Burns() bool {
	for _, out := range s.Outs {
		if len(out.Charms) > 0 {
			return false
		}
	}
	return true
}
