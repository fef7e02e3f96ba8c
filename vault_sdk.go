package vaultsdk

import (
	"context"

	"github.com/Arowolokehinde/CharmVault/types"
)

const Version = "0.1.0"

type InitArgs struct {
	Network     string
	ExplorerURL string
	ProverURL   string
	NodeRpcURL  string
	NodeRpcUser string
	NodeRpcPass string
	// AppVk is the verification key of the inheritance contract, shared by
	// every vault managed by this client.
	AppVk string
	// BinaryPath points to the compiled contract binary shipped to the
	// proof service alongside every spell.
	BinaryPath string
	WalletType string
	Password   string
	// WithBlockFeed enables live chain-tip tracking on the explorer.
	WithBlockFeed bool
}

type CreateVaultArgs struct {
	AmountSats         uint64
	TriggerDelayBlocks uint64
	Beneficiaries      []types.Beneficiary
}

type Balance struct {
	// SpendableSats is the wallet balance outside any vault.
	SpendableSats uint64
	// VaultedSats is the value currently carried by active vaults.
	VaultedSats uint64
}

// VaultClient manages Charms inheritance vaults: it assembles spells, hands
// them to the proof service, and broadcasts the resulting commit/spell
// transaction pairs. Every operation returns a *Error with a stable code on
// failure.
type VaultClient interface {
	GetVersion() string
	GetConfigData(ctx context.Context) (*types.Config, error)

	Init(ctx context.Context, args InitArgs) error
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context) error
	IsLocked(ctx context.Context) bool

	Balance(ctx context.Context) (*Balance, error)
	Receive(ctx context.Context) (string, error)

	// CreateVault funds a new vault and returns its id, the outpoint of
	// the charm-carrying output of the spell transaction.
	CreateVault(ctx context.Context, args CreateVaultArgs) (string, error)
	// CheckIn resets the distribution deadline of an active vault and
	// returns the new vault id.
	CheckIn(ctx context.Context, vaultId string) (string, error)
	// UpdateBeneficiaries replaces the beneficiary set, which also resets
	// the deadline, and returns the new vault id.
	UpdateBeneficiaries(
		ctx context.Context, vaultId string, beneficiaries []types.Beneficiary,
	) (string, error)
	// Distribute pays out the beneficiaries of an expired vault and burns
	// the charm. It returns the distribution transaction id.
	Distribute(ctx context.Context, vaultId string) (string, error)

	GetVault(ctx context.Context, vaultId string) (*types.Vault, error)
	ListVaults(ctx context.Context) ([]types.Vault, error)

	Reset(ctx context.Context)
	Stop()
}
