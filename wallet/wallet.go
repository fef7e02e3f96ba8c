// Package wallet defines the signing collaborator of the vault SDK. Two
// capability-equivalent backends exist; exactly one is active at a time,
// chosen by a priority-ordered capability probe, never combined within one
// operation.
package wallet

import (
	"context"
	"fmt"

	"github.com/Arowolokehinde/CharmVault/explorer"
)

const (
	SingleKeyWallet = "singlekey"
	LegacyWallet    = "legacy"
)

type WalletState struct {
	Connected   bool
	Address     string
	PubKey      string
	BalanceSats uint64
	Utxos       []explorer.Utxo
}

type WalletService interface {
	GetType() string
	Connect(ctx context.Context, password string) error
	Disconnect(ctx context.Context) error
	GetState(ctx context.Context) (*WalletState, error)
	Refresh(ctx context.Context) (*WalletState, error)
	// SignTransaction signs a base64 partially-signed transaction and
	// returns it with the signature material attached, without finalizing.
	SignTransaction(ctx context.Context, tx string) (string, error)
	// Close releases the wallet database. The service must not be used
	// afterwards.
	Close()
}

type ServiceArgs struct {
	WalletType  string
	Datadir     string
	ExplorerSvc explorer.Explorer
	Network     string
}

type factory struct {
	walletType string
	probe      func(args ServiceArgs) bool
	build      func(args ServiceArgs) (WalletService, error)
}

// supportedWallets is the probe priority order: the taproot single-key
// backend wins whenever both could serve.
var supportedWallets = []factory{
	{
		walletType: SingleKeyWallet,
		probe: func(args ServiceArgs) bool {
			return args.WalletType == "" || args.WalletType == SingleKeyWallet
		},
		build: newSingleKeyWallet,
	},
	{
		walletType: LegacyWallet,
		probe: func(args ServiceArgs) bool {
			return args.WalletType == LegacyWallet
		},
		build: newLegacyWallet,
	},
}

// NewWalletService selects and constructs the active wallet backend.
func NewWalletService(args ServiceArgs) (WalletService, error) {
	for _, f := range supportedWallets {
		if !f.probe(args) {
			continue
		}
		return f.build(args)
	}
	return nil, fmt.Errorf("unsupported wallet type: %s", args.WalletType)
}
