package vaultsdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Arowolokehinde/CharmVault/explorer"
	"github.com/Arowolokehinde/CharmVault/node"
	"github.com/Arowolokehinde/CharmVault/prover"
	"github.com/Arowolokehinde/CharmVault/spell"
	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/Arowolokehinde/CharmVault/wallet"
	log "github.com/sirupsen/logrus"
)

var (
	ErrAlreadyInitialized = fmt.Errorf("client already initialized")
	ErrNotInitialized     = fmt.Errorf("client not initialized, run Init first")
)

// minFundingSats is the floor for funding selection on state transitions:
// the coin pays the commit transaction fee and must leave a non-dust change
// output.
const minFundingSats = uint64(10_000)

type vaultClient struct {
	*types.Config
	store    types.Store
	wallet   wallet.WalletService
	explorer explorer.Explorer
	prover   *prover.Client
	node     *node.Client
	locks    *lockRegistry

	binaryPathOverride string
	feedStop           chan struct{}
	feedOnce           sync.Once
}

func NewVaultClient(sdkStore types.Store, opts ...ClientOption) (VaultClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData != nil {
		return nil, ErrAlreadyInitialized
	}

	client := &vaultClient{
		store:    sdkStore,
		locks:    newLockRegistry(sdkStore.LockStore()),
		feedStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func LoadVaultClient(sdkStore types.Store, opts ...ClientOption) (VaultClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData == nil {
		return nil, ErrNotInitialized
	}
	if cfgData.PollInterval == 0 {
		cfgData.PollInterval = 10 * time.Second
	}

	client := &vaultClient{
		Config:   cfgData,
		store:    sdkStore,
		locks:    newLockRegistry(sdkStore.LockStore()),
		feedStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}

	if err := client.buildServices(cfgData); err != nil {
		return nil, err
	}
	client.startBlockFeed()
	return client, nil
}

func (a *vaultClient) buildServices(cfgData *types.Config) error {
	explorerOpts := []explorer.Option{
		explorer.WithTracker(cfgData.WithBlockFeed),
	}
	if cfgData.PollInterval > 0 {
		explorerOpts = append(explorerOpts, explorer.WithPollInterval(cfgData.PollInterval))
	}
	explorerSvc, err := explorer.NewExplorer(cfgData.ExplorerURL, cfgData.Network, explorerOpts...)
	if err != nil {
		return fmt.Errorf("failed to setup explorer: %s", err)
	}

	walletSvc, err := wallet.NewWalletService(wallet.ServiceArgs{
		WalletType:  cfgData.WalletType,
		Datadir:     a.store.ConfigStore().GetDatadir(),
		ExplorerSvc: explorerSvc,
		Network:     cfgData.Network,
	})
	if err != nil {
		return fmt.Errorf("failed to setup wallet: %s", err)
	}

	binaryPath := cfgData.BinaryPath
	if a.binaryPathOverride != "" {
		binaryPath = a.binaryPathOverride
	}

	a.explorer = explorerSvc
	a.wallet = walletSvc
	a.prover = prover.NewClient(cfgData.ProverURL, cfgData.Network, binaryPath)
	a.node = node.NewClient(cfgData.NodeRpcURL, cfgData.NodeRpcUser, cfgData.NodeRpcPass)
	return nil
}

func (a *vaultClient) GetVersion() string {
	return Version
}

func (a *vaultClient) GetConfigData(ctx context.Context) (*types.Config, error) {
	if a.Config == nil {
		return nil, ErrNotInitialized
	}
	return a.Config, nil
}

func (a *vaultClient) Init(ctx context.Context, args InitArgs) error {
	if a.Config != nil {
		return ErrAlreadyInitialized
	}
	if err := validateInitArgs(args); err != nil {
		return err
	}

	pollInterval := 10 * time.Second
	cfgData := types.Config{
		Network:       args.Network,
		ExplorerURL:   args.ExplorerURL,
		ProverURL:     args.ProverURL,
		NodeRpcURL:    args.NodeRpcURL,
		NodeRpcUser:   args.NodeRpcUser,
		NodeRpcPass:   args.NodeRpcPass,
		AppVk:         args.AppVk,
		BinaryPath:    args.BinaryPath,
		WalletType:    args.WalletType,
		StoreType:     a.store.ConfigStore().GetType(),
		PollInterval:  pollInterval,
		WithBlockFeed: args.WithBlockFeed,
	}

	if err := a.buildServices(&cfgData); err != nil {
		return err
	}
	if err := a.wallet.Connect(ctx, args.Password); err != nil {
		return fmt.Errorf("failed to setup wallet: %s", err)
	}

	if err := a.store.ConfigStore().AddData(ctx, cfgData); err != nil {
		return err
	}
	a.Config = &cfgData
	a.startBlockFeed()
	return nil
}

func validateInitArgs(args InitArgs) error {
	if args.Network == "" {
		return fmt.Errorf("missing network")
	}
	if args.ExplorerURL == "" {
		return fmt.Errorf("missing explorer url")
	}
	if args.ProverURL == "" {
		return fmt.Errorf("missing prover url")
	}
	if args.NodeRpcURL == "" {
		return fmt.Errorf("missing node rpc url")
	}
	if args.AppVk == "" {
		return fmt.Errorf("missing app verification key")
	}
	if args.BinaryPath == "" {
		return fmt.Errorf("missing contract binary path")
	}
	return nil
}

func (a *vaultClient) Unlock(ctx context.Context, password string) error {
	if a.Config == nil {
		return ErrNotInitialized
	}
	return a.wallet.Connect(ctx, password)
}

func (a *vaultClient) Lock(ctx context.Context) error {
	if a.Config == nil {
		return ErrNotInitialized
	}
	return a.wallet.Disconnect(ctx)
}

func (a *vaultClient) IsLocked(ctx context.Context) bool {
	if a.Config == nil || a.wallet == nil {
		return true
	}
	state, err := a.wallet.GetState(ctx)
	if err != nil {
		return true
	}
	return !state.Connected
}

func (a *vaultClient) Balance(ctx context.Context) (*Balance, error) {
	state, err := a.connectedWallet(ctx, true)
	if err != nil {
		return nil, err
	}

	vaults, err := a.store.VaultStore().GetAllVaults(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	vaultedSats := uint64(0)
	for _, vault := range vaults {
		if vault.Status == types.StatusActive {
			vaultedSats += vault.LockedSats
		}
	}

	return &Balance{
		SpendableSats: state.BalanceSats,
		VaultedSats:   vaultedSats,
	}, nil
}

func (a *vaultClient) Receive(ctx context.Context) (string, error) {
	state, err := a.connectedWallet(ctx, false)
	if err != nil {
		return "", err
	}
	return state.Address, nil
}

// CreateVault reserves a funding coin, builds the minting spell, proves it
// and broadcasts the resulting pair. The vault id is the outpoint of the
// charm-carrying output of the spell transaction.
func (a *vaultClient) CreateVault(ctx context.Context, args CreateVaultArgs) (string, error) {
	if args.AmountSats == 0 {
		return "", newError(CodeValidation, "vault amount must be greater than zero")
	}
	if args.TriggerDelayBlocks == 0 {
		return "", newError(CodeValidation, "trigger delay must be at least 1 block")
	}
	if err := types.ValidateBeneficiaries(args.Beneficiaries); err != nil {
		return "", wrapError(CodeValidation, err, "invalid beneficiary set")
	}

	state, err := a.connectedWallet(ctx, true)
	if err != nil {
		return "", err
	}

	a.locks.ClearExpired(ctx)
	required := args.AmountSats + types.FeeReserveSats
	funding, err := a.selectFundingUtxo(ctx, walletUtxos(state), required)
	if err != nil {
		return "", classifyError(err)
	}
	a.locks.Lock(ctx, funding.Outpoint, types.LockKindCreate)
	defer a.locks.Unlock(ctx, funding.Outpoint)

	height, err := a.explorer.GetBlockHeight()
	if err != nil {
		return "", classifyError(err)
	}
	feeRate, err := a.explorer.GetFeeRate()
	if err != nil {
		return "", classifyError(err)
	}
	fundingTxHex, err := a.explorer.GetTxHex(funding.Txid)
	if err != nil {
		return "", classifyError(err)
	}

	createSpell, err := spell.NewCreateSpell(spell.CreateParams{
		FundingUtxo:        funding.Outpoint,
		VaultAddress:       state.Address,
		AmountSats:         args.AmountSats,
		OwnerPubKey:        state.PubKey,
		TriggerDelayBlocks: args.TriggerDelayBlocks,
		Beneficiaries:      args.Beneficiaries,
		AppVk:              a.AppVk,
	})
	if err != nil {
		return "", wrapError(CodeValidation, err, "invalid vault parameters")
	}

	pair, err := a.prover.Prove(ctx, prover.ProveParams{
		Spell:            createSpell,
		AppVk:            a.AppVk,
		PrevTxHexes:      []string{fundingTxHex},
		FundingUtxo:      funding.Outpoint.String(),
		FundingUtxoValue: funding.Amount,
		ChangeAddress:    state.Address,
		FeeRate:          feeRate,
	})
	if err != nil {
		a.recordProverFailure(ctx, err, funding.Outpoint)
		return "", classifyError(err)
	}

	spellTxid, err := a.broadcastPair(ctx, pair, fundingTxHex)
	if err != nil {
		return "", classifyError(err)
	}

	now := time.Now()
	vault := types.Vault{
		Id:                 types.Outpoint{Txid: spellTxid, VOut: 0}.String(),
		AppId:              spell.AppId(funding.Outpoint),
		Status:             types.StatusActive,
		LockedSats:         args.AmountSats,
		LastCheckinBlock:   height,
		UnlockBlock:        height + args.TriggerDelayBlocks,
		CreatedAt:          now,
		CreatedBlock:       height,
		Beneficiaries:      args.Beneficiaries,
		OwnerPubKey:        state.PubKey,
		TriggerDelayBlocks: args.TriggerDelayBlocks,
		History: []types.VaultTx{
			{Txid: spellTxid, Kind: "create", CreatedAt: now},
		},
	}
	if err := a.store.VaultStore().AddVault(ctx, vault); err != nil {
		// the chain already accepted the pair, losing the local record is
		// recoverable by rescanning
		log.WithError(err).Warnf("vault %s broadcast but not persisted", vault.Id)
	}
	return vault.Id, nil
}

func (a *vaultClient) CheckIn(ctx context.Context, vaultId string) (string, error) {
	result, err := a.runTransition(
		ctx, vaultId, types.LockKindCheckin,
		func(params spell.TransitionParams) (*spell.Spell, error) {
			return spell.NewCheckinSpell(params)
		},
	)
	if err != nil {
		return "", err
	}

	vault := result.vault
	oldId := vault.Id
	vault.Id = types.Outpoint{Txid: result.spellTxid, VOut: 0}.String()
	vault.LockedSats -= types.FeeReserveSats
	vault.LastCheckinBlock = result.height
	vault.UnlockBlock = result.height + vault.TriggerDelayBlocks
	vault.History = append(vault.History, types.VaultTx{
		Txid: result.spellTxid, Kind: "checkin", CreatedAt: time.Now(),
	})
	if err := a.store.VaultStore().ReplaceVault(ctx, oldId, *vault); err != nil {
		log.WithError(err).Warnf("check-in %s broadcast but not persisted", result.spellTxid)
	}
	return vault.Id, nil
}

func (a *vaultClient) UpdateBeneficiaries(
	ctx context.Context, vaultId string, beneficiaries []types.Beneficiary,
) (string, error) {
	if err := types.ValidateBeneficiaries(beneficiaries); err != nil {
		return "", wrapError(CodeValidation, err, "invalid beneficiary set")
	}

	result, err := a.runTransition(
		ctx, vaultId, types.LockKindUpdate,
		func(params spell.TransitionParams) (*spell.Spell, error) {
			return spell.NewUpdateBeneficiariesSpell(params, beneficiaries)
		},
	)
	if err != nil {
		return "", err
	}

	vault := result.vault
	oldId := vault.Id
	vault.Id = types.Outpoint{Txid: result.spellTxid, VOut: 0}.String()
	vault.LockedSats -= types.FeeReserveSats
	vault.Beneficiaries = beneficiaries
	// beneficiary edits reset the check-in clock
	vault.LastCheckinBlock = result.height
	vault.UnlockBlock = result.height + vault.TriggerDelayBlocks
	vault.History = append(vault.History, types.VaultTx{
		Txid: result.spellTxid, Kind: "update", CreatedAt: time.Now(),
	})
	if err := a.store.VaultStore().ReplaceVault(ctx, oldId, *vault); err != nil {
		log.WithError(err).Warnf("update %s broadcast but not persisted", result.spellTxid)
	}
	return vault.Id, nil
}

func (a *vaultClient) Distribute(ctx context.Context, vaultId string) (string, error) {
	result, err := a.runTransition(
		ctx, vaultId, types.LockKindDistribute,
		func(params spell.TransitionParams) (*spell.Spell, error) {
			return spell.NewDistributeSpell(params)
		},
	)
	if err != nil {
		return "", err
	}

	vault := result.vault
	vault.Status = types.StatusDistributed
	vault.LockedSats = 0
	vault.History = append(vault.History, types.VaultTx{
		Txid: result.spellTxid, Kind: "distribute", CreatedAt: time.Now(),
	})
	if err := a.store.VaultStore().UpdateVault(ctx, *vault); err != nil {
		log.WithError(err).Warnf("distribution %s broadcast but not persisted", result.spellTxid)
	}
	return result.spellTxid, nil
}

func (a *vaultClient) GetVault(ctx context.Context, vaultId string) (*types.Vault, error) {
	if a.Config == nil {
		return nil, ErrNotInitialized
	}
	vault, err := a.store.VaultStore().GetVault(ctx, vaultId)
	if err != nil {
		return nil, classifyError(err)
	}
	if vault == nil {
		return nil, newError(CodeVaultNotFound, "no vault with id %s", vaultId)
	}
	return vault, nil
}

func (a *vaultClient) ListVaults(ctx context.Context) ([]types.Vault, error) {
	if a.Config == nil {
		return nil, ErrNotInitialized
	}
	vaults, err := a.store.VaultStore().GetAllVaults(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	return vaults, nil
}

func (a *vaultClient) Reset(ctx context.Context) {
	a.store.Clean(ctx)
	a.Config = nil
}

func (a *vaultClient) Stop() {
	a.feedOnce.Do(func() { close(a.feedStop) })
	if a.explorer != nil {
		a.explorer.Stop()
	}
	if a.wallet != nil {
		a.wallet.Close()
	}
	a.store.Close()
}

type transitionResult struct {
	spellTxid string
	height    uint64
	vault     *types.Vault
}

// runTransition drives the shared pipeline of every state transition: load
// the vault, reserve a funding coin, build the spell against the current
// chain tip, prove, broadcast. The caller updates the local record from the
// returned result.
func (a *vaultClient) runTransition(
	ctx context.Context, vaultId string, kind types.LockKind,
	buildSpell func(spell.TransitionParams) (*spell.Spell, error),
) (*transitionResult, error) {
	state, err := a.connectedWallet(ctx, true)
	if err != nil {
		return nil, err
	}

	vault, err := a.GetVault(ctx, vaultId)
	if err != nil {
		return nil, err
	}
	vaultOutpoint, err := vault.Outpoint()
	if err != nil {
		return nil, wrapError(CodeInternal, err, "corrupt vault record %s", vaultId)
	}

	a.locks.ClearExpired(ctx)
	funding, err := a.selectFundingUtxo(ctx, walletUtxos(state), minFundingSats)
	if err != nil {
		return nil, classifyError(err)
	}
	a.locks.Lock(ctx, funding.Outpoint, kind)
	defer a.locks.Unlock(ctx, funding.Outpoint)

	height, err := a.explorer.GetBlockHeight()
	if err != nil {
		return nil, classifyError(err)
	}
	feeRate, err := a.explorer.GetFeeRate()
	if err != nil {
		return nil, classifyError(err)
	}
	fundingTxHex, err := a.explorer.GetTxHex(funding.Txid)
	if err != nil {
		return nil, classifyError(err)
	}
	vaultTxHex, err := a.explorer.GetTxHex(vaultOutpoint.Txid)
	if err != nil {
		return nil, classifyError(err)
	}

	transitionSpell, err := buildSpell(spell.TransitionParams{
		VaultUtxo:    vaultOutpoint,
		VaultAddress: state.Address,
		VaultValue:   vault.LockedSats,
		Contract:     vault.Contract(),
		CurrentBlock: height,
		AppId:        vault.AppId,
		AppVk:        a.AppVk,
	})
	if err != nil {
		if errors.Is(err, spell.ErrVaultLocked) {
			return nil, classifyError(err)
		}
		return nil, wrapError(CodeValidation, err, "cannot build transition for vault %s", vaultId)
	}

	pair, err := a.prover.Prove(ctx, prover.ProveParams{
		Spell:            transitionSpell,
		AppVk:            a.AppVk,
		PrevTxHexes:      []string{fundingTxHex, vaultTxHex},
		FundingUtxo:      funding.Outpoint.String(),
		FundingUtxoValue: funding.Amount,
		ChangeAddress:    state.Address,
		FeeRate:          feeRate,
	})
	if err != nil {
		a.recordProverFailure(ctx, err, funding.Outpoint)
		return nil, classifyError(err)
	}

	spellTxid, err := a.broadcastPair(ctx, pair, fundingTxHex)
	if err != nil {
		return nil, classifyError(err)
	}

	return &transitionResult{
		spellTxid: spellTxid,
		height:    height,
		vault:     vault,
	}, nil
}

// connectedWallet returns the wallet state, optionally refreshing the UTXO
// view first, and fails with a stable code when no wallet is unlocked.
func (a *vaultClient) connectedWallet(
	ctx context.Context, refresh bool,
) (*wallet.WalletState, error) {
	if a.Config == nil || a.wallet == nil {
		return nil, ErrNotInitialized
	}

	state, err := a.wallet.GetState(ctx)
	if err != nil || !state.Connected {
		return nil, newError(CodeWalletNotConnected, "wallet is locked, unlock it first")
	}
	if refresh {
		state, err = a.wallet.Refresh(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
	}
	return state, nil
}

func (a *vaultClient) recordProverFailure(
	ctx context.Context, err error, outpoint types.Outpoint,
) {
	if !errors.Is(err, prover.ErrDuplicateUtxo) {
		return
	}
	if _, upsertErr := a.store.FailedUtxoStore().UpsertFailure(ctx, outpoint); upsertErr != nil {
		log.WithError(upsertErr).Warnf("failed to record prover rejection of %s", outpoint)
	}
}

func walletUtxos(state *wallet.WalletState) []types.Utxo {
	utxos := make([]types.Utxo, 0, len(state.Utxos))
	for _, utxo := range state.Utxos {
		utxos = append(utxos, utxo.ToUtxo(state.Address))
	}
	return utxos
}

func (a *vaultClient) startBlockFeed() {
	if a.Config == nil || !a.WithBlockFeed {
		return
	}
	a.explorer.Start()
	go a.consumeBlockEvents()
}

// consumeBlockEvents watches the chain tip and surfaces vaults whose
// check-in deadline has passed. Purely informational: distribution is
// always an explicit call.
func (a *vaultClient) consumeBlockEvents() {
	events := a.explorer.GetBlockEvents()
	for {
		select {
		case <-a.feedStop:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Err != nil {
				log.WithError(event.Err).Debug("block feed error")
				continue
			}
			a.warnDistributable(event.Height)
		}
	}
}

func (a *vaultClient) warnDistributable(height uint64) {
	vaults, err := a.store.VaultStore().GetAllVaults(context.Background())
	if err != nil {
		log.WithError(err).Warn("failed to list vaults on new block")
		return
	}
	for _, vault := range vaults {
		if vault.Status != types.StatusActive {
			continue
		}
		if height > vault.UnlockBlock {
			log.Warnf(
				"vault %s passed its check-in deadline (block %d, tip %d), funds are distributable",
				vault.Id, vault.UnlockBlock, height,
			)
		}
	}
}
