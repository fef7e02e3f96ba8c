package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	vaultsdk "github.com/Arowolokehinde/CharmVault"
	"github.com/Arowolokehinde/CharmVault/store"
	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/ccoveille/go-safecast"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	DatadirEnvVar = "VAULT_CLI_DATADIR"
)

var vaultClient vaultsdk.VaultClient

func main() {
	app := cli.NewApp()
	app.Version = vaultsdk.Version
	app.Name = "Vault CLI"
	app.Usage = "charms inheritance vault command line interface"
	app.Commands = append(
		app.Commands,
		&initCommand,
		&configCommand,
		&receiveCommand,
		&balanceCommand,
		&createCommand,
		&checkinCommand,
		&updateBeneficiariesCommand,
		&distributeCommand,
		&vaultsCommand,
		&vaultCommand,
		&versionCommand,
	)
	app.Flags = []cli.Flag{datadirFlag, verboseFlag}
	app.Before = func(ctx *cli.Context) error {
		sdk, err := getVaultClient(ctx)
		if err != nil {
			return fmt.Errorf("error initializing vault sdk client: %v", err)
		}
		vaultClient = sdk

		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

var (
	datadirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Specify the data directory",
		Value:   btcutil.AppDataDir("vault-cli", false),
		EnvVars: []string{DatadirEnvVar},
	}
	verboseFlag = &cli.BoolFlag{
		Name:        "verbose",
		Usage:       "enable debug logs",
		Value:       false,
		DefaultText: "false",
	}
	passwordFlag = &cli.StringFlag{
		Name:  "password",
		Usage: "password to unlock the wallet",
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "bitcoin network to use (mainnet, testnet, testnet4, signet, regtest)",
		Value: "testnet4",
	}
	explorerFlag = &cli.StringFlag{
		Name:     "explorer",
		Usage:    "the url of the esplora explorer to use",
		Required: true,
	}
	proverFlag = &cli.StringFlag{
		Name:     "prover",
		Usage:    "the url of the charms proof service",
		Required: true,
	}
	nodeUrlFlag = &cli.StringFlag{
		Name:     "node-url",
		Usage:    "the url of the bitcoin node JSON-RPC interface",
		Required: true,
	}
	nodeUserFlag = &cli.StringFlag{
		Name:  "node-user",
		Usage: "RPC username of the bitcoin node",
	}
	nodePassFlag = &cli.StringFlag{
		Name:  "node-pass",
		Usage: "RPC password of the bitcoin node",
	}
	appVkFlag = &cli.StringFlag{
		Name:     "app-vk",
		Usage:    "verification key of the inheritance contract",
		Required: true,
	}
	binaryFlag = &cli.StringFlag{
		Name:     "binary",
		Usage:    "path to the compiled contract binary",
		Required: true,
	}
	blockFeedFlag = &cli.BoolFlag{
		Name:  "block-feed",
		Usage: "track the chain tip and warn about distributable vaults",
	}
	amountFlag = &cli.Uint64Flag{
		Name:  "amount",
		Usage: "amount to lock in the vault, in sats",
	}
	delayFlag = &cli.Uint64Flag{
		Name:  "delay",
		Usage: "trigger delay in blocks after the last check-in",
	}
	beneficiariesFlag = &cli.StringFlag{
		Name:  "beneficiaries",
		Usage: "JSON encoded beneficiaries, e.g. '[{\"address\":\"tb1...\",\"percentage\":100}]'",
	}
	toFlag = &cli.StringSliceFlag{
		Name:  "to",
		Usage: "beneficiary as address:percentage, repeatable",
	}
	vaultIdFlag = &cli.StringFlag{
		Name:     "vault",
		Usage:    "vault id (txid:vout)",
		Required: true,
	}
)

var (
	initCommand = cli.Command{
		Name:  "init",
		Usage: "Initialize the vault wallet with an encryption password and service endpoints",
		Action: func(ctx *cli.Context) error {
			return initSdk(ctx)
		},
		Flags: []cli.Flag{
			passwordFlag, networkFlag, explorerFlag, proverFlag,
			nodeUrlFlag, nodeUserFlag, nodePassFlag, appVkFlag, binaryFlag, blockFeedFlag,
		},
	}
	configCommand = cli.Command{
		Name:  "config",
		Usage: "Shows the vault wallet configuration",
		Action: func(ctx *cli.Context) error {
			return config(ctx)
		},
	}
	receiveCommand = cli.Command{
		Name:  "receive",
		Usage: "Shows the funding address of the wallet",
		Flags: []cli.Flag{passwordFlag},
		Action: func(ctx *cli.Context) error {
			return receive(ctx)
		},
	}
	balanceCommand = cli.Command{
		Name:  "balance",
		Usage: "Shows spendable and vaulted balance",
		Flags: []cli.Flag{passwordFlag},
		Action: func(ctx *cli.Context) error {
			return balance(ctx)
		},
	}
	createCommand = cli.Command{
		Name:  "create",
		Usage: "Create a new inheritance vault",
		Flags: []cli.Flag{passwordFlag, amountFlag, delayFlag, beneficiariesFlag, toFlag},
		Action: func(ctx *cli.Context) error {
			return create(ctx)
		},
	}
	checkinCommand = cli.Command{
		Name:  "checkin",
		Usage: "Check in on a vault, resetting its distribution deadline",
		Flags: []cli.Flag{passwordFlag, vaultIdFlag},
		Action: func(ctx *cli.Context) error {
			return checkin(ctx)
		},
	}
	updateBeneficiariesCommand = cli.Command{
		Name:  "update-beneficiaries",
		Usage: "Replace the beneficiary set of a vault",
		Flags: []cli.Flag{passwordFlag, vaultIdFlag, beneficiariesFlag, toFlag},
		Action: func(ctx *cli.Context) error {
			return updateBeneficiaries(ctx)
		},
	}
	distributeCommand = cli.Command{
		Name:  "distribute",
		Usage: "Distribute an expired vault to its beneficiaries",
		Flags: []cli.Flag{passwordFlag, vaultIdFlag},
		Action: func(ctx *cli.Context) error {
			return distribute(ctx)
		},
	}
	vaultsCommand = cli.Command{
		Name:  "vaults",
		Usage: "List all known vaults",
		Action: func(ctx *cli.Context) error {
			return listVaults(ctx)
		},
	}
	vaultCommand = cli.Command{
		Name:  "vault",
		Usage: "Show a single vault",
		Flags: []cli.Flag{vaultIdFlag},
		Action: func(ctx *cli.Context) error {
			return showVault(ctx)
		},
	}
	versionCommand = cli.Command{
		Name:  "version",
		Usage: "Display version information",
		Action: func(ctx *cli.Context) error {
			fmt.Printf("Vault CLI version: %s\n", vaultsdk.Version)
			return nil
		},
	}
)

func initSdk(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}

	return vaultClient.Init(ctx.Context, vaultsdk.InitArgs{
		Network:       ctx.String(networkFlag.Name),
		ExplorerURL:   ctx.String(explorerFlag.Name),
		ProverURL:     ctx.String(proverFlag.Name),
		NodeRpcURL:    ctx.String(nodeUrlFlag.Name),
		NodeRpcUser:   ctx.String(nodeUserFlag.Name),
		NodeRpcPass:   ctx.String(nodePassFlag.Name),
		AppVk:         ctx.String(appVkFlag.Name),
		BinaryPath:    ctx.String(binaryFlag.Name),
		Password:      string(password),
		WithBlockFeed: ctx.Bool(blockFeedFlag.Name),
	})
}

func config(ctx *cli.Context) error {
	cfgData, err := vaultClient.GetConfigData(ctx.Context)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"network":      cfgData.Network,
		"explorer_url": cfgData.ExplorerURL,
		"prover_url":   cfgData.ProverURL,
		"node_rpc_url": cfgData.NodeRpcURL,
		"app_vk":       cfgData.AppVk,
		"binary_path":  cfgData.BinaryPath,
		"wallet_type":  cfgData.WalletType,
		"store_type":   cfgData.StoreType,
		"block_feed":   cfgData.WithBlockFeed,
	})
}

func receive(ctx *cli.Context) error {
	if err := unlock(ctx); err != nil {
		return err
	}
	address, err := vaultClient.Receive(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"address": address,
	})
}

func balance(ctx *cli.Context) error {
	if err := unlock(ctx); err != nil {
		return err
	}
	bal, err := vaultClient.Balance(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"spendable_sats": bal.SpendableSats,
		"vaulted_sats":   bal.VaultedSats,
	})
}

func create(ctx *cli.Context) error {
	beneficiaries, err := parseBeneficiaries(ctx)
	if err != nil {
		return err
	}
	if err := unlock(ctx); err != nil {
		return err
	}

	vaultId, err := vaultClient.CreateVault(ctx.Context, vaultsdk.CreateVaultArgs{
		AmountSats:         ctx.Uint64(amountFlag.Name),
		TriggerDelayBlocks: ctx.Uint64(delayFlag.Name),
		Beneficiaries:      beneficiaries,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"vault_id": vaultId,
	})
}

func checkin(ctx *cli.Context) error {
	if err := unlock(ctx); err != nil {
		return err
	}
	vaultId, err := vaultClient.CheckIn(ctx.Context, ctx.String(vaultIdFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"vault_id": vaultId,
	})
}

func updateBeneficiaries(ctx *cli.Context) error {
	beneficiaries, err := parseBeneficiaries(ctx)
	if err != nil {
		return err
	}
	if err := unlock(ctx); err != nil {
		return err
	}
	vaultId, err := vaultClient.UpdateBeneficiaries(
		ctx.Context, ctx.String(vaultIdFlag.Name), beneficiaries,
	)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"vault_id": vaultId,
	})
}

func distribute(ctx *cli.Context) error {
	if err := unlock(ctx); err != nil {
		return err
	}
	txid, err := vaultClient.Distribute(ctx.Context, ctx.String(vaultIdFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"txid": txid,
	})
}

func listVaults(ctx *cli.Context) error {
	vaults, err := vaultClient.ListVaults(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(vaults)
}

func showVault(ctx *cli.Context) error {
	vault, err := vaultClient.GetVault(ctx.Context, ctx.String(vaultIdFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(vault)
}

func getVaultClient(ctx *cli.Context) (vaultsdk.VaultClient, error) {
	dataDir := ctx.String(datadirFlag.Name)
	sdkRepository, err := store.NewStore(store.Config{
		BaseDir: dataDir,
	})
	if err != nil {
		return nil, err
	}

	cfgData, err := sdkRepository.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}

	commandName := ctx.Args().First()
	if commandName != "init" && commandName != "version" && cfgData == nil {
		return nil, fmt.Errorf("CLI not initialized, run 'init' cmd to initialize")
	}

	opts := make([]vaultsdk.ClientOption, 0)
	if ctx.Bool(verboseFlag.Name) {
		opts = append(opts, vaultsdk.WithVerbose())
	}

	client, err := vaultsdk.LoadVaultClient(sdkRepository, opts...)
	if err != nil {
		if errors.Is(err, vaultsdk.ErrNotInitialized) {
			return vaultsdk.NewVaultClient(sdkRepository, opts...)
		}
		return nil, err
	}
	return client, nil
}

func unlock(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	return vaultClient.Unlock(ctx.Context, string(password))
}

// parseBeneficiaries accepts either the JSON form or repeated
// address:percentage pairs.
func parseBeneficiaries(ctx *cli.Context) ([]types.Beneficiary, error) {
	beneficiariesJSON := ctx.String(beneficiariesFlag.Name)
	pairs := ctx.StringSlice(toFlag.Name)
	if beneficiariesJSON == "" && len(pairs) == 0 {
		return nil, fmt.Errorf("missing beneficiaries, use --beneficiaries or --to")
	}

	if beneficiariesJSON != "" {
		var beneficiaries []types.Beneficiary
		if err := json.Unmarshal([]byte(beneficiariesJSON), &beneficiaries); err != nil {
			return nil, fmt.Errorf("invalid beneficiaries: %s", err)
		}
		return beneficiaries, nil
	}

	beneficiaries := make([]types.Beneficiary, 0, len(pairs))
	for _, pair := range pairs {
		idx := strings.LastIndex(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid beneficiary %q, expected address:percentage", pair)
		}
		pct, err := strconv.Atoi(pair[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in %q: %s", pair, err)
		}
		percentage, err := safecast.ToUint8(pct)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in %q: %s", pair, err)
		}
		beneficiaries = append(beneficiaries, types.Beneficiary{
			Address:    pair[:idx],
			Percentage: percentage,
		})
	}
	return beneficiaries, nil
}

func readPassword(ctx *cli.Context) ([]byte, error) {
	password := []byte(ctx.String("password"))
	if len(password) == 0 {
		fmt.Print("unlock your wallet with password: ")
		var err error
		password, err = term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return nil, err
		}
	}
	return password, nil
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
