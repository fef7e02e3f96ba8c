package wallet

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Arowolokehinde/CharmVault/explorer"
	"github.com/Arowolokehinde/CharmVault/internal/utils"
	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

type stubExplorer struct {
	utxos   map[string][]explorer.Utxo
	failing bool
}

func (e *stubExplorer) Start()                                  {}
func (e *stubExplorer) Stop()                                   {}
func (e *stubExplorer) BaseUrl() string                         { return "" }
func (e *stubExplorer) GetBlockEvents() <-chan types.BlockEvent { return nil }
func (e *stubExplorer) GetBlockHeight() (uint64, error)         { return 0, nil }
func (e *stubExplorer) GetFeeRate() (float64, error)            { return 1, nil }
func (e *stubExplorer) GetTxHex(string) (string, error)         { return "", nil }
func (e *stubExplorer) Broadcast(...string) (string, error)     { return "", nil }

func (e *stubExplorer) GetUtxos(addr string) ([]explorer.Utxo, error) {
	if e.failing {
		return nil, fmt.Errorf("explorer down")
	}
	return e.utxos[addr], nil
}

func newTestWallet(t *testing.T, walletType string, exp *stubExplorer) WalletService {
	t.Helper()
	svc, err := NewWalletService(ServiceArgs{
		WalletType:  walletType,
		Datadir:     "",
		ExplorerSvc: exp,
		Network:     "regtest",
	})
	require.NoError(t, err)
	require.Equal(t, walletType, svc.GetType())
	t.Cleanup(svc.Close)
	return svc
}

func TestNewWalletServiceProbe(t *testing.T) {
	exp := &stubExplorer{}

	svc, err := NewWalletService(ServiceArgs{ExplorerSvc: exp, Network: "regtest"})
	require.NoError(t, err)
	require.Equal(t, SingleKeyWallet, svc.GetType())

	svc, err = NewWalletService(ServiceArgs{
		WalletType: LegacyWallet, ExplorerSvc: exp, Network: "regtest",
	})
	require.NoError(t, err)
	require.Equal(t, LegacyWallet, svc.GetType())

	_, err = NewWalletService(ServiceArgs{
		WalletType: "hardware", ExplorerSvc: exp, Network: "regtest",
	})
	require.Error(t, err)
}

func TestConnectLifecycle(t *testing.T) {
	ctx := context.Background()
	exp := &stubExplorer{utxos: map[string][]explorer.Utxo{}}
	svc := newTestWallet(t, SingleKeyWallet, exp)

	_, err := svc.GetState(ctx)
	require.Error(t, err)

	require.NoError(t, svc.Connect(ctx, "correct horse"))

	state, err := svc.GetState(ctx)
	require.NoError(t, err)
	require.True(t, state.Connected)
	require.NotEmpty(t, state.Address)
	require.Len(t, state.PubKey, 66)

	require.NoError(t, svc.Disconnect(ctx))
	_, err = svc.GetState(ctx)
	require.Error(t, err)

	// wrong password cannot decrypt the stored key
	require.Error(t, svc.Connect(ctx, "wrong password"))

	// the right one still can, and derives the same address
	require.NoError(t, svc.Connect(ctx, "correct horse"))
	reconnected, err := svc.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, state.Address, reconnected.Address)
}

func TestCloseReleasesDatadir(t *testing.T) {
	ctx := context.Background()
	exp := &stubExplorer{utxos: map[string][]explorer.Utxo{}}
	dir := t.TempDir()

	svc, err := NewWalletService(ServiceArgs{
		Datadir: dir, ExplorerSvc: exp, Network: "regtest",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Connect(ctx, "pass"))

	state, err := svc.GetState(ctx)
	require.NoError(t, err)

	svc.Close()
	_, err = svc.GetState(ctx)
	require.Error(t, err)

	// badger holds a directory lock until the db is closed, reopening the
	// same datadir must succeed and find the persisted key
	reopened, err := NewWalletService(ServiceArgs{
		Datadir: dir, ExplorerSvc: exp, Network: "regtest",
	})
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Connect(ctx, "pass"))
	restored, err := reopened.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, state.Address, restored.Address)
}

func TestRefreshKeepsLastKnownStateOnFailure(t *testing.T) {
	ctx := context.Background()
	exp := &stubExplorer{utxos: map[string][]explorer.Utxo{}}
	svc := newTestWallet(t, SingleKeyWallet, exp)
	require.NoError(t, svc.Connect(ctx, "pass"))

	state, err := svc.GetState(ctx)
	require.NoError(t, err)

	exp.utxos[state.Address] = []explorer.Utxo{
		{Txid: "aaaa", Vout: 0, Amount: 120_000},
		{Txid: "bbbb", Vout: 1, Amount: 30_000},
	}
	state, err = svc.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(150_000), state.BalanceSats)
	require.Len(t, state.Utxos, 2)

	exp.failing = true
	state, err = svc.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(150_000), state.BalanceSats)
}

// signablePacket builds a psbt spending one output locked to the wallet's
// own address and one foreign output.
func signablePacket(t *testing.T, address string) string {
	t.Helper()

	pkScript, err := utils.ParseBitcoinAddress(address, utils.ToBitcoinNetwork("regtest"))
	require.NoError(t, err)

	foreignScript := append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0x07}, 20)...)

	unsigned := wire.NewMsgTx(2)
	unsigned.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}, nil, nil))
	unsigned.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 0}, nil, nil))
	unsigned.AddTxOut(wire.NewTxOut(90_000, pkScript))

	packet, err := psbt.NewFromUnsignedTx(unsigned)
	require.NoError(t, err)
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(100_000, pkScript)
	packet.Inputs[1].WitnessUtxo = wire.NewTxOut(10_000, foreignScript)

	b64, err := packet.B64Encode()
	require.NoError(t, err)
	return b64
}

func TestSignTransaction(t *testing.T) {
	tests := []struct {
		name       string
		walletType string
		check      func(t *testing.T, in *psbt.PInput)
	}{
		{
			name:       "taproot key path",
			walletType: SingleKeyWallet,
			check: func(t *testing.T, in *psbt.PInput) {
				require.Len(t, in.TaprootKeySpendSig, 64)
				require.Empty(t, in.PartialSigs)
			},
		},
		{
			name:       "segwit v0",
			walletType: LegacyWallet,
			check: func(t *testing.T, in *psbt.PInput) {
				require.Len(t, in.PartialSigs, 1)
				require.Empty(t, in.TaprootKeySpendSig)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			exp := &stubExplorer{utxos: map[string][]explorer.Utxo{}}
			svc := newTestWallet(t, tt.walletType, exp)
			require.NoError(t, svc.Connect(ctx, "pass"))

			state, err := svc.GetState(ctx)
			require.NoError(t, err)

			signed, err := svc.SignTransaction(ctx, signablePacket(t, state.Address))
			require.NoError(t, err)

			packet, err := psbt.NewFromRawBytes(strings.NewReader(signed), true)
			require.NoError(t, err)

			// only the wallet-owned input got signature material
			tt.check(t, &packet.Inputs[0])
			require.Empty(t, packet.Inputs[1].TaprootKeySpendSig)
			require.Empty(t, packet.Inputs[1].PartialSigs)
		})
	}
}

func TestSignTransactionNoOwnedInputs(t *testing.T) {
	ctx := context.Background()
	exp := &stubExplorer{utxos: map[string][]explorer.Utxo{}}
	svc := newTestWallet(t, SingleKeyWallet, exp)
	require.NoError(t, svc.Connect(ctx, "pass"))

	foreignScript := append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0x07}, 20)...)
	unsigned := wire.NewMsgTx(2)
	unsigned.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x03}, Index: 0}, nil, nil))
	unsigned.AddTxOut(wire.NewTxOut(9_000, foreignScript))

	packet, err := psbt.NewFromUnsignedTx(unsigned)
	require.NoError(t, err)
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(10_000, foreignScript)
	b64, err := packet.B64Encode()
	require.NoError(t, err)

	_, err = svc.SignTransaction(ctx, b64)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no input belongs")
}
