package vaultsdk

import (
	"context"
	"testing"

	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/stretchr/testify/require"
)

func testUtxos() []types.Utxo {
	return []types.Utxo{
		{Outpoint: types.Outpoint{Txid: "aaaa", VOut: 0}, Amount: 200_000, Confirmed: true},
		{Outpoint: types.Outpoint{Txid: "bbbb", VOut: 1}, Amount: 50_000, Confirmed: true},
		{Outpoint: types.Outpoint{Txid: "cccc", VOut: 0}, Amount: 120_000, Confirmed: true},
	}
}

func newSelectorClient(t *testing.T) *vaultClient {
	t.Helper()
	st := newTestStore(t)
	return &vaultClient{
		store: st,
		locks: newLockRegistry(st.LockStore()),
	}
}

func TestSelectFundingUtxoSmallestSufficient(t *testing.T) {
	ctx := context.Background()
	client := newSelectorClient(t)

	selected, err := client.selectFundingUtxo(ctx, testUtxos(), 100_000)
	require.NoError(t, err)
	require.Equal(t, "cccc:0", selected.Outpoint.String())

	selected, err = client.selectFundingUtxo(ctx, testUtxos(), 10_000)
	require.NoError(t, err)
	require.Equal(t, "bbbb:1", selected.Outpoint.String())
}

func TestSelectFundingUtxoSkipsLocked(t *testing.T) {
	ctx := context.Background()
	client := newSelectorClient(t)

	client.locks.Lock(ctx, types.Outpoint{Txid: "cccc", VOut: 0}, types.LockKindCreate)

	selected, err := client.selectFundingUtxo(ctx, testUtxos(), 100_000)
	require.NoError(t, err)
	require.Equal(t, "aaaa:0", selected.Outpoint.String())
}

func TestSelectFundingUtxoSkipsUnconfirmed(t *testing.T) {
	ctx := context.Background()
	client := newSelectorClient(t)

	utxos := []types.Utxo{
		{Outpoint: types.Outpoint{Txid: "aaaa", VOut: 0}, Amount: 120_000},
		{Outpoint: types.Outpoint{Txid: "bbbb", VOut: 0}, Amount: 200_000, Confirmed: true},
	}

	selected, err := client.selectFundingUtxo(ctx, utxos, 100_000)
	require.NoError(t, err)
	require.Equal(t, "bbbb:0", selected.Outpoint.String())

	// a mempool coin covering the amount is reported as transient
	utxos[1].Confirmed = false
	_, err = client.selectFundingUtxo(ctx, utxos, 100_000)
	require.Error(t, err)

	var vaultErr *Error
	require.ErrorAs(t, err, &vaultErr)
	require.Equal(t, CodeInsufficientFunds, vaultErr.Code)
	require.Contains(t, vaultErr.Message, "retry shortly")
}

func TestSelectFundingUtxoSkipsCoolingDown(t *testing.T) {
	ctx := context.Background()
	client := newSelectorClient(t)

	_, err := client.store.FailedUtxoStore().UpsertFailure(
		ctx, types.Outpoint{Txid: "cccc", VOut: 0},
	)
	require.NoError(t, err)

	selected, err := client.selectFundingUtxo(ctx, testUtxos(), 100_000)
	require.NoError(t, err)
	require.Equal(t, "aaaa:0", selected.Outpoint.String())
}

func TestSelectFundingUtxoNoFunds(t *testing.T) {
	ctx := context.Background()
	client := newSelectorClient(t)

	_, err := client.selectFundingUtxo(ctx, testUtxos(), 500_000)
	require.Error(t, err)

	var vaultErr *Error
	require.ErrorAs(t, err, &vaultErr)
	require.Equal(t, CodeInsufficientFunds, vaultErr.Code)
	require.Contains(t, vaultErr.Message, "no wallet UTXO")
}

func TestSelectFundingUtxoAllReserved(t *testing.T) {
	ctx := context.Background()
	client := newSelectorClient(t)

	for _, utxo := range testUtxos() {
		client.locks.Lock(ctx, utxo.Outpoint, types.LockKindCreate)
	}

	_, err := client.selectFundingUtxo(ctx, testUtxos(), 100_000)
	require.Error(t, err)

	var vaultErr *Error
	require.ErrorAs(t, err, &vaultErr)
	require.Equal(t, CodeInsufficientFunds, vaultErr.Code)
	require.Contains(t, vaultErr.Message, "retry shortly")
}

func TestSelectFundingUtxoDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	client := newSelectorClient(t)

	utxos := []types.Utxo{
		{Outpoint: types.Outpoint{Txid: "ffff", VOut: 0}, Amount: 100_000, Confirmed: true},
		{Outpoint: types.Outpoint{Txid: "0000", VOut: 0}, Amount: 100_000, Confirmed: true},
	}

	for i := 0; i < 5; i++ {
		selected, err := client.selectFundingUtxo(ctx, utxos, 50_000)
		require.NoError(t, err)
		require.Equal(t, "0000:0", selected.Outpoint.String())
	}
}
