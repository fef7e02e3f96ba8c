package prover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Arowolokehinde/CharmVault/spell"
	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/stretchr/testify/require"
)

func testBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contract.bin")
	require.NoError(t, os.WriteFile(path, []byte("contract bytes"), 0o600))
	return path
}

func testSpell(t *testing.T) *spell.Spell {
	t.Helper()
	s, err := spell.NewCreateSpell(spell.CreateParams{
		FundingUtxo: types.Outpoint{
			Txid: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			VOut: 0,
		},
		VaultAddress:       "tb1qowner",
		AmountSats:         100_000,
		OwnerPubKey:        "02deadbeef",
		TriggerDelayBlocks: 144,
		Beneficiaries:      []types.Beneficiary{{Address: "tb1qalice", Percentage: 100}},
		AppVk:              "vk0123",
	})
	require.NoError(t, err)
	return s
}

func TestProve(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name:     "bare hex strings",
			response: `["aa00", "bb11"]`,
		},
		{
			name:     "chain-tagged objects",
			response: `[{"testnet4": "aa00"}, {"testnet4": "bb11"}]`,
		},
		{
			name:     "mixed shapes",
			response: `["aa00", {"testnet4": "bb11"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRequest Request
			srv := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					require.Equal(t, http.MethodPost, r.Method)
					require.Equal(t, "/spells/prove", r.URL.Path)
					require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
					// nolint
					w.Write([]byte(tt.response))
				},
			))
			defer srv.Close()

			client := NewClient(srv.URL, "testnet4", testBinary(t))
			pair, err := client.Prove(context.Background(), ProveParams{
				Spell:            testSpell(t),
				AppVk:            "vk0123",
				PrevTxHexes:      []string{"cc22"},
				FundingUtxo:      "aaaa:0",
				FundingUtxoValue: 150_000,
				ChangeAddress:    "tb1qowner",
				FeeRate:          2.5,
			})
			require.NoError(t, err)
			require.Equal(t, "aa00", pair.CommitTxHex)
			require.Equal(t, "bb11", pair.SpellTxHex)

			require.Equal(t, "testnet4", gotRequest.Chain)
			require.Equal(t, "aaaa:0", gotRequest.FundingUtxo)
			require.Equal(t, uint64(150_000), gotRequest.FundingUtxoValue)
			require.Contains(t, gotRequest.Binaries, "vk0123")
			require.Equal(t, []map[string]string{{"testnet4": "cc22"}}, gotRequest.PrevTxs)
		})
	}
}

func TestProveDuplicateUtxo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "spell check failed: duplicate funding UTXO", http.StatusBadRequest)
		},
	))
	defer srv.Close()

	client := NewClient(srv.URL, "testnet4", testBinary(t))
	_, err := client.Prove(context.Background(), ProveParams{
		Spell: testSpell(t), AppVk: "vk0123",
	})
	require.ErrorIs(t, err, ErrDuplicateUtxo)
}

func TestProveUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {},
	))
	srv.Close()

	client := NewClient(srv.URL, "testnet4", testBinary(t))
	_, err := client.Prove(context.Background(), ProveParams{
		Spell: testSpell(t), AppVk: "vk0123",
	})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestProveMissingBinary(t *testing.T) {
	client := NewClient("http://localhost:1", "testnet4", "/nonexistent/contract.bin")
	_, err := client.Prove(context.Background(), ProveParams{
		Spell: testSpell(t), AppVk: "vk0123",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "contract binary")
}

func TestParseResponse(t *testing.T) {
	t.Run("wrong element count", func(t *testing.T) {
		_, err := parseResponse([]byte(`["aa00"]`), "testnet4")
		require.Error(t, err)
	})
	t.Run("not json", func(t *testing.T) {
		_, err := parseResponse([]byte(`proof failed`), "testnet4")
		require.Error(t, err)
	})
	t.Run("unknown chain tag", func(t *testing.T) {
		_, err := parseResponse([]byte(`[{"mainnet": "aa"}, {"mainnet": "bb"}]`), "testnet4")
		require.Error(t, err)
	})
}
