package explorer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetTxHexCaches(t *testing.T) {
	hits := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			require.Equal(t, "/tx/aabbcc/hex", r.URL.Path)
			// nolint
			w.Write([]byte("0200aabb\n"))
		},
	))
	defer srv.Close()

	svc, err := NewExplorer(srv.URL, "testnet4")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		txHex, err := svc.GetTxHex("aabbcc")
		require.NoError(t, err)
		require.Equal(t, "0200aabb", txHex)
	}
	// confirmed transactions never change, one fetch is enough
	require.Equal(t, int32(1), hits.Load())
}

func TestGetUtxos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/address/tb1qowner/utxo", r.URL.Path)
			// nolint
			w.Write([]byte(`[
				{"txid": "aaaa", "vout": 0, "value": 150000, "status": {"confirmed": true}},
				{"txid": "bbbb", "vout": 2, "value": 5000, "status": {"confirmed": false}}
			]`))
		},
	))
	defer srv.Close()

	svc, err := NewExplorer(srv.URL, "testnet4")
	require.NoError(t, err)

	utxos, err := svc.GetUtxos("tb1qowner")
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	require.Equal(t, uint64(150_000), utxos[0].Amount)
	require.True(t, utxos[0].Status.Confirmed)

	converted := utxos[0].ToUtxo("tb1qowner")
	require.Equal(t, "aaaa:0", converted.Outpoint.String())
	require.Equal(t, "tb1qowner", converted.Address)
}

func TestGetBlockHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/blocks/tip/height", r.URL.Path)
			// nolint
			w.Write([]byte("123456\n"))
		},
	))
	defer srv.Close()

	svc, err := NewExplorer(srv.URL, "testnet4")
	require.NoError(t, err)

	height, err := svc.GetBlockHeight()
	require.NoError(t, err)
	require.Equal(t, uint64(123456), height)
}

func TestGetFeeRate(t *testing.T) {
	t.Run("uses the next-block estimate", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				// nolint
				w.Write([]byte(`{"1": 12.5, "6": 4.1, "144": 1.2}`))
			},
		))
		defer srv.Close()

		svc, err := NewExplorer(srv.URL, "testnet4")
		require.NoError(t, err)

		rate, err := svc.GetFeeRate()
		require.NoError(t, err)
		require.Equal(t, 12.5, rate)
	})

	t.Run("falls back to 1 sat/vB on empty estimates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				// nolint
				w.Write([]byte(`{}`))
			},
		))
		defer srv.Close()

		svc, err := NewExplorer(srv.URL, "testnet4")
		require.NoError(t, err)

		rate, err := svc.GetFeeRate()
		require.NoError(t, err)
		require.Equal(t, float64(1), rate)
	})
}

func TestBroadcast(t *testing.T) {
	t.Run("single tx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/tx", r.URL.Path)
				// nolint
				w.Write([]byte("txid123"))
			},
		))
		defer srv.Close()

		svc, err := NewExplorer(srv.URL, "testnet4")
		require.NoError(t, err)

		txid, err := svc.Broadcast("0200aabb")
		require.NoError(t, err)
		require.Equal(t, "txid123", txid)
	})

	t.Run("two txs go as a package", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/txs/package", r.URL.Path)
				var txs []string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&txs))
				require.Equal(t, []string{"0200aabb", "0200ccdd"}, txs)
				// nolint
				w.Write([]byte("txid456"))
			},
		))
		defer srv.Close()

		svc, err := NewExplorer(srv.URL, "testnet4")
		require.NoError(t, err)

		txid, err := svc.Broadcast("0200aabb", "0200ccdd")
		require.NoError(t, err)
		require.Equal(t, "txid456", txid)
	})

	t.Run("no txs", func(t *testing.T) {
		svc, err := NewExplorer("http://localhost:1", "testnet4")
		require.NoError(t, err)

		_, err = svc.Broadcast()
		require.Error(t, err)
	})
}
