// Package explorer provides read-only access to blockchain state through an
// esplora/mempool.space style REST API, plus an optional WebSocket block
// tracker used to observe deadline passage without polling.
package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Arowolokehinde/CharmVault/internal/utils"
	"github.com/Arowolokehinde/CharmVault/types"
	log "github.com/sirupsen/logrus"
)

// Explorer serves transaction lookup, address UTXO sets, block height and
// fee estimates, and doubles as a fallback submitter when the node RPC is
// unreachable.
type Explorer interface {
	// Start begins block tracking when it is enabled.
	Start()

	// GetTxHex retrieves the raw transaction hex for a given transaction ID.
	GetTxHex(txid string) (string, error)

	// GetUtxos retrieves the unspent outputs of an address.
	GetUtxos(addr string) ([]Utxo, error)

	// GetBlockHeight returns the current chain tip height.
	GetBlockHeight() (uint64, error)

	// GetFeeRate retrieves the current recommended fee rate in sat/vB.
	GetFeeRate() (float64, error)

	// Broadcast submits one or more raw transactions. Two or more are sent
	// as an atomic package.
	Broadcast(txs ...string) (string, error)

	// GetBlockEvents returns a channel receiving new chain tips while
	// tracking is enabled.
	GetBlockEvents() <-chan types.BlockEvent

	// BaseUrl returns the base URL of the explorer service.
	BaseUrl() string

	// Stop shuts down block tracking.
	Stop()
}

type explorerSvc struct {
	baseUrl      string
	net          string
	cache        *utils.Cache[string]
	withTracker  bool
	pollInterval time.Duration
	blockCh      chan types.BlockEvent
	stopTracking func()
}

func NewExplorer(baseUrl, network string, opts ...Option) (Explorer, error) {
	if len(baseUrl) == 0 {
		return nil, fmt.Errorf("missing explorer base url")
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &explorerSvc{
		baseUrl:      strings.TrimRight(baseUrl, "/"),
		net:          network,
		cache:        utils.NewCache[string](),
		withTracker:  options.withTracker,
		pollInterval: options.pollInterval,
		blockCh:      make(chan types.BlockEvent, 10),
	}, nil
}

func (e *explorerSvc) BaseUrl() string {
	return e.baseUrl
}

func (e *explorerSvc) Start() {
	// Nothing to do if tracking disabled.
	if !e.withTracker {
		return
	}
	// Nothing to do if already started.
	if e.stopTracking != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.stopTracking = cancel
	go e.trackBlocks(ctx)
	log.Debug("explorer: started with block tracking")
}

func (e *explorerSvc) Stop() {
	if e.stopTracking == nil {
		return
	}
	e.stopTracking()
	e.stopTracking = nil
	log.Debug("explorer: stopped")
}

func (e *explorerSvc) GetBlockEvents() <-chan types.BlockEvent {
	return e.blockCh
}

func (e *explorerSvc) GetTxHex(txid string) (string, error) {
	if hex, ok := e.cache.Get(txid); ok {
		return hex, nil
	}

	resp, err := http.Get(fmt.Sprintf("%s/tx/%s/hex", e.baseUrl, txid))
	if err != nil {
		return "", err
	}
	// nolint
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get tx hex: %s", string(body))
	}

	txHex := strings.TrimSpace(string(body))
	e.cache.Set(txid, txHex)
	return txHex, nil
}

func (e *explorerSvc) GetUtxos(addr string) ([]Utxo, error) {
	resp, err := http.Get(fmt.Sprintf("%s/address/%s/utxo", e.baseUrl, addr))
	if err != nil {
		return nil, err
	}
	// nolint
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get utxos: %s", string(body))
	}

	utxos := []Utxo{}
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, fmt.Errorf("failed to parse utxos: %s", err)
	}
	return utxos, nil
}

func (e *explorerSvc) GetBlockHeight() (uint64, error) {
	resp, err := http.Get(fmt.Sprintf("%s/blocks/tip/height", e.baseUrl))
	if err != nil {
		return 0, err
	}
	// nolint
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to get block height: %s", string(body))
	}

	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block height: %s", err)
	}
	return height, nil
}

func (e *explorerSvc) GetFeeRate() (float64, error) {
	resp, err := http.Get(fmt.Sprintf("%s/fee-estimates", e.baseUrl))
	if err != nil {
		return 0, err
	}
	// nolint
	defer resp.Body.Close()

	var response map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to get fee rate: %s", resp.Status)
	}
	if len(response) == 0 {
		return 1, nil
	}
	return response["1"], nil
}

func (e *explorerSvc) Broadcast(txs ...string) (string, error) {
	if len(txs) == 0 {
		return "", fmt.Errorf("no txs to broadcast")
	}

	if len(txs) == 1 {
		txid, err := e.broadcast(txs[0])
		if err != nil {
			if strings.Contains(
				strings.ToLower(err.Error()), "transaction already in block chain",
			) {
				return txid, nil
			}
			return "", err
		}
		return txid, nil
	}

	return e.broadcastPackage(txs...)
}

func (e *explorerSvc) broadcast(txHex string) (string, error) {
	body := bytes.NewBuffer([]byte(txHex))

	resp, err := http.Post(fmt.Sprintf("%s/tx", e.baseUrl), "text/plain", body)
	if err != nil {
		return "", err
	}
	// nolint
	defer resp.Body.Close()
	bodyResponse, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to broadcast: %s", string(bodyResponse))
	}

	return strings.TrimSpace(string(bodyResponse)), nil
}

func (e *explorerSvc) broadcastPackage(txs ...string) (string, error) {
	url := fmt.Sprintf("%s/txs/package", e.baseUrl)

	// body is a json array of txs hex
	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(txs); err != nil {
		return "", err
	}

	resp, err := http.Post(url, "application/json", body)
	if err != nil {
		return "", err
	}
	// nolint
	defer resp.Body.Close()

	bodyResponse, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to broadcast package: %s", string(bodyResponse))
	}

	return strings.TrimSpace(string(bodyResponse)), nil
}
