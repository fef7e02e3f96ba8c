// Package prover is the client for the external zero-knowledge proof
// service. A request wraps a spell with everything the prover needs to build
// and prove the commit/spell transaction pair; proof generation runs for
// several minutes, so the HTTP timeout is deliberately long.
package prover

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Arowolokehinde/CharmVault/spell"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
)

const (
	// proveTimeout bounds a single proof request. Proof generation is
	// computationally heavy and synchronous from the caller's side.
	proveTimeout = 10 * time.Minute

	duplicateUtxoMarker = "duplicate funding UTXO"
)

var (
	// ErrUnavailable wraps transport and timeout failures talking to the
	// proof service.
	ErrUnavailable = fmt.Errorf("proof service unavailable")

	// ErrDuplicateUtxo is returned when the prover rejects a funding UTXO
	// already consumed by a prior request. Callers apply the failure
	// cooldown instead of retrying with the same output.
	ErrDuplicateUtxo = fmt.Errorf("funding UTXO already used by a previous proof")
)

// Request is the wire shape of a prove call.
type Request struct {
	Spell            *spell.Spell        `json:"spell"`
	Binaries         map[string]string   `json:"binaries"`
	PrevTxs          []map[string]string `json:"prev_txs"`
	FundingUtxo      string              `json:"funding_utxo"`
	FundingUtxoValue uint64              `json:"funding_utxo_value"`
	ChangeAddress    string              `json:"change_address"`
	FeeRate          float64             `json:"fee_rate"`
	Chain            string              `json:"chain"`
}

// TxPair is the prover's output: the commit transaction spending the funding
// output and the spell transaction carrying the proof witness. The spell tx
// bytes must never be altered after receipt, its witness signs them.
type TxPair struct {
	CommitTxHex string
	SpellTxHex  string
}

type Client struct {
	baseUrl    string
	chain      string
	binaryPath string
	httpClient *http.Client

	binaryOnce sync.Once
	binaryB64  string
	binaryErr  error
}

func NewClient(baseUrl, chain, binaryPath string) *Client {
	return &Client{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		chain:      chain,
		binaryPath: binaryPath,
		httpClient: &http.Client{Timeout: proveTimeout},
	}
}

// contractBinary loads and base64-encodes the contract binary, at most once
// per process.
func (c *Client) contractBinary() (string, error) {
	c.binaryOnce.Do(func() {
		buf, err := os.ReadFile(c.binaryPath)
		if err != nil {
			c.binaryErr = fmt.Errorf("failed to load contract binary: %s", err)
			return
		}
		c.binaryB64 = base64.StdEncoding.EncodeToString(buf)
		log.Debugf("prover: loaded contract binary (%d bytes)", len(buf))
	})
	return c.binaryB64, c.binaryErr
}

type ProveParams struct {
	Spell            *spell.Spell
	AppVk            string
	PrevTxHexes      []string
	FundingUtxo      string
	FundingUtxoValue uint64
	ChangeAddress    string
	FeeRate          float64
}

// Prove submits a spell and returns the commit/spell transaction pair.
func (c *Client) Prove(ctx context.Context, params ProveParams) (*TxPair, error) {
	binary, err := c.contractBinary()
	if err != nil {
		return nil, err
	}

	prevTxs := make([]map[string]string, 0, len(params.PrevTxHexes))
	for _, txHex := range params.PrevTxHexes {
		prevTxs = append(prevTxs, map[string]string{c.chain: txHex})
	}

	request := Request{
		Spell:            params.Spell,
		Binaries:         map[string]string{params.AppVk: binary},
		PrevTxs:          prevTxs,
		FundingUtxo:      params.FundingUtxo,
		FundingUtxoValue: params.FundingUtxoValue,
		ChangeAddress:    params.ChangeAddress,
		FeeRate:          params.FeeRate,
		Chain:            c.chain,
	}

	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(request); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, fmt.Sprintf("%s/spells/prove", c.baseUrl), body,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	// nolint
	defer resp.Body.Close()

	bodyResponse, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		if strings.Contains(string(bodyResponse), duplicateUtxoMarker) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUtxo, string(bodyResponse))
		}
		return nil, fmt.Errorf(
			"proof request failed with status %d: %s", resp.StatusCode, string(bodyResponse),
		)
	}

	return parseResponse(bodyResponse, c.chain)
}

// parseResponse normalizes the prover's two-element response. Each element
// arrives either as a bare hex string or as an object wrapping the hex under
// the chain tag.
func parseResponse(body []byte, chain string) (*TxPair, error) {
	var elements []any
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, fmt.Errorf("unexpected prover response: %s", err)
	}
	if len(elements) != 2 {
		return nil, fmt.Errorf(
			"unexpected prover response: want 2 transactions, got %d", len(elements),
		)
	}

	txs := make([]string, 2)
	for i, element := range elements {
		txHex, err := normalizeTx(element, chain)
		if err != nil {
			return nil, err
		}
		txs[i] = txHex
	}

	return &TxPair{CommitTxHex: txs[0], SpellTxHex: txs[1]}, nil
}

func normalizeTx(element any, chain string) (string, error) {
	if txHex, ok := element.(string); ok {
		return txHex, nil
	}

	var wrapped map[string]string
	if err := mapstructure.Decode(element, &wrapped); err != nil {
		return "", fmt.Errorf("unexpected transaction shape in prover response: %s", err)
	}
	if txHex, ok := wrapped[chain]; ok {
		return txHex, nil
	}
	return "", fmt.Errorf("prover response has no transaction for chain %s", chain)
}
