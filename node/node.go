// Package node is a minimal JSON-RPC client for the Bitcoin full node,
// used for exactly one thing: atomic submission of the commit/spell
// transaction pair. Submitting the two transactions sequentially makes the
// second one a double-spend of a not-yet-relaxed mempool ancestor, so
// package submission is the only correct mechanism.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Arowolokehinde/CharmVault/txutils"
	log "github.com/sirupsen/logrus"
)

const submitTimeout = 30 * time.Second

// ErrUnreachable marks transport failures, as opposed to rejections the
// node itself produced.
var ErrUnreachable = errors.New("node unreachable")

type Client struct {
	url        string
	user       string
	pass       string
	httpClient *http.Client
}

func NewClient(url, user, pass string) *Client {
	return &Client{
		url:        url,
		user:       user,
		pass:       pass,
		httpClient: &http.Client{Timeout: submitTimeout},
	}
}

type rpcRequest struct {
	JsonRpc string `json:"jsonrpc"`
	Id      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type txResult struct {
	Txid  string `json:"txid"`
	Error string `json:"error,omitempty"`
}

type submitPackageResult struct {
	PackageMsg string              `json:"package_msg"`
	TxResults  map[string]txResult `json:"tx-results"`
}

// SubmitPackage broadcasts the ordered transaction pair atomically and
// returns the spell (second) transaction id. The id is taken from the node's
// result map when possible and recomputed from the raw transaction
// otherwise.
func (c *Client) SubmitPackage(ctx context.Context, commitTxHex, spellTxHex string) (string, error) {
	raw, err := c.call(ctx, "submitpackage", []any{[]string{commitTxHex, spellTxHex}})
	if err != nil {
		return "", err
	}

	var result submitPackageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unexpected submitpackage result: %s", err)
	}

	if result.PackageMsg != "success" {
		var details []string
		for wtxid, tx := range result.TxResults {
			if tx.Error != "" {
				details = append(details, fmt.Sprintf("%s: %s", wtxid, tx.Error))
			}
		}
		return "", fmt.Errorf(
			"package rejected by node: %s (%s)", result.PackageMsg, strings.Join(details, "; "),
		)
	}

	spellTxid, err := txutils.TxidFromHex(spellTxHex)
	if err != nil {
		return "", fmt.Errorf("failed to compute spell txid: %s", err)
	}

	for _, tx := range result.TxResults {
		if tx.Txid == spellTxid {
			return tx.Txid, nil
		}
	}
	// Some nodes omit already-known transactions from the result map, the
	// recomputed id is still authoritative.
	log.Debugf("node: spell txid %s not in submitpackage results", spellTxid)
	return spellTxid, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(rpcRequest{
		JsonRpc: "2.0",
		Id:      "CharmVault",
		Method:  method,
		Params:  params,
	}); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	// nolint
	defer resp.Body.Close()

	bodyResponse, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf(
			"node rejected RPC credentials, check the configured rpc user and password",
		)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(bodyResponse, &rpcResp); err != nil {
		return nil, fmt.Errorf(
			"unexpected node response (status %d): %s", resp.StatusCode, string(bodyResponse),
		)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf(
			"node rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message,
		)
	}

	return rpcResp.Result, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf(
			"%w: node did not answer in time, check that it is running and synced: %s",
			ErrUnreachable, err,
		)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf(
			"%w: cannot reach the node RPC endpoint, check that the node is running "+
				"and the rpc port is reachable: %s", ErrUnreachable, err,
		)
	}
	return fmt.Errorf("%w: %s", ErrUnreachable, err)
}
