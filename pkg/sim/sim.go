// Package sim is the client for the external pre-execution simulation
// service. The dry run is advisory only and never authoritative for
// settlement.
package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/txbuild"
)

const defaultTimeout = 15 * time.Second

// AssetChange is one predicted balance delta from the dry run.
type AssetChange struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Result is the simulation service's verdict for one unsigned transaction.
type Result struct {
	AssetChanges []AssetChange `json:"assetChanges"`
	GasFeeUSD    float64       `json:"gasFeeUSD"`
	Warnings     []string      `json:"warnings"`
}

type request struct {
	UnsignedTx unsignedTx `json:"unsignedTx"`
	ChainID    int64      `json:"chainId"`
}

type unsignedTx struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   uint64 `json:"gas"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client posts dry runs to the simulation endpoint.
type Client struct {
	baseURL string
	chainID int64
	http    *http.Client
}

// NewClient builds a simulation client for one endpoint and chain.
func NewClient(baseURL string, chainID int64) *Client {
	return &Client{
		baseURL: baseURL,
		chainID: chainID,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Simulate submits the unsigned transaction for a dry run. A service-side
// rejection is classified as a simulation revert; transport failures become
// network timeouts where applicable.
func (c *Client) Simulate(ctx context.Context, tx *txbuild.UnsignedTx) (*Result, error) {
	body, err := json.Marshal(request{
		UnsignedTx: unsignedTx{
			To:    tx.To.Hex(),
			Data:  hexutil.Encode(tx.Data),
			Value: tx.Value.String(),
			Gas:   tx.GasHint,
		},
		ChainID: c.chainID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode simulation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/simulate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build simulation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, swaperr.Classify(fmt.Errorf("simulation request failed: %w", err), nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Message != "" {
			return nil, fmt.Errorf("%w: %s (status %d)", swaperr.ErrSimulationReverted, errResp.Message, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d", swaperr.ErrSimulationReverted, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode simulation response: %w", err)
	}
	return &result, nil
}
