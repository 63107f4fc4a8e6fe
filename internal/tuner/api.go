package tuner

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
)

// ActionSetGasEstimates is the signed action accepted by relayd's admin
// endpoint.
const ActionSetGasEstimates = "admin.gas_estimates"

// GasEstimatesPayload is the body of ActionSetGasEstimates. Nil fields are
// left unchanged.
type GasEstimatesPayload struct {
	MissingGasEstimate      *uint64 `json:"missing_gas_estimate,omitempty"`
	CalldataByteGasEstimate *uint64 `json:"calldata_byte_gas_estimate,omitempty"`
}

// APIClient reads exec receipts from relayd and, given an admin key, updates
// the sandbox's gas estimates.
type APIClient struct {
	baseURL string
	key     *ecdsa.PrivateKey
	http    *http.Client
}

// NewAPIClient returns a client for the relayd at baseURL. key may be nil
// for read-only use.
func NewAPIClient(baseURL string, key *ecdsa.PrivateKey) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Observe implements ReceiptSource; id is an exec hash.
func (c *APIClient) Observe(ctx context.Context, id common.Hash) (*Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sandbox/receipts/"+id.Hex(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relayd GetReceipt %s: status %d", id.Hex(), resp.StatusCode)
	}
	var rc sandbox.GasReceipt
	if err := json.NewDecoder(resp.Body).Decode(&rc); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	current, err := c.currentEstimate(ctx)
	if err != nil {
		return nil, err
	}
	return &Observation{
		ExecHash:           rc.ExecHash,
		TxGasUsed:          rc.TxGasUsed,
		ReportedGasUsed:    rc.ReportedGasUsed,
		MissingGasEstimate: current,
	}, nil
}

func (c *APIClient) currentEstimate(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sandbox/gas-estimates", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("relayd GetGasEstimates: status %d", resp.StatusCode)
	}
	var est sandbox.Estimates
	if err := json.NewDecoder(resp.Body).Decode(&est); err != nil {
		return 0, fmt.Errorf("decode estimates: %w", err)
	}
	return est.MissingGasEstimate, nil
}

// SetMissingGasEstimate submits v through the signed admin endpoint.
func (c *APIClient) SetMissingGasEstimate(ctx context.Context, v uint64) error {
	if c.key == nil {
		return fmt.Errorf("no admin key configured")
	}
	payload, err := json.Marshal(GasEstimatesPayload{MissingGasEstimate: &v})
	if err != nil {
		return err
	}
	headers, err := auth.EncodeHeaders(auth.SignedRequest{
		Action:    ActionSetGasEstimates,
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
		Nonce:     uuid.NewString(),
		Payload:   payload,
	}, c.key)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admin/gas-estimates", bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relayd SetGasEstimates: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
