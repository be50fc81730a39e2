package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LedgerClient talks to one chain's attestation ledger: the node RPC for
// receipts, the attestation index for entry lookups, and the attester relay
// for signed submissions on the direct-issuance path.
type LedgerClient struct {
	httpClient *http.Client
	config     *LedgerConfig
}

// LedgerConfig contains per-chain ledger endpoints and credentials.
type LedgerConfig struct {
	ChainID             int64  `json:"chain_id"`
	RPCURL              string `json:"rpc_url"`
	IndexerURL          string `json:"indexer_url"`
	AttesterURL         string `json:"attester_url"`
	AttestationContract string `json:"attestation_contract"`
	SigningKey          string `json:"signing_key"`
}

// TransactionLog is one log entry emitted by a confirmed transaction.
type TransactionLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// TransactionReceipt is the confirmed-execution view of a transaction.
type TransactionReceipt struct {
	TransactionHash string           `json:"transactionHash"`
	Status          string           `json:"status"`
	BlockNumber     string           `json:"blockNumber"`
	Logs            []TransactionLog `json:"logs"`
}

// AttestationEntry is a single ledger entry fetched from the index.
type AttestationEntry struct {
	UID       string    `json:"uid"`
	SchemaUID string    `json:"schema_uid"`
	Attester  string    `json:"attester"`
	Recipient string    `json:"recipient"`
	Data      string    `json:"data"` // hex-encoded payload
	Revoked   bool      `json:"revoked"`
	Time      time.Time `json:"time"`
}

// AttestRequest asks the attester relay to sign and broadcast one attestation.
type AttestRequest struct {
	SchemaUID string `json:"schema_uid"`
	Recipient string `json:"recipient"`
	Data      string `json:"data"`
	Revocable bool   `json:"revocable"`
}

// AttestResponse carries the confirmed entry id for a direct submission.
type AttestResponse struct {
	UID             string `json:"uid"`
	TransactionHash string `json:"transaction_hash"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewLedgerClient creates a ledger client for one chain.
func NewLedgerClient(config *LedgerConfig) *LedgerClient {
	return &LedgerClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     config,
	}
}

// ChainID returns the chain this client is bound to.
func (c *LedgerClient) ChainID() int64 {
	return c.config.ChainID
}

// AttestationContract returns the attestation contract address for log filtering.
func (c *LedgerClient) AttestationContract() string {
	return c.config.AttestationContract
}

// HasSigningKey reports whether this chain is configured for direct issuance.
func (c *LedgerClient) HasSigningKey() bool {
	return c.config.SigningKey != ""
}

// TransactionReceipt fetches the receipt and log entries of a transaction.
// A nil receipt with nil error means the transaction is not yet mined.
func (c *LedgerClient) TransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error) {
	var receipt *TransactionReceipt
	if err := c.rpcCall(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &receipt); err != nil {
		return nil, fmt.Errorf("failed to fetch receipt for %s: %w", txHash, err)
	}
	return receipt, nil
}

// WaitForConfirmation polls until the transaction has a receipt or the context
// expires. Mirrors the one-confirmation wait required before decoding.
func (c *LedgerClient) WaitForConfirmation(ctx context.Context, txHash string) (*TransactionReceipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("confirmation wait for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetAttestation fetches one ledger entry by its UID from the index.
func (c *LedgerClient) GetAttestation(ctx context.Context, uid string) (*AttestationEntry, error) {
	url := fmt.Sprintf("%s/attestations/%s", strings.TrimSuffix(c.config.IndexerURL, "/"), uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attestation index request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attestation index returned %d for %s", resp.StatusCode, uid)
	}

	var entry AttestationEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode attestation %s: %w", uid, err)
	}
	return &entry, nil
}

// Attest submits one signed attestation through the relay and blocks until it
// confirms, returning the new entry UID.
func (c *LedgerClient) Attest(ctx context.Context, req *AttestRequest) (*AttestResponse, error) {
	responses, err := c.MultiAttest(ctx, []*AttestRequest{req})
	if err != nil {
		return nil, err
	}
	return responses[0], nil
}

// MultiAttest submits a batch in one transaction. Entry UIDs in the response
// correlate to the request slice purely by position; callers zip by index.
func (c *LedgerClient) MultiAttest(ctx context.Context, reqs []*AttestRequest) ([]*AttestResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"chain_id":     c.config.ChainID,
		"attestations": reqs,
	})
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(c.config.AttesterURL, "/") + "/attestations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.SigningKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("attester request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("attester returned %d", resp.StatusCode)
	}

	var out struct {
		Attestations []*AttestResponse `json:"attestations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode attester response: %w", err)
	}
	if len(out.Attestations) != len(reqs) {
		return nil, fmt.Errorf("attester returned %d entries for %d requests", len(out.Attestations), len(reqs))
	}
	return out.Attestations, nil
}

func (c *LedgerClient) rpcCall(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, result)
}
