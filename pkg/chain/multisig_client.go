package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MultisigClient is a read-only client for the multisig wallet transaction
// service: transaction status by hash and current wallet nonce.
type MultisigClient struct {
	httpClient *http.Client
	config     *MultisigConfig
}

// MultisigConfig contains the per-chain multisig service endpoint.
type MultisigConfig struct {
	ChainID    int64  `json:"chain_id"`
	ServiceURL string `json:"service_url"`
}

// MultisigTransaction is the service's view of one proposed transaction.
type MultisigTransaction struct {
	SafeAddress     string     `json:"safe"`
	TransactionHash string     `json:"safeTxHash"`
	ExecutionHash   string     `json:"transactionHash"`
	Nonce           int64      `json:"nonce"`
	IsExecuted      bool       `json:"isExecuted"`
	IsSuccessful    *bool      `json:"isSuccessful"`
	ExecutionDate   *time.Time `json:"executionDate"`
}

// WalletInfo is the service's view of one multisig wallet.
type WalletInfo struct {
	Address   string   `json:"address"`
	Nonce     int64    `json:"nonce"`
	Threshold int      `json:"threshold"`
	Owners    []string `json:"owners"`
}

// NewMultisigClient creates a multisig service client for one chain.
func NewMultisigClient(config *MultisigConfig) *MultisigClient {
	return &MultisigClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     config,
	}
}

// GetTransaction fetches a multisig transaction by its hash.
func (c *MultisigClient) GetTransaction(ctx context.Context, txHash string) (*MultisigTransaction, error) {
	var tx MultisigTransaction
	path := fmt.Sprintf("/api/v1/multisig-transactions/%s/", txHash)
	if err := c.get(ctx, path, &tx); err != nil {
		return nil, fmt.Errorf("failed to fetch multisig transaction %s: %w", txHash, err)
	}
	return &tx, nil
}

// GetWalletInfo fetches wallet state, including the current nonce.
func (c *MultisigClient) GetWalletInfo(ctx context.Context, address string) (*WalletInfo, error) {
	var info WalletInfo
	path := fmt.Sprintf("/api/v1/safes/%s/", address)
	if err := c.get(ctx, path, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch wallet info for %s: %w", address, err)
	}
	return &info, nil
}

func (c *MultisigClient) get(ctx context.Context, path string, result interface{}) error {
	url := strings.TrimSuffix(c.config.ServiceURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("multisig service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
