package chain

import (
	"fmt"

	"go.uber.org/zap"
)

// Clients bundles the long-lived service clients for one chain.
type Clients struct {
	Ledger   *LedgerClient
	Multisig *MultisigClient
}

// Registry holds per-chain clients, built once at process start and passed by
// reference into each operation. No ambient global singletons.
type Registry struct {
	chains map[int64]*Clients
	logger *zap.Logger
}

// ChainConfig is the full per-chain configuration block.
type ChainConfig struct {
	Ledger   LedgerConfig   `json:"ledger"`
	Multisig MultisigConfig `json:"multisig"`
}

// NewRegistry builds clients for every configured chain.
func NewRegistry(configs []ChainConfig, logger *zap.Logger) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}

	chains := make(map[int64]*Clients, len(configs))
	for i := range configs {
		cfg := &configs[i]
		if cfg.Ledger.ChainID == 0 {
			return nil, fmt.Errorf("chain config %d has no chain id", i)
		}
		if _, exists := chains[cfg.Ledger.ChainID]; exists {
			return nil, fmt.Errorf("duplicate chain id %d", cfg.Ledger.ChainID)
		}
		cfg.Multisig.ChainID = cfg.Ledger.ChainID
		chains[cfg.Ledger.ChainID] = &Clients{
			Ledger:   NewLedgerClient(&cfg.Ledger),
			Multisig: NewMultisigClient(&cfg.Multisig),
		}
		logger.Info("Registered chain clients",
			zap.Int64("chain_id", cfg.Ledger.ChainID),
			zap.String("attestation_contract", cfg.Ledger.AttestationContract))
	}

	return &Registry{chains: chains, logger: logger}, nil
}

// Get returns the clients for a chain id.
func (r *Registry) Get(chainID int64) (*Clients, error) {
	clients, ok := r.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("no clients registered for chain %d", chainID)
	}
	return clients, nil
}

// ChainIDs lists all registered chains.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
