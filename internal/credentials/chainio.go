package credentials

import (
	"context"
	"fmt"

	"credence/workspace-portal/credentials-engine/pkg/attestation"
	"credence/workspace-portal/credentials-engine/pkg/chain"
)

// AttestationLedger is the slice of the per-chain ledger client the engine
// consumes. Satisfied by *chain.LedgerClient.
type AttestationLedger interface {
	ChainID() int64
	AttestationContract() string
	HasSigningKey() bool
	WaitForConfirmation(ctx context.Context, txHash string) (*chain.TransactionReceipt, error)
	GetAttestation(ctx context.Context, uid string) (*chain.AttestationEntry, error)
	Attest(ctx context.Context, req *chain.AttestRequest) (*chain.AttestResponse, error)
	MultiAttest(ctx context.Context, reqs []*chain.AttestRequest) ([]*chain.AttestResponse, error)
}

// MultisigService is the read-only multisig wallet service dependency.
// Satisfied by *chain.MultisigClient.
type MultisigService interface {
	GetTransaction(ctx context.Context, txHash string) (*chain.MultisigTransaction, error)
	GetWalletInfo(ctx context.Context, address string) (*chain.WalletInfo, error)
}

// ChainProvider resolves per-chain clients. Production uses the registry
// built at process start; tests substitute mocks.
type ChainProvider interface {
	Ledger(chainID int64) (AttestationLedger, error)
	Multisig(chainID int64) (MultisigService, error)
}

type registryProvider struct {
	registry *chain.Registry
}

// NewRegistryProvider adapts the chain client registry to the engine's
// provider interface.
func NewRegistryProvider(registry *chain.Registry) ChainProvider {
	return &registryProvider{registry: registry}
}

func (p *registryProvider) Ledger(chainID int64) (AttestationLedger, error) {
	clients, err := p.registry.Get(chainID)
	if err != nil {
		return nil, err
	}
	return clients.Ledger, nil
}

func (p *registryProvider) Multisig(chainID int64) (MultisigService, error) {
	clients, err := p.registry.Get(chainID)
	if err != nil {
		return nil, err
	}
	return clients.Multisig, nil
}

// payloadSchema returns the field layout for a credential kind. The resolver
// only participates in UID derivation, not in payload layout, so it is left
// empty here.
func payloadSchema(kind CredentialKind) (attestation.Schema, error) {
	switch kind {
	case KindProposal:
		return attestation.Schema{Fields: attestation.ProposalSchema("").Fields}, nil
	case KindReward:
		return attestation.Schema{Fields: attestation.RewardSchema("").Fields}, nil
	}
	return attestation.Schema{}, fmt.Errorf("credential kind %q: %w", kind, ErrInvalidInput)
}
