package credentials

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"credence/workspace-portal/credentials-engine/internal/notifications"
	"credence/workspace-portal/credentials-engine/internal/workspace"
	"credence/workspace-portal/credentials-engine/pkg/chain"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListTemplates(ctx context.Context, spaceID uuid.UUID) ([]CredentialTemplate, error) {
	args := m.Called(ctx, spaceID)
	return args.Get(0).([]CredentialTemplate), args.Error(1)
}

func (m *MockRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*CredentialTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CredentialTemplate), args.Error(1)
}

func (m *MockRepository) ListIssuedForSubject(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) ([]IssuedCredential, error) {
	args := m.Called(ctx, kind, subjectID)
	return args.Get(0).([]IssuedCredential), args.Error(1)
}

func (m *MockRepository) GetIssuedByAttestationUID(ctx context.Context, chainID int64, uid string) (*IssuedCredential, error) {
	args := m.Called(ctx, chainID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*IssuedCredential), args.Error(1)
}

func (m *MockRepository) UpsertIssued(ctx context.Context, credential *IssuedCredential) (bool, error) {
	args := m.Called(ctx, credential)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreatePending(ctx context.Context, tx *PendingBatchTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockRepository) GetPendingByHash(ctx context.Context, txHash string) (*PendingBatchTransaction, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PendingBatchTransaction), args.Error(1)
}

func (m *MockRepository) ListUnprocessedPending(ctx context.Context) ([]PendingBatchTransaction, error) {
	args := m.Called(ctx)
	return args.Get(0).([]PendingBatchTransaction), args.Error(1)
}

func (m *MockRepository) ListReconcilablePending(ctx context.Context, retryAfter time.Duration) ([]PendingBatchTransaction, error) {
	args := m.Called(ctx, retryAfter)
	return args.Get(0).([]PendingBatchTransaction), args.Error(1)
}

func (m *MockRepository) SavePending(ctx context.Context, tx *PendingBatchTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) InFlightKeysForSubject(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) (map[string]bool, error) {
	args := m.Called(ctx, kind, subjectID)
	return args.Get(0).(map[string]bool), args.Error(1)
}

// MockReader is a mock implementation of the workspace Reader interface
type MockReader struct {
	mock.Mock
}

func (m *MockReader) GetProposalSnapshot(ctx context.Context, proposalID uuid.UUID) (*workspace.ProposalSnapshot, error) {
	args := m.Called(ctx, proposalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workspace.ProposalSnapshot), args.Error(1)
}

func (m *MockReader) GetRewardApplicationSnapshot(ctx context.Context, applicationID uuid.UUID) (*workspace.RewardApplicationSnapshot, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workspace.RewardApplicationSnapshot), args.Error(1)
}

func (m *MockReader) GetSpaceConfig(ctx context.Context, spaceID uuid.UUID) (*workspace.SpaceConfig, error) {
	args := m.Called(ctx, spaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workspace.SpaceConfig), args.Error(1)
}

// MockLedger is a mock implementation of the AttestationLedger interface
type MockLedger struct {
	mock.Mock
	chainID  int64
	contract string
	signing  bool
}

func (m *MockLedger) ChainID() int64 {
	return m.chainID
}

func (m *MockLedger) AttestationContract() string {
	return m.contract
}

func (m *MockLedger) HasSigningKey() bool {
	return m.signing
}

func (m *MockLedger) WaitForConfirmation(ctx context.Context, txHash string) (*chain.TransactionReceipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.TransactionReceipt), args.Error(1)
}

func (m *MockLedger) GetAttestation(ctx context.Context, uid string) (*chain.AttestationEntry, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.AttestationEntry), args.Error(1)
}

func (m *MockLedger) Attest(ctx context.Context, req *chain.AttestRequest) (*chain.AttestResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.AttestResponse), args.Error(1)
}

func (m *MockLedger) MultiAttest(ctx context.Context, reqs []*chain.AttestRequest) ([]*chain.AttestResponse, error) {
	args := m.Called(ctx, reqs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*chain.AttestResponse), args.Error(1)
}

// MockMultisig is a mock implementation of the MultisigService interface
type MockMultisig struct {
	mock.Mock
}

func (m *MockMultisig) GetTransaction(ctx context.Context, txHash string) (*chain.MultisigTransaction, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.MultisigTransaction), args.Error(1)
}

func (m *MockMultisig) GetWalletInfo(ctx context.Context, address string) (*chain.WalletInfo, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.WalletInfo), args.Error(1)
}

// MockDecoder is a mock implementation of the ExecutionDecoder interface
type MockDecoder struct {
	mock.Mock
}

func (m *MockDecoder) ProcessExecution(ctx context.Context, pending *PendingBatchTransaction, executionHash string) (map[uuid.UUID][]string, error) {
	args := m.Called(ctx, pending, executionHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]string), args.Error(1)
}

// MockPublisher records published events
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishCredentialCreated(ctx context.Context, event *notifications.CredentialCreatedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// staticChainProvider serves fixed mocks per chain id
type staticChainProvider struct {
	ledger   AttestationLedger
	multisig MultisigService
}

func (p *staticChainProvider) Ledger(int64) (AttestationLedger, error) {
	return p.ledger, nil
}

func (p *staticChainProvider) Multisig(int64) (MultisigService, error) {
	return p.multisig, nil
}
