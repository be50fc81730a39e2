package credentials

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"credence/workspace-portal/credentials-engine/pkg/chain"
)

func pendingTx(t *testing.T, nonce int64, descriptors map[uuid.UUID][]CredentialDescriptor) *PendingBatchTransaction {
	t.Helper()
	pending := &PendingBatchTransaction{
		ID:              uuid.New(),
		ChainID:         10,
		SafeAddress:     "0xSAFE",
		TransactionHash: "0xhash1",
		Nonce:           nonce,
		SchemaUID:       "0xschema",
		Kind:            KindProposal,
	}
	require.NoError(t, pending.SetDescriptorMap(descriptors))
	return pending
}

func newReconciler(repo *MockRepository, multisig *MockMultisig, decoder *MockDecoder) *Reconciler {
	provider := &staticChainProvider{multisig: multisig}
	return NewReconciler(provider, repo, decoder, zap.NewNop())
}

func TestReconcileStillPending(t *testing.T) {
	mockRepo := new(MockRepository)
	mockMultisig := new(MockMultisig)
	mockDecoder := new(MockDecoder)

	subject := uuid.New()
	pending := pendingTx(t, 5, map[uuid.UUID][]CredentialDescriptor{
		subject: {descriptorFor(subject, "0xAAA")},
	})

	mockRepo.On("GetPendingByHash", mock.Anything, "0xhash1").Return(pending, nil)
	mockMultisig.On("GetTransaction", mock.Anything, "0xhash1").
		Return(&chain.MultisigTransaction{IsExecuted: false, Nonce: 5}, nil)
	mockMultisig.On("GetWalletInfo", mock.Anything, "0xSAFE").
		Return(&chain.WalletInfo{Address: "0xSAFE", Nonce: 5}, nil)

	result, err := newReconciler(mockRepo, mockMultisig, mockDecoder).
		Reconcile(context.Background(), 10, "0xhash1")

	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, 1, result.Remaining)
	mockRepo.AssertNotCalled(t, "DeletePending")
	mockRepo.AssertNotCalled(t, "SavePending")
}

func TestReconcileReplacedTransaction(t *testing.T) {
	mockRepo := new(MockRepository)
	mockMultisig := new(MockMultisig)
	mockDecoder := new(MockDecoder)

	subject := uuid.New()
	pending := pendingTx(t, 5, map[uuid.UUID][]CredentialDescriptor{
		subject: {descriptorFor(subject, "0xAAA")},
	})

	mockRepo.On("GetPendingByHash", mock.Anything, "0xhash1").Return(pending, nil)
	// Never executed, but the wallet nonce advanced past the recorded nonce:
	// the transaction was replaced or dropped.
	mockMultisig.On("GetTransaction", mock.Anything, "0xhash1").
		Return(&chain.MultisigTransaction{IsExecuted: false, Nonce: 5}, nil)
	mockMultisig.On("GetWalletInfo", mock.Anything, "0xSAFE").
		Return(&chain.WalletInfo{Address: "0xSAFE", Nonce: 6}, nil)
	mockRepo.On("DeletePending", mock.Anything, pending.ID).Return(nil)

	result, err := newReconciler(mockRepo, mockMultisig, mockDecoder).
		Reconcile(context.Background(), 10, "0xhash1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeReplaced, result.Outcome)
	mockRepo.AssertExpectations(t)
}

func TestReconcilePartialConfirmation(t *testing.T) {
	mockRepo := new(MockRepository)
	mockMultisig := new(MockMultisig)
	mockDecoder := new(MockDecoder)

	subject := uuid.New()
	d1 := descriptorFor(subject, "0xAAA")
	d2 := descriptorFor(subject, "0xBBB")
	d3 := descriptorFor(subject, "0xCCC")
	pending := pendingTx(t, 5, map[uuid.UUID][]CredentialDescriptor{
		subject: {d1, d2, d3},
	})

	mockRepo.On("GetPendingByHash", mock.Anything, "0xhash1").Return(pending, nil)
	mockMultisig.On("GetTransaction", mock.Anything, "0xhash1").
		Return(&chain.MultisigTransaction{IsExecuted: true, ExecutionHash: "0xexec1"}, nil)
	// Only 2 of the 3 promised entries were found on chain.
	mockDecoder.On("ProcessExecution", mock.Anything, pending, "0xexec1").
		Return(map[uuid.UUID][]string{subject: {d1.Key(), d2.Key()}}, nil)
	mockRepo.On("SavePending", mock.Anything, pending).Return(nil)

	result, err := newReconciler(mockRepo, mockMultisig, mockDecoder).
		Reconcile(context.Background(), 10, "0xhash1")

	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Equal(t, 2, result.Confirmed)
	assert.Equal(t, 1, result.Remaining)
	assert.True(t, pending.Processed)

	grouped, err := pending.DescriptorMap()
	require.NoError(t, err)
	require.Len(t, grouped[subject], 1)
	assert.Equal(t, d3.Key(), grouped[subject][0].Key())
	mockRepo.AssertNotCalled(t, "DeletePending")
}

func TestReconcileFullConfirmationDeletesPending(t *testing.T) {
	mockRepo := new(MockRepository)
	mockMultisig := new(MockMultisig)
	mockDecoder := new(MockDecoder)

	subject := uuid.New()
	d1 := descriptorFor(subject, "0xAAA")
	pending := pendingTx(t, 5, map[uuid.UUID][]CredentialDescriptor{
		subject: {d1},
	})

	mockRepo.On("GetPendingByHash", mock.Anything, "0xhash1").Return(pending, nil)
	mockMultisig.On("GetTransaction", mock.Anything, "0xhash1").
		Return(&chain.MultisigTransaction{IsExecuted: true, ExecutionHash: "0xexec1"}, nil)
	mockDecoder.On("ProcessExecution", mock.Anything, pending, "0xexec1").
		Return(map[uuid.UUID][]string{subject: {d1.Key()}}, nil)
	mockRepo.On("DeletePending", mock.Anything, pending.ID).Return(nil)

	result, err := newReconciler(mockRepo, mockMultisig, mockDecoder).
		Reconcile(context.Background(), 10, "0xhash1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Equal(t, 1, result.Confirmed)
	assert.Equal(t, 0, result.Remaining)
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "SavePending")
}

func TestReconcileChainIDMismatch(t *testing.T) {
	mockRepo := new(MockRepository)
	mockMultisig := new(MockMultisig)

	subject := uuid.New()
	pending := pendingTx(t, 5, map[uuid.UUID][]CredentialDescriptor{
		subject: {descriptorFor(subject, "0xAAA")},
	})

	mockRepo.On("GetPendingByHash", mock.Anything, "0xhash1").Return(pending, nil)

	// The record lives on chain 10; a caller naming another chain must be
	// rejected instead of querying that chain's multisig service.
	_, err := newReconciler(mockRepo, mockMultisig, new(MockDecoder)).
		Reconcile(context.Background(), 5, "0xhash1")

	assert.ErrorIs(t, err, ErrInvalidInput)
	mockMultisig.AssertNotCalled(t, "GetTransaction")
	mockMultisig.AssertNotCalled(t, "GetWalletInfo")
}

func TestReconcileUnknownHash(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("GetPendingByHash", mock.Anything, "0xmissing").
		Return(nil, ErrNotFound)

	_, err := newReconciler(mockRepo, new(MockMultisig), new(MockDecoder)).
		Reconcile(context.Background(), 10, "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}
