package credentials

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(repo *MockRepository) *Service {
	return NewService(new(MockReader), repo, NewCalculator("https://app.example.com"),
		&staticChainProvider{}, new(MockPublisher), zap.NewNop())
}

func TestListReconcilableIncludesRestedProcessedBatches(t *testing.T) {
	mockRepo := new(MockRepository)

	subject := uuid.New()
	unprocessed := pendingTx(t, 5, map[uuid.UUID][]CredentialDescriptor{
		subject: {descriptorFor(subject, "0xAAA")},
	})
	rested := pendingTx(t, 6, map[uuid.UUID][]CredentialDescriptor{
		subject: {descriptorFor(subject, "0xBBB")},
	})
	rested.Processed = true

	// Partially confirmed batches stay reachable by the worker: the listing
	// asks for processed rows past the rest interval, not only unprocessed.
	mockRepo.On("ListReconcilablePending", mock.Anything, retryProcessedAfter).
		Return([]PendingBatchTransaction{*unprocessed, *rested}, nil)

	rows, err := newTestService(mockRepo).ListReconcilable(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].Processed)

	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "ListUnprocessedPending")
}
