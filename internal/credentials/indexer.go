package credentials

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchSubmissionRequest describes one broadcast-but-unconfirmed multisig
// transaction and the already-deduplicated descriptors it promises.
type BatchSubmissionRequest struct {
	ChainID         int64                  `json:"chain_id"`
	SafeAddress     string                 `json:"safe_address"`
	TransactionHash string                 `json:"transaction_hash"`
	Nonce           int64                  `json:"nonce"`
	SchemaUID       string                 `json:"schema_uid"`
	Kind            CredentialKind         `json:"kind"`
	Descriptors     []CredentialDescriptor `json:"descriptors"`
}

// Indexer durably records broadcast multisig submissions. The resulting row
// is the memory of "promised but unconfirmed" work that the calculator
// subtracts while signatures are still being collected.
type Indexer struct {
	repo   Repository
	logger *zap.Logger
}

// NewIndexer creates a batch submission indexer.
func NewIndexer(repo Repository, logger *zap.Logger) *Indexer {
	return &Indexer{repo: repo, logger: logger}
}

// RecordBatchSubmission groups the descriptors by subject and persists a new
// pending transaction with processed=false.
func (i *Indexer) RecordBatchSubmission(ctx context.Context, req *BatchSubmissionRequest) (*PendingBatchTransaction, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("credential kind %q: %w", req.Kind, ErrInvalidInput)
	}
	if len(req.Descriptors) == 0 {
		return nil, fmt.Errorf("empty descriptor batch: %w", ErrInvalidInput)
	}

	grouped := make(map[uuid.UUID][]CredentialDescriptor)
	for _, d := range req.Descriptors {
		grouped[d.SubjectID] = append(grouped[d.SubjectID], d)
	}

	pending := &PendingBatchTransaction{
		ChainID:         req.ChainID,
		SafeAddress:     req.SafeAddress,
		TransactionHash: req.TransactionHash,
		Nonce:           req.Nonce,
		SchemaUID:       req.SchemaUID,
		Kind:            req.Kind,
		Processed:       false,
	}
	if err := pending.SetDescriptorMap(grouped); err != nil {
		return nil, err
	}

	if err := i.repo.CreatePending(ctx, pending); err != nil {
		return nil, err
	}

	i.logger.Info("Recorded pending batch transaction",
		zap.String("transaction_hash", req.TransactionHash),
		zap.Int64("chain_id", req.ChainID),
		zap.Int64("nonce", req.Nonce),
		zap.Int("descriptors", len(req.Descriptors)),
		zap.Int("subjects", len(grouped)))
	return pending, nil
}
