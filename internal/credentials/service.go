package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"credence/workspace-portal/credentials-engine/internal/notifications"
	"credence/workspace-portal/credentials-engine/internal/workspace"
)

// IssueResult is the outcome of one issuance pass over a subject. When the
// space signs through a multisig wallet, Planned carries the descriptors the
// caller must broadcast through its safe and then record with
// RecordBatchSubmission; otherwise Issued carries the confirmed rows.
type IssueResult struct {
	Kind      CredentialKind         `json:"kind"`
	SubjectID uuid.UUID              `json:"subject_id"`
	Planned   []CredentialDescriptor `json:"planned"`
	Issued    []IssuedCredential     `json:"issued"`
	Submitted bool                   `json:"submitted"`
}

// Service wires the snapshot reader, calculator, issuer, indexer, and
// reconciler into the engine's public operations. All coordination state
// lives in the durable store; any operation may run concurrently on multiple
// workers.
type Service struct {
	reader     workspace.Reader
	repo       Repository
	calculator *Calculator
	issuer     *DirectIssuer
	indexer    *Indexer
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewService creates the issuance service.
func NewService(
	reader workspace.Reader,
	repo Repository,
	calculator *Calculator,
	chains ChainProvider,
	publisher notifications.Publisher,
	logger *zap.Logger,
) *Service {
	issuer := NewDirectIssuer(chains, repo, publisher, logger)
	decoder := NewDecoder(chains, repo, reader, publisher, logger)
	return &Service{
		reader:     reader,
		repo:       repo,
		calculator: calculator,
		issuer:     issuer,
		indexer:    NewIndexer(repo, logger),
		reconciler: NewReconciler(chains, repo, decoder, logger),
		logger:     logger,
	}
}

// IssueForProposal plans the credentials still owed for a proposal and, for
// direct-signing spaces, submits them immediately.
func (s *Service) IssueForProposal(ctx context.Context, proposalID uuid.UUID) (*IssueResult, error) {
	snapshot, err := s.reader.GetProposalSnapshot(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, ErrNotFound)
	}

	space, issued, inFlight, templates, err := s.loadPlanContext(ctx, snapshot.SpaceID, KindProposal, proposalID)
	if err != nil {
		return nil, err
	}

	descriptors, err := s.calculator.PlanProposal(ProposalPlanInput{
		Snapshot:     *snapshot,
		Space:        *space,
		Templates:    templates,
		Issued:       issued,
		InFlightKeys: inFlight,
	})
	if err != nil {
		return nil, err
	}

	return s.finishIssue(ctx, KindProposal, proposalID, space, descriptors)
}

// IssueForReward plans the credentials still owed for a reward application
// and, for direct-signing spaces, submits them immediately.
func (s *Service) IssueForReward(ctx context.Context, applicationID uuid.UUID) (*IssueResult, error) {
	snapshot, err := s.reader.GetRewardApplicationSnapshot(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("reward application %s: %w", applicationID, ErrNotFound)
	}

	space, issued, inFlight, templates, err := s.loadPlanContext(ctx, snapshot.SpaceID, KindReward, applicationID)
	if err != nil {
		return nil, err
	}

	descriptors, err := s.calculator.PlanReward(RewardPlanInput{
		Snapshot:     *snapshot,
		Space:        *space,
		Templates:    templates,
		Issued:       issued,
		InFlightKeys: inFlight,
	})
	if err != nil {
		return nil, err
	}

	return s.finishIssue(ctx, KindReward, applicationID, space, descriptors)
}

// RecordBatchSubmission durably indexes a broadcast multisig transaction.
func (s *Service) RecordBatchSubmission(ctx context.Context, req *BatchSubmissionRequest) (*PendingBatchTransaction, error) {
	return s.indexer.RecordBatchSubmission(ctx, req)
}

// Reconcile drives one pending transaction toward its terminal state.
func (s *Service) Reconcile(ctx context.Context, chainID int64, txHash string) (*ReconcileResult, error) {
	return s.reconciler.Reconcile(ctx, chainID, txHash)
}

// ListPending returns the unprocessed pending transactions, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]PendingBatchTransaction, error) {
	return s.repo.ListUnprocessedPending(ctx)
}

// retryProcessedAfter is how long a partially confirmed batch rests before a
// worker pass retries it.
const retryProcessedAfter = 30 * time.Minute

// ListReconcilable returns the pending transactions due for a reconcile pass:
// the unprocessed ones, plus partially confirmed batches that have rested
// long enough for their missing ledger entries to have appeared.
func (s *Service) ListReconcilable(ctx context.Context) ([]PendingBatchTransaction, error) {
	return s.repo.ListReconcilablePending(ctx, retryProcessedAfter)
}

// ListIssued returns the issued credential rows for a subject.
func (s *Service) ListIssued(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) ([]IssuedCredential, error) {
	return s.repo.ListIssuedForSubject(ctx, kind, subjectID)
}

func (s *Service) loadPlanContext(ctx context.Context, spaceID uuid.UUID, kind CredentialKind, subjectID uuid.UUID) (*workspace.SpaceConfig, []IssuedCredential, map[string]bool, []CredentialTemplate, error) {
	space, err := s.reader.GetSpaceConfig(ctx, spaceID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if space == nil {
		return nil, nil, nil, nil, fmt.Errorf("space %s: %w", spaceID, ErrNotFound)
	}

	issued, err := s.repo.ListIssuedForSubject(ctx, kind, subjectID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	inFlight, err := s.repo.InFlightKeysForSubject(ctx, kind, subjectID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	templates, err := s.repo.ListTemplates(ctx, spaceID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return space, issued, inFlight, templates, nil
}

func (s *Service) finishIssue(ctx context.Context, kind CredentialKind, subjectID uuid.UUID, space *workspace.SpaceConfig, descriptors []CredentialDescriptor) (*IssueResult, error) {
	result := &IssueResult{Kind: kind, SubjectID: subjectID, Planned: descriptors}
	if len(descriptors) == 0 {
		return result, nil
	}

	if space.UsesMultisig() {
		s.logger.Info("Planned descriptors await multisig broadcast",
			zap.String("subject_id", subjectID.String()),
			zap.Int("count", len(descriptors)))
		return result, nil
	}

	issued, err := s.issuer.IssueBatch(ctx, space.CredentialChainID, kind, descriptors)
	if err != nil {
		return nil, err
	}
	result.Issued = issued
	result.Submitted = true
	return result, nil
}
