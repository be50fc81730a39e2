package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository owns the engine's durable rows: issued credentials and pending
// batch transactions, plus read access to the template catalogue.
type Repository interface {
	ListTemplates(ctx context.Context, spaceID uuid.UUID) ([]CredentialTemplate, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*CredentialTemplate, error)

	ListIssuedForSubject(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) ([]IssuedCredential, error)
	GetIssuedByAttestationUID(ctx context.Context, chainID int64, uid string) (*IssuedCredential, error)
	UpsertIssued(ctx context.Context, credential *IssuedCredential) (created bool, err error)

	CreatePending(ctx context.Context, tx *PendingBatchTransaction) error
	GetPendingByHash(ctx context.Context, txHash string) (*PendingBatchTransaction, error)
	ListUnprocessedPending(ctx context.Context) ([]PendingBatchTransaction, error)
	ListReconcilablePending(ctx context.Context, retryAfter time.Duration) ([]PendingBatchTransaction, error)
	SavePending(ctx context.Context, tx *PendingBatchTransaction) error
	DeletePending(ctx context.Context, id uuid.UUID) error

	InFlightKeysForSubject(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) (map[string]bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed credentials repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// AutoMigrate creates the engine-owned tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CredentialTemplate{},
		&IssuedCredential{},
		&PendingBatchTransaction{},
	)
}

func (r *gormRepository) ListTemplates(ctx context.Context, spaceID uuid.UUID) ([]CredentialTemplate, error) {
	var templates []CredentialTemplate
	err := r.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("created_at").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list templates for space %s: %w", spaceID, err)
	}
	return templates, nil
}

func (r *gormRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*CredentialTemplate, error) {
	var template CredentialTemplate
	err := r.db.WithContext(ctx).First(&template, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", id, err)
	}
	return &template, nil
}

func (r *gormRepository) ListIssuedForSubject(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) ([]IssuedCredential, error) {
	var issued []IssuedCredential
	query := r.db.WithContext(ctx)
	switch kind {
	case KindProposal:
		query = query.Where("proposal_id = ?", subjectID)
	case KindReward:
		query = query.Where("reward_application_id = ?", subjectID)
	default:
		return nil, fmt.Errorf("credential kind %q: %w", kind, ErrInvalidInput)
	}
	if err := query.Find(&issued).Error; err != nil {
		return nil, fmt.Errorf("failed to list issued credentials for %s: %w", subjectID, err)
	}
	return issued, nil
}

func (r *gormRepository) GetIssuedByAttestationUID(ctx context.Context, chainID int64, uid string) (*IssuedCredential, error) {
	var credential IssuedCredential
	err := r.db.WithContext(ctx).
		Where("ledger_chain_id = ? AND attestation_uid = ?", chainID, uid).
		First(&credential).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up attestation %s: %w", uid, err)
	}
	return &credential, nil
}

// UpsertIssued creates the row for its unique key, or updates the ledger
// fields in place if it already exists. The insert runs under ON CONFLICT DO
// NOTHING against the per-subject partial unique indexes, so two workers
// racing on the same key converge onto a single row instead of both creating.
func (r *gormRepository) UpsertIssued(ctx context.Context, credential *IssuedCredential) (bool, error) {
	if credential.ProposalID == nil && credential.RewardApplicationID == nil {
		return false, fmt.Errorf("issued credential has no subject: %w", ErrInvalidInput)
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(credential)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create issued credential: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// Lost the race or the row predates this call; refresh the ledger fields
	// on the surviving row.
	query := r.db.WithContext(ctx).
		Where("template_id = ? AND user_id = ? AND event_kind = ?",
			credential.TemplateID, credential.UserID, credential.EventKind)
	if credential.ProposalID != nil {
		query = query.Where("proposal_id = ?", *credential.ProposalID)
	} else {
		query = query.Where("reward_application_id = ?", *credential.RewardApplicationID)
	}

	var existing IssuedCredential
	if err := query.First(&existing).Error; err != nil {
		return false, fmt.Errorf("failed to look up issued credential: %w", err)
	}

	existing.LedgerChainID = credential.LedgerChainID
	existing.AttestationUID = credential.AttestationUID
	existing.RecipientAddress = credential.RecipientAddress
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return false, fmt.Errorf("failed to update issued credential %s: %w", existing.ID, err)
	}
	*credential = existing
	return false, nil
}

func (r *gormRepository) CreatePending(ctx context.Context, tx *PendingBatchTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create pending transaction %s: %w", tx.TransactionHash, err)
	}
	return nil
}

func (r *gormRepository) GetPendingByHash(ctx context.Context, txHash string) (*PendingBatchTransaction, error) {
	var pending PendingBatchTransaction
	err := r.db.WithContext(ctx).First(&pending, "transaction_hash = ?", txHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("pending transaction %s: %w", txHash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transaction %s: %w", txHash, err)
	}
	return &pending, nil
}

func (r *gormRepository) ListUnprocessedPending(ctx context.Context) ([]PendingBatchTransaction, error) {
	var pending []PendingBatchTransaction
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at").
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return pending, nil
}

// ListReconcilablePending returns the rows a reconcile pass should drive:
// every unprocessed transaction, plus processed (partially confirmed) ones
// that have rested for retryAfter, whose missing ledger entries may have
// appeared since.
func (r *gormRepository) ListReconcilablePending(ctx context.Context, retryAfter time.Duration) ([]PendingBatchTransaction, error) {
	cutoff := time.Now().Add(-retryAfter)
	var pending []PendingBatchTransaction
	err := r.db.WithContext(ctx).
		Where("processed = ? OR updated_at < ?", false, cutoff).
		Order("created_at").
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reconcilable transactions: %w", err)
	}
	return pending, nil
}

func (r *gormRepository) SavePending(ctx context.Context, tx *PendingBatchTransaction) error {
	if err := r.db.WithContext(ctx).Save(tx).Error; err != nil {
		return fmt.Errorf("failed to save pending transaction %s: %w", tx.TransactionHash, err)
	}
	return nil
}

func (r *gormRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&PendingBatchTransaction{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete pending transaction %s: %w", id, err)
	}
	return nil
}

// InFlightKeysForSubject collects the descriptor keys held by unconfirmed
// pending transactions that promise credentials for this subject. These keys
// are subtracted by the calculator so an in-flight promise is never re-planned.
func (r *gormRepository) InFlightKeysForSubject(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) (map[string]bool, error) {
	var pending []PendingBatchTransaction
	err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions for %s: %w", subjectID, err)
	}

	keys := make(map[string]bool)
	for i := range pending {
		m, err := pending[i].DescriptorMap()
		if err != nil {
			return nil, err
		}
		for _, d := range m[subjectID] {
			keys[d.Key()] = true
		}
	}
	return keys, nil
}
