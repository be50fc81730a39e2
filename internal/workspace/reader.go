package workspace

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Reader loads credential-relevant read models from the workspace store.
type Reader interface {
	GetProposalSnapshot(ctx context.Context, proposalID uuid.UUID) (*ProposalSnapshot, error)
	GetRewardApplicationSnapshot(ctx context.Context, applicationID uuid.UUID) (*RewardApplicationSnapshot, error)
	GetSpaceConfig(ctx context.Context, spaceID uuid.UUID) (*SpaceConfig, error)
}

type postgresReader struct {
	db *sqlx.DB
}

// NewReader creates a workspace snapshot reader over the shared store.
func NewReader(db *sqlx.DB) Reader {
	return &postgresReader{db: db}
}

func (r *postgresReader) GetProposalSnapshot(ctx context.Context, proposalID uuid.UUID) (*ProposalSnapshot, error) {
	var snapshot ProposalSnapshot
	query := `
		SELECT p.id, p.space_id, p.title, p.status,
			COALESCE((
				SELECT e.result FROM proposal_evaluations e
				WHERE e.proposal_id = p.id
				ORDER BY e.index DESC LIMIT 1
			), '') AS current_evaluation
		FROM proposals p
		WHERE p.id = $1`
	err := r.db.GetContext(ctx, &snapshot, query, proposalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal %s: %w", proposalID, err)
	}

	if err := r.db.SelectContext(ctx, &snapshot.SelectedTemplateIDs,
		"SELECT template_id FROM proposal_selected_credentials WHERE proposal_id = $1", proposalID); err != nil {
		return nil, fmt.Errorf("failed to load selected templates for proposal %s: %w", proposalID, err)
	}

	authors, err := r.loadRecipients(ctx,
		"SELECT user_id FROM proposal_authors WHERE proposal_id = $1 ORDER BY created_at", proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors for proposal %s: %w", proposalID, err)
	}
	snapshot.Authors = authors

	return &snapshot, nil
}

func (r *postgresReader) GetRewardApplicationSnapshot(ctx context.Context, applicationID uuid.UUID) (*RewardApplicationSnapshot, error) {
	var snapshot RewardApplicationSnapshot
	var applicantID uuid.UUID
	query := `
		SELECT a.id, a.reward_id, rw.space_id, rw.title, a.status, a.applicant_id
		FROM reward_applications a
		JOIN rewards rw ON rw.id = a.reward_id
		WHERE a.id = $1`
	row := r.db.QueryRowxContext(ctx, query, applicationID)
	err := row.Scan(&snapshot.ID, &snapshot.RewardID, &snapshot.SpaceID,
		&snapshot.Title, &snapshot.Status, &applicantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reward application %s: %w", applicationID, err)
	}

	if err := r.db.SelectContext(ctx, &snapshot.SelectedTemplateIDs,
		"SELECT template_id FROM reward_selected_credentials WHERE reward_id = $1", snapshot.RewardID); err != nil {
		return nil, fmt.Errorf("failed to load selected templates for reward %s: %w", snapshot.RewardID, err)
	}

	applicant, err := r.loadRecipient(ctx, applicantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load applicant %s: %w", applicantID, err)
	}
	snapshot.Applicant = *applicant

	return &snapshot, nil
}

func (r *postgresReader) GetSpaceConfig(ctx context.Context, spaceID uuid.UUID) (*SpaceConfig, error) {
	var cfg SpaceConfig
	query := `
		SELECT id AS space_id, domain, onchain_credentials_enabled,
			COALESCE(credential_chain_id, 0) AS credential_chain_id,
			COALESCE(safe_address, '') AS safe_address
		FROM spaces
		WHERE id = $1`
	err := r.db.GetContext(ctx, &cfg, query, spaceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load space %s: %w", spaceID, err)
	}
	return &cfg, nil
}

func (r *postgresReader) loadRecipients(ctx context.Context, query string, arg interface{}) ([]Recipient, error) {
	var userIDs []uuid.UUID
	if err := r.db.SelectContext(ctx, &userIDs, query, arg); err != nil {
		return nil, err
	}

	recipients := make([]Recipient, 0, len(userIDs))
	for _, id := range userIDs {
		recipient, err := r.loadRecipient(ctx, id)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *recipient)
	}
	return recipients, nil
}

func (r *postgresReader) loadRecipient(ctx context.Context, userID uuid.UUID) (*Recipient, error) {
	recipient := Recipient{UserID: userID}

	type walletRow struct {
		Address   string `db:"address"`
		IsPrimary bool   `db:"is_primary"`
	}
	var rows []walletRow
	err := r.db.SelectContext(ctx, &rows,
		"SELECT address, is_primary FROM user_wallets WHERE user_id = $1 ORDER BY created_at", userID)
	if err != nil {
		return nil, err
	}

	for _, w := range rows {
		recipient.Wallets = append(recipient.Wallets, w.Address)
		if w.IsPrimary && recipient.PrimaryWallet == "" {
			recipient.PrimaryWallet = w.Address
		}
	}
	return &recipient, nil
}
