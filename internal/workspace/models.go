package workspace

import (
	"strings"

	"github.com/google/uuid"
)

// ProposalStatus values relevant to credential issuance.
const (
	ProposalStatusDraft     = "draft"
	ProposalStatusPublished = "published"
)

// EvaluationResultPass is the passing result of a proposal evaluation step.
const EvaluationResultPass = "pass"

// Reward application statuses that make the applicant credential-eligible.
const (
	ApplicationStatusApplied    = "applied"
	ApplicationStatusRejected   = "rejected"
	ApplicationStatusInProgress = "in_progress"
	ApplicationStatusReview     = "review"
	ApplicationStatusComplete   = "complete"
	ApplicationStatusProcessing = "processing"
	ApplicationStatusPaid       = "paid"
)

// Recipient is a workspace member joined with their known wallet addresses.
type Recipient struct {
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	PrimaryWallet string    `db:"primary_wallet" json:"primary_wallet"`
	Wallets       []string  `db:"-" json:"wallets"`
}

// Wallet resolves the recipient's primary wallet, falling back to the first
// known wallet. Empty when the user has none.
func (r Recipient) Wallet() string {
	if r.PrimaryWallet != "" {
		return r.PrimaryWallet
	}
	if len(r.Wallets) > 0 {
		return r.Wallets[0]
	}
	return ""
}

// ProposalSnapshot is the read-only view of a proposal joined with everything
// the issuance engine needs: authors, wallets, selected templates, and the
// result of the current (highest-index) evaluation step.
type ProposalSnapshot struct {
	ID                  uuid.UUID   `db:"id" json:"id"`
	SpaceID             uuid.UUID   `db:"space_id" json:"space_id"`
	Title               string      `db:"title" json:"title"`
	Status              string      `db:"status" json:"status"`
	CurrentEvaluation   string      `db:"current_evaluation" json:"current_evaluation"`
	SelectedTemplateIDs []uuid.UUID `db:"-" json:"selected_template_ids"`
	Authors             []Recipient `db:"-" json:"authors"`
}

// RewardApplicationSnapshot is the read-only view of a reward application
// joined with its applicant and the reward's selected templates.
type RewardApplicationSnapshot struct {
	ID                  uuid.UUID   `db:"id" json:"id"`
	RewardID            uuid.UUID   `db:"reward_id" json:"reward_id"`
	SpaceID             uuid.UUID   `db:"space_id" json:"space_id"`
	Title               string      `db:"title" json:"title"`
	Status              string      `db:"status" json:"status"`
	SelectedTemplateIDs []uuid.UUID `db:"-" json:"selected_template_ids"`
	Applicant           Recipient   `db:"-" json:"applicant"`
}

// SpaceConfig carries the space-level credential settings.
type SpaceConfig struct {
	SpaceID                  uuid.UUID `db:"space_id" json:"space_id"`
	Domain                   string    `db:"domain" json:"domain"`
	OnchainCredentialsEnable bool      `db:"onchain_credentials_enabled" json:"onchain_credentials_enabled"`
	CredentialChainID        int64     `db:"credential_chain_id" json:"credential_chain_id"`
	SafeAddress              string    `db:"safe_address" json:"safe_address"`
}

// UsesMultisig reports whether issuance for this space goes through a
// multisig wallet rather than the direct signing path.
func (c SpaceConfig) UsesMultisig() bool {
	return c.SafeAddress != ""
}

// CredentialEligible reports whether a reward application status entitles the
// applicant to a credential.
func CredentialEligible(status string) bool {
	switch strings.ToLower(status) {
	case ApplicationStatusComplete, ApplicationStatusProcessing, ApplicationStatusPaid:
		return true
	}
	return false
}
