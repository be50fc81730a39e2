package credentials

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CredentialKind is the closed set of subject kinds a credential can be about.
type CredentialKind string

const (
	KindProposal CredentialKind = "proposal"
	KindReward   CredentialKind = "reward"
)

// Valid reports whether the kind is one of the closed set.
func (k CredentialKind) Valid() bool {
	return k == KindProposal || k == KindReward
}

// EventKind is the closed set of workspace events that trigger issuance.
type EventKind string

const (
	EventProposalApproved EventKind = "proposal_approved"
	EventRewardApproved   EventKind = "reward_approved"
)

// EventVerb returns the exact label text embedded in the attestation payload
// for an event kind. Classification on the decode path is exact-match against
// these verbs, never substring.
func (e EventKind) EventVerb() string {
	switch e {
	case EventProposalApproved:
		return "Proposal Approved"
	case EventRewardApproved:
		return "Reward Approved"
	}
	return ""
}

// EventKindForVerb inverts EventVerb for a credential kind.
func EventKindForVerb(kind CredentialKind, verb string) (EventKind, bool) {
	switch kind {
	case KindProposal:
		if verb == EventProposalApproved.EventVerb() {
			return EventProposalApproved, true
		}
	case KindReward:
		if verb == EventRewardApproved.EventVerb() {
			return EventRewardApproved, true
		}
	}
	return "", false
}

// CredentialTemplate is space-level configuration naming which events trigger
// issuance and what label text to embed. Created and edited by space admins
// through the workspace layer; read-only here.
type CredentialTemplate struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SpaceID      uuid.UUID      `json:"space_id" gorm:"type:uuid;not null;index"`
	Name         string         `json:"name" gorm:"not null"`
	Description  string         `json:"description"`
	Organization string         `json:"organization"`
	SchemaUID    string         `json:"schema_uid" gorm:"not null;index"`
	EventKinds   datatypes.JSON `json:"event_kinds" gorm:"default:'[]'"` // []EventKind

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName keeps the table name aligned with the workspace schema.
func (CredentialTemplate) TableName() string {
	return "credential_templates"
}

// Events decodes the template's triggering event kinds.
func (t *CredentialTemplate) Events() ([]EventKind, error) {
	var events []EventKind
	if len(t.EventKinds) == 0 {
		return events, nil
	}
	if err := json.Unmarshal(t.EventKinds, &events); err != nil {
		return nil, fmt.Errorf("failed to decode event kinds for template %s: %w", t.ID, err)
	}
	return events, nil
}

// IssuedCredential is the durable record of one delivered (or confirmed)
// credential. At most one row per (template, user, event, subject) ever
// carries a non-null attestation UID.
type IssuedCredential struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TemplateID uuid.UUID `json:"template_id" gorm:"type:uuid;not null;uniqueIndex:idx_issued_proposal_key;uniqueIndex:idx_issued_reward_key"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_issued_proposal_key;uniqueIndex:idx_issued_reward_key"`
	EventKind  EventKind `json:"event_kind" gorm:"not null;uniqueIndex:idx_issued_proposal_key;uniqueIndex:idx_issued_reward_key"`

	// Exactly one of the two subject columns is set. Uniqueness is enforced by
	// a partial index per subject kind: a single index spanning both columns
	// would never conflict, since the NULL column keeps every tuple distinct
	// under Postgres's default NULL semantics.
	ProposalID          *uuid.UUID `json:"proposal_id" gorm:"type:uuid;index;uniqueIndex:idx_issued_proposal_key,where:proposal_id IS NOT NULL"`
	RewardApplicationID *uuid.UUID `json:"reward_application_id" gorm:"type:uuid;index;uniqueIndex:idx_issued_reward_key,where:reward_application_id IS NOT NULL"`

	RecipientAddress string `json:"recipient_address" gorm:"not null"`

	// Null until the attestation is confirmed on the ledger.
	LedgerChainID  *int64  `json:"ledger_chain_id" gorm:"index"`
	AttestationUID *string `json:"attestation_uid" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName keeps the table name aligned with the workspace schema.
func (IssuedCredential) TableName() string {
	return "issued_credentials"
}

// SubjectID returns whichever subject column is set.
func (c *IssuedCredential) SubjectID() uuid.UUID {
	if c.ProposalID != nil {
		return *c.ProposalID
	}
	if c.RewardApplicationID != nil {
		return *c.RewardApplicationID
	}
	return uuid.Nil
}

// Confirmed reports whether the row carries a ledger entry id.
func (c *IssuedCredential) Confirmed() bool {
	return c.AttestationUID != nil && *c.AttestationUID != ""
}

// PendingBatchTransaction is the durable memory of one broadcast-but-
// unconfirmed multisig submission and the descriptors it promised. The
// descriptor map grows only at creation; afterwards it shrinks or the row is
// deleted, never re-grown.
type PendingBatchTransaction struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ChainID         int64          `json:"chain_id" gorm:"not null"`
	SafeAddress     string         `json:"safe_address" gorm:"not null;index"`
	TransactionHash string         `json:"transaction_hash" gorm:"not null;uniqueIndex"`
	Nonce           int64          `json:"nonce" gorm:"not null"`
	SchemaUID       string         `json:"schema_uid" gorm:"not null"`
	Kind            CredentialKind `json:"kind" gorm:"not null"`
	Descriptors     datatypes.JSON `json:"descriptors" gorm:"not null"` // map[subjectID][]CredentialDescriptor
	Processed       bool           `json:"processed" gorm:"default:false;index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName keeps the table name aligned with the workspace schema.
func (PendingBatchTransaction) TableName() string {
	return "pending_batch_transactions"
}

// DescriptorMap decodes the grouped descriptor map (subject id → promised
// descriptors) from the stored JSON column.
func (p *PendingBatchTransaction) DescriptorMap() (map[uuid.UUID][]CredentialDescriptor, error) {
	m := make(map[uuid.UUID][]CredentialDescriptor)
	if len(p.Descriptors) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(p.Descriptors, &m); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor map for %s: %w", p.TransactionHash, err)
	}
	return m, nil
}

// SetDescriptorMap encodes the grouped descriptor map into the JSON column.
func (p *PendingBatchTransaction) SetDescriptorMap(m map[uuid.UUID][]CredentialDescriptor) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor map: %w", err)
	}
	p.Descriptors = datatypes.JSON(raw)
	return nil
}

// CredentialContent is the rendered label text embedded in an attestation.
type CredentialContent struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Organization string `json:"organization"`
	EventText    string `json:"event_text"`
	Permalink    string `json:"permalink"`
}

// CredentialDescriptor is one planned credential: who receives what, about
// which subject. Transient — it is never persisted standalone, only inside a
// pending batch transaction's descriptor map.
type CredentialDescriptor struct {
	RecipientAddress string            `json:"recipient_address"`
	RecipientUserID  uuid.UUID         `json:"recipient_user_id"`
	SubjectID        uuid.UUID         `json:"subject_id"`
	EventKind        EventKind         `json:"event_kind"`
	TemplateID       uuid.UUID         `json:"template_id"`
	Content          CredentialContent `json:"content"`
}

// Key is the dedup identity of a descriptor: template, event, and wallet,
// case-insensitive on the wallet.
func (d CredentialDescriptor) Key() string {
	return DescriptorKey(d.TemplateID, d.EventKind, d.RecipientAddress)
}

// DescriptorKey builds the dedup key used for in-flight exclusion.
func DescriptorKey(templateID uuid.UUID, event EventKind, wallet string) string {
	return fmt.Sprintf("%s:%s:%s", templateID, event, strings.ToLower(wallet))
}
