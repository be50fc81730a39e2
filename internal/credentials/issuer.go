package credentials

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"credence/workspace-portal/credentials-engine/internal/notifications"
	"credence/workspace-portal/credentials-engine/pkg/attestation"
	"credence/workspace-portal/credentials-engine/pkg/chain"
)

// DirectIssuer submits attestations synchronously for spaces configured to
// sign directly, without multisig. Confirmation is synchronous to the call, so
// the final IssuedCredential row is written immediately with the returned
// entry id and no pending-state bookkeeping is needed.
type DirectIssuer struct {
	chains    ChainProvider
	repo      Repository
	publisher notifications.Publisher
	logger    *zap.Logger
}

// NewDirectIssuer creates a direct issuer.
func NewDirectIssuer(chains ChainProvider, repo Repository, publisher notifications.Publisher, logger *zap.Logger) *DirectIssuer {
	return &DirectIssuer{
		chains:    chains,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// IssueOne encodes and submits a single descriptor, blocks until the ledger
// confirms, and writes the final credential row.
func (i *DirectIssuer) IssueOne(ctx context.Context, chainID int64, kind CredentialKind, descriptor CredentialDescriptor) (*IssuedCredential, error) {
	issued, err := i.IssueBatch(ctx, chainID, kind, []CredentialDescriptor{descriptor})
	if err != nil {
		return nil, err
	}
	return &issued[0], nil
}

// IssueBatch submits one transaction carrying all descriptors. Returned rows
// are positionally matched to the input: entry ids come back from the ledger
// correlated by array position only, so the zip by index here is the contract.
func (i *DirectIssuer) IssueBatch(ctx context.Context, chainID int64, kind CredentialKind, descriptors []CredentialDescriptor) ([]IssuedCredential, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("empty descriptor batch: %w", ErrInvalidInput)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("credential kind %q: %w", kind, ErrInvalidInput)
	}

	ledger, err := i.chains.Ledger(chainID)
	if err != nil {
		return nil, err
	}
	if !ledger.HasSigningKey() {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrSigningKeyUnavailable)
	}

	schema, err := payloadSchema(kind)
	if err != nil {
		return nil, err
	}

	requests := make([]*chain.AttestRequest, len(descriptors))
	for idx, d := range descriptors {
		template, err := i.repo.GetTemplate(ctx, d.TemplateID)
		if err != nil {
			return nil, err
		}
		payload, err := schema.Encode(payloadValues(schema, d.Content))
		if err != nil {
			return nil, fmt.Errorf("failed to encode descriptor for %s: %w", d.RecipientAddress, err)
		}
		requests[idx] = &chain.AttestRequest{
			SchemaUID: template.SchemaUID,
			Recipient: d.RecipientAddress,
			Data:      "0x" + hex.EncodeToString(payload),
			Revocable: true,
		}
	}

	responses, err := ledger.MultiAttest(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("failed to submit attestations on chain %d: %w", chainID, err)
	}

	issued := make([]IssuedCredential, len(descriptors))
	for idx := range descriptors {
		row, created, err := i.persistConfirmed(ctx, chainID, kind, descriptors[idx], responses[idx].UID)
		if err != nil {
			return nil, err
		}
		issued[idx] = *row
		if created {
			i.publishCreated(ctx, kind, row)
		}
	}

	i.logger.Info("Issued credentials directly",
		zap.Int64("chain_id", chainID),
		zap.String("kind", string(kind)),
		zap.Int("count", len(issued)))
	return issued, nil
}

func (i *DirectIssuer) persistConfirmed(ctx context.Context, chainID int64, kind CredentialKind, d CredentialDescriptor, uid string) (*IssuedCredential, bool, error) {
	row := &IssuedCredential{
		TemplateID:       d.TemplateID,
		UserID:           d.RecipientUserID,
		EventKind:        d.EventKind,
		RecipientAddress: strings.ToLower(d.RecipientAddress),
		LedgerChainID:    &chainID,
		AttestationUID:   &uid,
	}
	subjectID := d.SubjectID
	switch kind {
	case KindProposal:
		row.ProposalID = &subjectID
	case KindReward:
		row.RewardApplicationID = &subjectID
	}

	created, err := i.repo.UpsertIssued(ctx, row)
	if err != nil {
		return nil, false, err
	}
	return row, created, nil
}

func (i *DirectIssuer) publishCreated(ctx context.Context, kind CredentialKind, row *IssuedCredential) {
	publishCredentialCreated(ctx, i.publisher, i.logger, kind, row)
}

// publishCredentialCreated emits the credential.created event for a freshly
// created row. Publish failures are logged, never propagated: the credential
// itself is already durable.
func publishCredentialCreated(ctx context.Context, publisher notifications.Publisher, logger *zap.Logger, kind CredentialKind, row *IssuedCredential) {
	event := &notifications.CredentialCreatedEvent{
		CredentialID:   row.ID,
		TemplateID:     row.TemplateID,
		UserID:         row.UserID,
		SubjectID:      row.SubjectID(),
		CredentialKind: string(kind),
		EventKind:      string(row.EventKind),
		CreatedAt:      time.Now().UTC(),
	}
	if row.LedgerChainID != nil {
		event.ChainID = *row.LedgerChainID
	}
	if row.AttestationUID != nil {
		event.AttestationUID = *row.AttestationUID
	}

	if err := publisher.PublishCredentialCreated(ctx, event); err != nil {
		logger.Error("Failed to publish credential.created event",
			zap.String("credential_id", row.ID.String()),
			zap.Error(err))
	}
}

func payloadValues(schema attestation.Schema, content CredentialContent) map[string]string {
	values := map[string]string{
		attestation.FieldName:         content.Name,
		attestation.FieldOrganization: content.Organization,
		attestation.FieldDescription:  content.Description,
		attestation.FieldEvent:        content.EventText,
	}
	if field := schema.PermalinkField(); field != "" {
		values[field] = content.Permalink
	}
	return values
}
