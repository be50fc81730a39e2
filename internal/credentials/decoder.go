package credentials

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"credence/workspace-portal/credentials-engine/internal/notifications"
	"credence/workspace-portal/credentials-engine/internal/workspace"
	"credence/workspace-portal/credentials-engine/pkg/attestation"
)

// maxEntryLookups caps simultaneous ledger entry fetches to respect
// third-party rate limits.
const maxEntryLookups = 10

// ExecutionDecoder turns a confirmed execution transaction into the set of
// descriptor keys it proves delivered, grouped by subject.
type ExecutionDecoder interface {
	ProcessExecution(ctx context.Context, pending *PendingBatchTransaction, executionHash string) (map[uuid.UUID][]string, error)
}

// Decoder reads a confirmed transaction's logs, decodes each attestation the
// chain's attestation contract emitted, matches it back to a workspace subject
// and template, and persists the final credential row.
type Decoder struct {
	chains    ChainProvider
	repo      Repository
	reader    workspace.Reader
	publisher notifications.Publisher
	logger    *zap.Logger
}

// NewDecoder creates an attestation decoder/matcher.
func NewDecoder(chains ChainProvider, repo Repository, reader workspace.Reader, publisher notifications.Publisher, logger *zap.Logger) *Decoder {
	return &Decoder{
		chains:    chains,
		repo:      repo,
		reader:    reader,
		publisher: publisher,
		logger:    logger,
	}
}

type decodedEntry struct {
	subjectID uuid.UUID
	key       string
}

// ProcessExecution waits for one confirmation, filters the transaction's logs
// to the attestation contract, and processes each emitted entry id with
// bounded concurrency. A decode or match failure for one entry is logged with
// chain and entry context and excluded from the result; it never aborts the
// sibling entries.
func (d *Decoder) ProcessExecution(ctx context.Context, pending *PendingBatchTransaction, executionHash string) (map[uuid.UUID][]string, error) {
	ledger, err := d.chains.Ledger(pending.ChainID)
	if err != nil {
		return nil, err
	}

	receipt, err := ledger.WaitForConfirmation(ctx, executionHash)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm execution %s on chain %d: %w", executionHash, pending.ChainID, err)
	}

	contract := strings.ToLower(ledger.AttestationContract())
	var uids []string
	for _, entry := range receipt.Logs {
		if strings.ToLower(entry.Address) != contract {
			continue
		}
		uids = append(uids, strings.TrimSpace(entry.Data))
	}

	var (
		mu        sync.Mutex
		confirmed = make(map[uuid.UUID][]string)
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxEntryLookups)
	for _, uid := range uids {
		group.Go(func() error {
			result, err := d.processEntry(groupCtx, ledger, pending, uid)
			if err != nil {
				d.logger.Error("Failed to process attestation entry",
					zap.Int64("chain_id", pending.ChainID),
					zap.String("attestation_uid", uid),
					zap.String("execution_hash", executionHash),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			confirmed[result.subjectID] = append(confirmed[result.subjectID], result.key)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return confirmed, nil
}

func (d *Decoder) processEntry(ctx context.Context, ledger AttestationLedger, pending *PendingBatchTransaction, uid string) (*decodedEntry, error) {
	// Idempotent re-run: an existing row with this exact entry id short-
	// circuits to the recorded identity.
	existing, err := d.repo.GetIssuedByAttestationUID(ctx, pending.ChainID, uid)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &decodedEntry{
			subjectID: existing.SubjectID(),
			key:       DescriptorKey(existing.TemplateID, existing.EventKind, existing.RecipientAddress),
		}, nil
	}

	entry, err := ledger.GetAttestation(ctx, uid)
	if err != nil {
		return nil, err
	}

	schema, err := payloadSchema(pending.Kind)
	if err != nil {
		return nil, err
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(entry.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("attestation %s carries non-hex payload: %w", uid, ErrInvalidInput)
	}
	values, err := schema.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attestation %s: %w", uid, err)
	}

	subjectID, err := parseTrailingID(values[schema.PermalinkField()])
	if err != nil {
		return nil, err
	}

	event, ok := EventKindForVerb(pending.Kind, values[attestation.FieldEvent])
	if !ok {
		return nil, fmt.Errorf("unrecognized event label %q for kind %s: %w",
			values[attestation.FieldEvent], pending.Kind, ErrInvalidInput)
	}

	subject, err := d.resolveSubject(ctx, pending.Kind, subjectID)
	if err != nil {
		return nil, err
	}

	recipient, ok := matchRecipient(subject.recipients, entry.Recipient)
	if !ok {
		return nil, fmt.Errorf("no recipient with wallet %s on subject %s: %w",
			entry.Recipient, subjectID, ErrInvalidInput)
	}

	templateID, err := d.matchTemplate(ctx, subject.templateIDs, values)
	if err != nil {
		return nil, fmt.Errorf("subject %s: %w", subjectID, err)
	}

	row := &IssuedCredential{
		TemplateID:       templateID,
		UserID:           recipient.UserID,
		EventKind:        event,
		RecipientAddress: strings.ToLower(entry.Recipient),
		LedgerChainID:    &pending.ChainID,
		AttestationUID:   &entry.UID,
	}
	switch pending.Kind {
	case KindProposal:
		row.ProposalID = &subjectID
	case KindReward:
		row.RewardApplicationID = &subjectID
	}

	created, err := d.repo.UpsertIssued(ctx, row)
	if err != nil {
		return nil, err
	}
	if created {
		publishCredentialCreated(ctx, d.publisher, d.logger, pending.Kind, row)
	}

	return &decodedEntry{
		subjectID: subjectID,
		key:       DescriptorKey(templateID, event, entry.Recipient),
	}, nil
}

type resolvedSubject struct {
	recipients  []workspace.Recipient
	templateIDs []uuid.UUID
}

func (d *Decoder) resolveSubject(ctx context.Context, kind CredentialKind, subjectID uuid.UUID) (*resolvedSubject, error) {
	switch kind {
	case KindProposal:
		snapshot, err := d.reader.GetProposalSnapshot(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			return nil, fmt.Errorf("no proposal %s: %w", subjectID, ErrInvalidInput)
		}
		return &resolvedSubject{recipients: snapshot.Authors, templateIDs: snapshot.SelectedTemplateIDs}, nil
	case KindReward:
		snapshot, err := d.reader.GetRewardApplicationSnapshot(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			return nil, fmt.Errorf("no reward application %s: %w", subjectID, ErrInvalidInput)
		}
		return &resolvedSubject{
			recipients:  []workspace.Recipient{snapshot.Applicant},
			templateIDs: snapshot.SelectedTemplateIDs,
		}, nil
	}
	return nil, fmt.Errorf("credential kind %q: %w", kind, ErrInvalidInput)
}

// matchTemplate recovers the template id from the decoded name and
// description text against the subject's selected templates. The payload
// carries no template id, so this text match is load-bearing; two templates
// sharing identical name+description are indistinguishable here.
func (d *Decoder) matchTemplate(ctx context.Context, templateIDs []uuid.UUID, values map[string]string) (uuid.UUID, error) {
	for _, id := range templateIDs {
		template, err := d.repo.GetTemplate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if template.Name == values[attestation.FieldName] &&
			template.Description == values[attestation.FieldDescription] {
			return template.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("no template matches decoded payload: %w", ErrInvalidInput)
}

func matchRecipient(recipients []workspace.Recipient, wallet string) (*workspace.Recipient, bool) {
	for i := range recipients {
		for _, w := range recipients[i].Wallets {
			if strings.EqualFold(w, wallet) {
				return &recipients[i], true
			}
		}
		if strings.EqualFold(recipients[i].PrimaryWallet, wallet) {
			return &recipients[i], true
		}
	}
	return nil, false
}

// parseTrailingID recovers the subject identifier from the permalink's last
// path segment.
func parseTrailingID(permalink string) (uuid.UUID, error) {
	trimmed := strings.TrimSuffix(permalink, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return uuid.Nil, fmt.Errorf("permalink %q has no identifier suffix: %w", permalink, ErrInvalidInput)
	}
	id, err := uuid.Parse(trimmed[idx+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("permalink %q has malformed identifier suffix: %w", permalink, ErrInvalidInput)
	}
	return id, nil
}
