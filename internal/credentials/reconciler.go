package credentials

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcileOutcome classifies the result of one reconciliation pass.
type ReconcileOutcome string

const (
	// OutcomePending means the transaction is still genuinely awaiting
	// signatures or execution; the caller must retry later.
	OutcomePending ReconcileOutcome = "pending"
	// OutcomeReplaced means the wallet nonce advanced past the recorded
	// nonce without execution; the pending record was deleted and its
	// descriptors become issuable again on the calculator's next pass.
	OutcomeReplaced ReconcileOutcome = "replaced"
	// OutcomeConfirmed means every promised descriptor was confirmed and the
	// pending record deleted.
	OutcomeConfirmed ReconcileOutcome = "confirmed"
	// OutcomePartial means some ledger entries for this transaction were not
	// found; the shrunk record persists with processed=true for a later re-run.
	OutcomePartial ReconcileOutcome = "partially_confirmed"
)

// ReconcileResult reports what one reconciliation pass did.
type ReconcileResult struct {
	Outcome   ReconcileOutcome `json:"outcome"`
	Confirmed int              `json:"confirmed"`
	Remaining int              `json:"remaining"`
}

// Reconciler drives a broadcast multisig transaction to its terminal state:
// confirmed into issued credential rows, or proven replaced and purged.
type Reconciler struct {
	chains  ChainProvider
	repo    Repository
	decoder ExecutionDecoder
	logger  *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(chains ChainProvider, repo Repository, decoder ExecutionDecoder, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		chains:  chains,
		repo:    repo,
		decoder: decoder,
		logger:  logger,
	}
}

// Reconcile looks up the pending record for a transaction hash and either
// confirms it through the decoder, proves it replaced, or leaves it pending.
// It is triggered externally; there is no internal scheduler.
func (r *Reconciler) Reconcile(ctx context.Context, chainID int64, txHash string) (*ReconcileResult, error) {
	pending, err := r.repo.GetPendingByHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if chainID != pending.ChainID {
		return nil, fmt.Errorf("transaction %s was recorded on chain %d, not %d: %w",
			txHash, pending.ChainID, chainID, ErrInvalidInput)
	}

	multisig, err := r.chains.Multisig(pending.ChainID)
	if err != nil {
		return nil, err
	}

	tx, err := multisig.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch multisig transaction %s: %w", txHash, err)
	}

	if !tx.IsExecuted {
		return r.checkReplaced(ctx, multisig, pending)
	}

	confirmed, err := r.decoder.ProcessExecution(ctx, pending, tx.ExecutionHash)
	if err != nil {
		return nil, err
	}
	return r.shrinkPending(ctx, pending, confirmed)
}

// checkReplaced applies the replacement heuristic: the wallet nonce only
// increases and transactions execute in nonce order, so a wallet nonce past
// the recorded nonce without execution means this transaction was replaced or
// dropped. Out-of-order execution would break this assumption; known
// limitation of the multisig service contract.
func (r *Reconciler) checkReplaced(ctx context.Context, multisig MultisigService, pending *PendingBatchTransaction) (*ReconcileResult, error) {
	info, err := multisig.GetWalletInfo(ctx, pending.SafeAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet info for %s: %w", pending.SafeAddress, err)
	}

	if info.Nonce <= pending.Nonce {
		return &ReconcileResult{Outcome: OutcomePending, Remaining: r.descriptorCount(pending)}, nil
	}

	if err := r.repo.DeletePending(ctx, pending.ID); err != nil {
		return nil, err
	}
	r.logger.Info("Purged replaced pending transaction",
		zap.String("transaction_hash", pending.TransactionHash),
		zap.Int64("recorded_nonce", pending.Nonce),
		zap.Int64("wallet_nonce", info.Nonce))
	return &ReconcileResult{Outcome: OutcomeReplaced}, nil
}

// shrinkPending removes every confirmed descriptor key from the grouped map,
// deleting the record when nothing remains and otherwise persisting the
// shrunk map with processed=true.
func (r *Reconciler) shrinkPending(ctx context.Context, pending *PendingBatchTransaction, confirmed map[uuid.UUID][]string) (*ReconcileResult, error) {
	grouped, err := pending.DescriptorMap()
	if err != nil {
		return nil, err
	}

	confirmedKeys := make(map[string]bool)
	for _, keys := range confirmed {
		for _, key := range keys {
			confirmedKeys[key] = true
		}
	}

	confirmedCount := 0
	remaining := make(map[uuid.UUID][]CredentialDescriptor)
	for subjectID, descriptors := range grouped {
		var left []CredentialDescriptor
		for _, d := range descriptors {
			if confirmedKeys[d.Key()] {
				confirmedCount++
				continue
			}
			left = append(left, d)
		}
		if len(left) > 0 {
			remaining[subjectID] = left
		}
	}

	remainingCount := 0
	for _, descriptors := range remaining {
		remainingCount += len(descriptors)
	}

	if remainingCount == 0 {
		if err := r.repo.DeletePending(ctx, pending.ID); err != nil {
			return nil, err
		}
		r.logger.Info("Pending transaction fully confirmed",
			zap.String("transaction_hash", pending.TransactionHash),
			zap.Int("confirmed", confirmedCount))
		return &ReconcileResult{Outcome: OutcomeConfirmed, Confirmed: confirmedCount}, nil
	}

	if err := pending.SetDescriptorMap(remaining); err != nil {
		return nil, err
	}
	pending.Processed = true
	if err := r.repo.SavePending(ctx, pending); err != nil {
		return nil, err
	}

	r.logger.Warn("Pending transaction partially confirmed",
		zap.String("transaction_hash", pending.TransactionHash),
		zap.Int("confirmed", confirmedCount),
		zap.Int("remaining", remainingCount))
	return &ReconcileResult{Outcome: OutcomePartial, Confirmed: confirmedCount, Remaining: remainingCount}, nil
}

func (r *Reconciler) descriptorCount(pending *PendingBatchTransaction) int {
	grouped, err := pending.DescriptorMap()
	if err != nil {
		return 0
	}
	count := 0
	for _, descriptors := range grouped {
		count += len(descriptors)
	}
	return count
}
