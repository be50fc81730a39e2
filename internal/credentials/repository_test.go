package credentials

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertIssuedRejectsMissingSubject(t *testing.T) {
	repo := NewRepository(nil)

	_, err := repo.UpsertIssued(context.Background(), &IssuedCredential{
		TemplateID: uuid.New(),
		UserID:     uuid.New(),
		EventKind:  EventProposalApproved,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// The uniqueness guard for issued rows is a partial index per subject kind.
// A single index spanning both nullable subject columns never conflicts under
// Postgres's default NULL semantics, so the guard must stay split.
func TestIssuedCredentialUniqueIndexPerSubject(t *testing.T) {
	typ := reflect.TypeOf(IssuedCredential{})

	proposal, ok := typ.FieldByName("ProposalID")
	require.True(t, ok)
	assert.Contains(t, proposal.Tag.Get("gorm"), "uniqueIndex:idx_issued_proposal_key")
	assert.Contains(t, proposal.Tag.Get("gorm"), "where:proposal_id IS NOT NULL")
	assert.NotContains(t, proposal.Tag.Get("gorm"), "idx_issued_reward_key")

	reward, ok := typ.FieldByName("RewardApplicationID")
	require.True(t, ok)
	assert.Contains(t, reward.Tag.Get("gorm"), "uniqueIndex:idx_issued_reward_key")
	assert.Contains(t, reward.Tag.Get("gorm"), "where:reward_application_id IS NOT NULL")
	assert.NotContains(t, reward.Tag.Get("gorm"), "idx_issued_proposal_key")

	// The key columns participate in both partial indexes.
	for _, name := range []string{"TemplateID", "UserID", "EventKind"} {
		field, ok := typ.FieldByName(name)
		require.True(t, ok)
		assert.Contains(t, field.Tag.Get("gorm"), "uniqueIndex:idx_issued_proposal_key")
		assert.Contains(t, field.Tag.Get("gorm"), "uniqueIndex:idx_issued_reward_key")
	}
}
