package attestation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testResolver = "0x1111111111111111111111111111111111111111"

func TestDefinitionRendering(t *testing.T) {
	schema := ProposalSchema(testResolver)
	assert.Equal(t, "string Name,string Organization,string Description,string URL,string Event", schema.Definition())

	schema = RewardSchema(testResolver)
	assert.Equal(t, "string Name,string Organization,string Description,string rewardURL,string Event", schema.Definition())
}

func TestUIDDeterministic(t *testing.T) {
	a, err := ProposalSchema(testResolver).UID()
	require.NoError(t, err)
	b, err := ProposalSchema(testResolver).UID()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 2+64)
	assert.Equal(t, "0x", a[:2])
}

func TestUIDSensitivity(t *testing.T) {
	base, err := ProposalSchema(testResolver).UID()
	require.NoError(t, err)

	// A different field list, resolver, or revocable flag each produce a
	// different identifier.
	reward, err := RewardSchema(testResolver).UID()
	require.NoError(t, err)
	assert.NotEqual(t, base, reward)

	otherResolver, err := ProposalSchema("0x2222222222222222222222222222222222222222").UID()
	require.NoError(t, err)
	assert.NotEqual(t, base, otherResolver)

	irrevocable := ProposalSchema(testResolver)
	irrevocable.Revocable = false
	flipped, err := irrevocable.UID()
	require.NoError(t, err)
	assert.NotEqual(t, base, flipped)
}

func TestUIDResolverCaseInsensitive(t *testing.T) {
	lower, err := ProposalSchema("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd").UID()
	require.NoError(t, err)
	upper, err := ProposalSchema("0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD").UID()
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
}

func TestUIDRejectsBadResolver(t *testing.T) {
	_, err := ProposalSchema("not-an-address").UID()
	assert.Error(t, err)

	_, err = ProposalSchema("0x1234").UID()
	assert.Error(t, err)
}

func TestPermalinkField(t *testing.T) {
	assert.Equal(t, FieldProposalURL, ProposalSchema(testResolver).PermalinkField())
	assert.Equal(t, FieldRewardURL, RewardSchema(testResolver).PermalinkField())
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	schema := ProposalSchema(testResolver)
	values := map[string]string{
		FieldName:         "Approved Contributor",
		FieldOrganization: "Test Org",
		FieldDescription:  "Granted when a proposal passes evaluation",
		FieldProposalURL:  "https://app.example.com/test-space/9f9c0a35-55a6-4f7b-bd34-41b15e4dd723",
		FieldEvent:        "Proposal Approved",
	}

	payload, err := schema.Encode(values)
	require.NoError(t, err)
	assert.Zero(t, len(payload)%wordSize)

	decoded, err := schema.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestEncodeEmptyValue(t *testing.T) {
	schema := Schema{Fields: []string{FieldName, FieldEvent}}
	payload, err := schema.Encode(map[string]string{FieldName: "", FieldEvent: "Proposal Approved"})
	require.NoError(t, err)

	decoded, err := schema.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "", decoded[FieldName])
	assert.Equal(t, "Proposal Approved", decoded[FieldEvent])
}

func TestEncodeMissingField(t *testing.T) {
	schema := ProposalSchema(testResolver)
	_, err := schema.Encode(map[string]string{FieldName: "only one"})
	assert.Error(t, err)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	schema := ProposalSchema(testResolver)
	values := map[string]string{
		FieldName:         "Approved Contributor",
		FieldOrganization: "Test Org",
		FieldDescription:  "desc",
		FieldProposalURL:  "https://app.example.com/test-space/x",
		FieldEvent:        "Proposal Approved",
	}
	payload, err := schema.Encode(values)
	require.NoError(t, err)

	_, err = schema.Decode(payload[:wordSize])
	assert.Error(t, err)

	// Chopping the tail leaves an offset pointing outside the buffer.
	_, err = schema.Decode(payload[:len(schema.Fields)*wordSize])
	assert.Error(t, err)
}

func TestDecodeRejectsOversizedWords(t *testing.T) {
	schema := Schema{Fields: []string{FieldName}}
	values := map[string]string{FieldName: "short"}

	// A length word past the int range must fail the bounds check, not wrap
	// negative and panic the slice expression.
	payload, err := schema.Encode(values)
	require.NoError(t, err)
	copy(payload[wordSize:2*wordSize], word(1<<63))
	assert.NotPanics(t, func() {
		_, err = schema.Decode(payload)
		assert.Error(t, err)
	})

	// Same for the offset word.
	payload, err = schema.Encode(values)
	require.NoError(t, err)
	copy(payload[:wordSize], word(1<<63))
	assert.NotPanics(t, func() {
		_, err = schema.Decode(payload)
		assert.Error(t, err)
	})
}

func TestDecodeOverrunLength(t *testing.T) {
	schema := Schema{Fields: []string{FieldName}}
	payload, err := schema.Encode(map[string]string{FieldName: "short"})
	require.NoError(t, err)

	// Inflate the recorded length word far past the buffer.
	copy(payload[wordSize:2*wordSize], word(1<<20))
	_, err = schema.Decode(payload)
	assert.Error(t, err)
}
