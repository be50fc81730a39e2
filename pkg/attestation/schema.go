package attestation

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Schema describes the fixed, ordered field layout of one credential kind.
// The field list must match between the encode path (direct issuance) and the
// decode path (reconciliation) exactly, otherwise the UID diverges and
// confirmed attestations can never be matched back to their schema.
type Schema struct {
	Fields    []string `json:"fields"`
	Resolver  string   `json:"resolver"`
	Revocable bool     `json:"revocable"`
}

// Field names for the proposal credential payload, in wire order.
const (
	FieldName         = "Name"
	FieldOrganization = "Organization"
	FieldDescription  = "Description"
	FieldProposalURL  = "URL"
	FieldRewardURL    = "rewardURL"
	FieldEvent        = "Event"
)

// ProposalSchema is the payload layout for proposal credentials.
func ProposalSchema(resolver string) Schema {
	return Schema{
		Fields:    []string{FieldName, FieldOrganization, FieldDescription, FieldProposalURL, FieldEvent},
		Resolver:  resolver,
		Revocable: true,
	}
}

// RewardSchema is the payload layout for reward credentials. Same shape as the
// proposal schema but the permalink travels under a reward-specific field name.
func RewardSchema(resolver string) Schema {
	return Schema{
		Fields:    []string{FieldName, FieldOrganization, FieldDescription, FieldRewardURL, FieldEvent},
		Resolver:  resolver,
		Revocable: true,
	}
}

// Definition renders the canonical field-list definition that is hashed into
// the schema UID. Every field is a string field.
func (s Schema) Definition() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = "string " + f
	}
	return strings.Join(parts, ",")
}

// UID computes the deterministic schema identifier:
// keccak256(definition ++ resolver address bytes ++ revocable flag byte).
func (s Schema) UID() (string, error) {
	resolver, err := decodeAddress(s.Resolver)
	if err != nil {
		return "", fmt.Errorf("invalid resolver address %q: %w", s.Resolver, err)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(s.Definition()))
	h.Write(resolver)
	if s.Revocable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// PermalinkField returns the field carrying the subject permalink.
func (s Schema) PermalinkField() string {
	for _, f := range s.Fields {
		if f == FieldProposalURL || f == FieldRewardURL {
			return f
		}
	}
	return ""
}

func decodeAddress(addr string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.ToLower(addr), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("address must be 20 bytes, got %d", len(b))
	}
	return b, nil
}
