package credentials

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"credence/workspace-portal/credentials-engine/internal/workspace"
)

// Calculator computes which credentials are still owed for a subject. It is
// pure: no I/O, no mutation, deterministic for identical inputs, safe to
// invoke arbitrarily often and under unbounded concurrency.
type Calculator struct {
	AppURL string
}

// NewCalculator creates a calculator rendering permalinks under the given
// application base URL.
func NewCalculator(appURL string) *Calculator {
	return &Calculator{AppURL: strings.TrimSuffix(appURL, "/")}
}

// ProposalPlanInput is everything the calculator consumes for a proposal
// subject, loaded up front so planning itself touches nothing.
type ProposalPlanInput struct {
	Snapshot     workspace.ProposalSnapshot
	Space        workspace.SpaceConfig
	Templates    []CredentialTemplate
	Issued       []IssuedCredential
	InFlightKeys map[string]bool
}

// RewardPlanInput is the calculator input for a reward application subject.
type RewardPlanInput struct {
	Snapshot     workspace.RewardApplicationSnapshot
	Space        workspace.SpaceConfig
	Templates    []CredentialTemplate
	Issued       []IssuedCredential
	InFlightKeys map[string]bool
}

// PlanProposal diffs "who should receive what" against "already issued" and
// "already in flight" for a proposal. A proposal is eligible only if it is not
// a draft, has at least one selected template, the space has on-chain
// credentials enabled, and its current evaluation result is a pass.
func (c *Calculator) PlanProposal(in ProposalPlanInput) ([]CredentialDescriptor, error) {
	s := in.Snapshot
	if !in.Space.OnchainCredentialsEnable ||
		s.Status == workspace.ProposalStatusDraft ||
		len(s.SelectedTemplateIDs) == 0 ||
		s.CurrentEvaluation != workspace.EvaluationResultPass {
		return nil, nil
	}

	return c.plan(planContext{
		kind:         KindProposal,
		subjectID:    s.ID,
		spaceDomain:  in.Space.Domain,
		recipients:   s.Authors,
		templateIDs:  s.SelectedTemplateIDs,
		catalogue:    in.Templates,
		issued:       in.Issued,
		inFlightKeys: in.InFlightKeys,
	})
}

// PlanReward diffs owed credentials for a reward application. The applicant is
// eligible only once the application is complete, processing, or paid.
func (c *Calculator) PlanReward(in RewardPlanInput) ([]CredentialDescriptor, error) {
	s := in.Snapshot
	if !workspace.CredentialEligible(s.Status) {
		return nil, nil
	}

	return c.plan(planContext{
		kind:         KindReward,
		subjectID:    s.ID,
		spaceDomain:  in.Space.Domain,
		recipients:   []workspace.Recipient{s.Applicant},
		templateIDs:  s.SelectedTemplateIDs,
		catalogue:    in.Templates,
		issued:       in.Issued,
		inFlightKeys: in.InFlightKeys,
	})
}

type planContext struct {
	kind         CredentialKind
	subjectID    uuid.UUID
	spaceDomain  string
	recipients   []workspace.Recipient
	templateIDs  []uuid.UUID
	catalogue    []CredentialTemplate
	issued       []IssuedCredential
	inFlightKeys map[string]bool
}

// plan walks recipients (outer) × selected templates (middle) × triggering
// events (inner), emitting a descriptor for every combination not already
// issued or in flight.
func (c *Calculator) plan(pc planContext) ([]CredentialDescriptor, error) {
	byID := make(map[uuid.UUID]*CredentialTemplate, len(pc.catalogue))
	for i := range pc.catalogue {
		byID[pc.catalogue[i].ID] = &pc.catalogue[i]
	}

	confirmed := make(map[string]bool, len(pc.issued))
	for i := range pc.issued {
		row := &pc.issued[i]
		if row.Confirmed() && row.SubjectID() == pc.subjectID {
			confirmed[issuedKey(row.TemplateID, row.UserID, row.EventKind)] = true
		}
	}

	permalink := c.permalink(pc.spaceDomain, pc.subjectID)

	var descriptors []CredentialDescriptor
	for _, recipient := range pc.recipients {
		wallet := recipient.Wallet()
		if wallet == "" {
			continue
		}

		for _, templateID := range pc.templateIDs {
			template, ok := byID[templateID]
			if !ok {
				continue
			}
			events, err := template.Events()
			if err != nil {
				return nil, err
			}

			for _, event := range events {
				if pc.inFlightKeys[DescriptorKey(templateID, event, wallet)] {
					continue
				}
				if confirmed[issuedKey(templateID, recipient.UserID, event)] {
					continue
				}

				descriptors = append(descriptors, CredentialDescriptor{
					RecipientAddress: wallet,
					RecipientUserID:  recipient.UserID,
					SubjectID:        pc.subjectID,
					EventKind:        event,
					TemplateID:       templateID,
					Content: CredentialContent{
						Name:         template.Name,
						Description:  template.Description,
						Organization: template.Organization,
						EventText:    event.EventVerb(),
						Permalink:    permalink,
					},
				})
			}
		}
	}
	return descriptors, nil
}

func (c *Calculator) permalink(domain string, subjectID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s", c.AppURL, domain, subjectID)
}

func issuedKey(templateID, userID uuid.UUID, event EventKind) string {
	return fmt.Sprintf("%s:%s:%s", templateID, userID, event)
}
