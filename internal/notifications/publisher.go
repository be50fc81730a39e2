package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CredentialCreatedEvent is published to the workspace notification bus the
// first time a credential row is created. Re-confirmations of an existing row
// never publish.
type CredentialCreatedEvent struct {
	CredentialID   uuid.UUID `json:"credential_id"`
	TemplateID     uuid.UUID `json:"template_id"`
	UserID         uuid.UUID `json:"user_id"`
	SubjectID      uuid.UUID `json:"subject_id"`
	CredentialKind string    `json:"credential_kind"`
	EventKind      string    `json:"event_kind"`
	ChainID        int64     `json:"chain_id"`
	AttestationUID string    `json:"attestation_uid"`
	CreatedAt      time.Time `json:"created_at"`
}

// Publisher delivers credential lifecycle events to the notification bus.
type Publisher interface {
	PublishCredentialCreated(ctx context.Context, event *CredentialCreatedEvent) error
}

// SNSPublisher publishes events to an SNS topic consumed by the workspace
// notification/webhook bus.
type SNSPublisher struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewSNSPublisher creates a publisher for the given topic.
func NewSNSPublisher(ctx context.Context, region, topicARN string, logger *zap.Logger) (*SNSPublisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SNSPublisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

// PublishCredentialCreated publishes one credential.created event.
func (p *SNSPublisher) PublishCredentialCreated(ctx context.Context, event *CredentialCreatedEvent) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":  "credential.created",
		"event": event,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credential event: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish credential event: %w", err)
	}

	p.logger.Info("Published credential.created event",
		zap.String("credential_id", event.CredentialID.String()),
		zap.String("attestation_uid", event.AttestationUID))
	return nil
}

// LogPublisher logs events instead of publishing them. Used when no topic is
// configured and in tests.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a log-only publisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// PublishCredentialCreated logs the event.
func (p *LogPublisher) PublishCredentialCreated(_ context.Context, event *CredentialCreatedEvent) error {
	p.logger.Info("credential.created",
		zap.String("credential_id", event.CredentialID.String()),
		zap.String("user_id", event.UserID.String()),
		zap.String("event_kind", event.EventKind),
		zap.String("attestation_uid", event.AttestationUID))
	return nil
}
