// Package queue provides the SQS producer side of mailroom: enqueueing email
// jobs for the worker, including delayed re-queues for retries.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"mailroom/internal/types"
)

// sqsMaxDelay is the hard SQS cap on per-message delay.
const sqsMaxDelay = 900 * time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EmailJobPublisher serializes EmailJobMessages onto the email job queue.
// The forum application is the primary producer; mailroom itself publishes
// when re-queueing a job with a delay.
type EmailJobPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewEmailJobPublisher creates a publisher for the given queue URL.
func NewEmailJobPublisher(client SQSSender, queueURL string, logger types.Logger) *EmailJobPublisher {
	return &EmailJobPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish enqueues one email job. A missing TraceID is filled in so every
// job is correlatable across the producer, the worker, and the provider.
func (p *EmailJobPublisher) Publish(ctx context.Context, msg types.EmailJobMessage, reason string) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return p.send(ctx, msg, 0, reason)
}

// PublishRetry re-enqueues a job with its retry count advanced and the given
// delivery delay. Delays beyond the SQS cap are clamped to 900 seconds.
func (p *EmailJobPublisher) PublishRetry(ctx context.Context, msg types.EmailJobMessage, delay time.Duration) error {
	msg.RetryCount++
	if delay > sqsMaxDelay {
		delay = sqsMaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return p.send(ctx, msg, delay, "retry")
}

func (p *EmailJobPublisher) send(ctx context.Context, msg types.EmailJobMessage, delay time.Duration, reason string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal email job message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}
	if delay > 0 {
		input.DelaySeconds = int32(delay / time.Second)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send email job to %s: %w", p.queueURL, err)
	}

	p.logger.Info("email job enqueued",
		"queue_url", p.queueURL,
		"email_type", msg.Type,
		"user_id", msg.UserID,
		"trace_id", msg.TraceID,
		"retry_count", msg.RetryCount,
		"delay_seconds", int64(delay/time.Second),
		"reason", reason,
	)
	return nil
}
