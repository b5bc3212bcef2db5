// Package main is the entrypoint for the email worker Lambda function.
//
// The worker consumes EmailJobMessages from the email job SQS queue and runs
// each through the mailer pipeline: argument validation, record resolution,
// eligibility policy, message building, provider send, and the audit log
// write. It uses the SQS Lambda handler pattern where each invocation
// receives a batch of messages.
//
// Failure handling per message:
//   - Malformed JSON or invalid arguments: ACK. Redelivery cannot fix a bad
//     message, and no audit row is owed.
//   - Rate-limited provider: re-publish with a delay and ACK the original,
//     up to the retry cap.
//   - Any other error: reported in batchItemFailures so SQS redelivers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"mailroom/internal/config"
	"mailroom/internal/db"
	"mailroom/internal/external"
	"mailroom/internal/mailer"
	"mailroom/internal/queue"
	"mailroom/internal/types"
)

// maxSendRetries caps provider-side retries before a job is surfaced to the
// queue's redrive policy.
const maxSendRetries = 5

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info/Error/Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// Handler holds the dependencies of the worker Lambda handler.
type Handler struct {
	job       *mailer.UserEmailJob
	publisher *queue.EmailJobPublisher
	metrics   external.EmailMetrics
	logger    types.Logger
}

// Handle processes an SQS event. Each message is processed independently;
// messages that fail with a retryable error are returned in
// batchItemFailures so SQS redelivers only those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage runs a single email job. A nil return ACKs the message.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	start := time.Now()

	var msg types.EmailJobMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal email job message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure; redelivery cannot fix it.
		return nil
	}

	logger := h.logger.With(
		"email_type", msg.Type,
		"user_id", msg.UserID,
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)
	logger.Info("processing email job")

	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if millis, err := strconv.ParseInt(sentTimestamp, 10, 64); err == nil {
			h.metrics.RecordQueueLag(ctx, time.Since(time.UnixMilli(millis)))
		}
	}

	if msg.TraceID != "" {
		ctx = types.WithRequestID(ctx, msg.TraceID)
	}

	emailType := types.EmailType(msg.Type)
	outcome, err := h.job.Execute(ctx, mailer.JobArgs{
		Type:           msg.Type,
		UserID:         msg.UserID,
		PostID:         msg.PostID,
		NotificationID: msg.NotificationID,
		EmailToken:     msg.EmailToken,
		ToAddress:      msg.ToAddress,
		ForceSend:      msg.ForceSend,
		TraceID:        msg.TraceID,
	})
	h.metrics.RecordLatency(ctx, emailType, time.Since(start))

	switch {
	case err == nil:
		result := external.MetricResultSent
		if outcome == mailer.OutcomeSkip {
			result = external.MetricResultSkipped
		}
		h.metrics.RecordAttempt(ctx, emailType, result)
		return nil

	case types.IsInvalidParameters(err):
		// Bad arguments are permanent; ACK instead of poisoning the queue.
		logger.Error("dropping email job with invalid arguments", "error", err.Error())
		h.metrics.RecordAttempt(ctx, emailType, external.MetricResultFailed)
		return nil

	case isRateLimited(err):
		h.metrics.RecordAttempt(ctx, emailType, external.MetricResultFailed)
		return h.scheduleRetry(ctx, msg, logger)

	default:
		h.metrics.RecordAttempt(ctx, emailType, external.MetricResultFailed)
		return err
	}
}

// scheduleRetry re-publishes a rate-limited job with exponential delay and
// ACKs the original, keeping the queue moving while the provider recovers.
func (h *Handler) scheduleRetry(ctx context.Context, msg types.EmailJobMessage, logger types.Logger) error {
	if msg.RetryCount >= maxSendRetries {
		logger.Error("email job exhausted retries, surfacing to redrive policy")
		return fmt.Errorf("email job for user %d exhausted %d retries", msg.UserID, msg.RetryCount)
	}

	delay := 30 * time.Second << uint(msg.RetryCount)
	if err := h.publisher.PublishRetry(ctx, msg, delay); err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}

	logger.Info("email job retry scheduled",
		"delay_seconds", int64(delay/time.Second),
		"next_retry_count", msg.RetryCount+1,
	)
	return nil
}

// isRateLimited reports whether the error chain carries the upstream
// rate-limit code.
func isRateLimited(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("email worker initializing (cold start)",
		"environment", cfg.Environment,
		"email_provider", cfg.Email.Provider,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	registry, err := mailer.NewTemplateRegistry(typedLogger)
	if err != nil {
		logger.Error("failed to build template registry", "error", err)
		os.Exit(1)
	}

	var sender types.Sender
	var metrics external.EmailMetrics
	var publisher *queue.EmailJobPublisher

	if cfg.IsLocal() || cfg.Email.Provider == "stub" {
		sender = external.NewStubSender(typedLogger)
		metrics = external.NoopEmailMetrics{}
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		base := external.NewBaseClient(
			&http.Client{Timeout: 10 * time.Second},
			"sendgrid",
			external.DefaultRetryPolicy(),
			"Mailroom/1.0",
		)
		sender = external.NewSendGridClient(base, external.SendGridClientConfig{
			APIKey: cfg.Email.SendGridKey,
			Logger: typedLogger,
		})
		metrics = external.NewCloudWatchEmailMetrics(cloudwatch.NewFromConfig(awsCfg), typedLogger)
		publisher = queue.NewEmailJobPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.EmailJobQueue, typedLogger)
	}

	clock := types.RealClock{}
	settings := mailer.PolicySettings{
		EmailTimeWindow:       time.Duration(cfg.Site.EmailTimeWindowMins) * time.Minute,
		AllowAnonymousPosting: cfg.Site.AllowAnonymousPosting,
	}

	job := mailer.NewUserEmailJob(mailer.UserEmailJobConfig{
		Users:         db.NewUserRepository(pool),
		Posts:         db.NewPostRepository(pool),
		Notifications: db.NewNotificationRepository(pool),
		EmailLogs:     db.NewEmailLogRepository(pool),
		Policy:        mailer.NewPolicyEngine(clock, typedLogger),
		Builder: mailer.NewMessageBuilder(registry, mailer.BuilderConfig{
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			SiteName:    cfg.Site.Name,
			BaseURL:     cfg.Email.BaseURL,
		}, typedLogger),
		Sender:   sender,
		Clock:    clock,
		Logger:   typedLogger,
		Settings: settings,
	})

	handler := &Handler{
		job:       job,
		publisher: publisher,
		metrics:   metrics,
		logger:    typedLogger,
	}

	logger.Info("email worker initialized",
		"queue", cfg.AWS.EmailJobQueue,
		"from_address", cfg.Email.FromAddress,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. Enables local testing without the Lambda RIE.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | email-worker
	if cfg.IsLocal() {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("no input received on stdin")
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		return
	}

	lambda.Start(handler.Handle)
}

// logLevel maps the configured level name to a slog.Level.
func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
