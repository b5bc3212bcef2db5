package mailer

import (
	"context"
	"errors"
	"fmt"

	"mailroom/internal/types"
)

// JobArgs are the raw arguments of one email job as they arrive off the
// queue. Type and UserID are mandatory; everything else depends on the type.
type JobArgs struct {
	Type           string
	UserID         int64
	PostID         int64
	NotificationID int64
	EmailToken     string
	ToAddress      string
	ForceSend      bool
	TraceID        string
}

// UserEmailJob orchestrates one email decision end to end: resolve the
// referenced records, evaluate eligibility, build the message, send it, and
// write exactly one audit row per determined outcome.
type UserEmailJob struct {
	users         types.UserRepository
	posts         types.PostRepository
	notifications types.NotificationRepository
	emailLogs     types.EmailLogRepository
	policy        *PolicyEngine
	builder       *MessageBuilder
	sender        types.Sender
	clock         types.Clock
	logger        types.Logger
	settings      PolicySettings
}

// UserEmailJobConfig holds the dependencies of a UserEmailJob.
type UserEmailJobConfig struct {
	Users         types.UserRepository
	Posts         types.PostRepository
	Notifications types.NotificationRepository
	EmailLogs     types.EmailLogRepository
	Policy        *PolicyEngine
	Builder       *MessageBuilder
	Sender        types.Sender
	Clock         types.Clock
	Logger        types.Logger
	Settings      PolicySettings
}

// NewUserEmailJob creates the job orchestrator.
func NewUserEmailJob(cfg UserEmailJobConfig) *UserEmailJob {
	return &UserEmailJob{
		users:         cfg.Users,
		posts:         cfg.Posts,
		notifications: cfg.Notifications,
		emailLogs:     cfg.EmailLogs,
		policy:        cfg.Policy,
		builder:       cfg.Builder,
		sender:        cfg.Sender,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		settings:      cfg.Settings,
	}
}

// Execute runs one email job to completion and reports the decided outcome.
//
// Outcome contract:
//   - Invalid arguments (missing user_id or type, unknown type): returns an
//     invalid_parameters error and writes no audit row.
//   - User no longer exists: skip outcome, nil error, no audit row.
//   - Policy or builder skip: one audit row with skipped=true and the
//     reason; nothing is sent and last_emailed_at is untouched.
//   - Successful send: one audit row with skipped=false, then
//     last_emailed_at advances to the send time.
//   - Transport failure: the error propagates and no audit row is written,
//     so the queue's retry policy re-runs the whole decision.
func (j *UserEmailJob) Execute(ctx context.Context, args JobArgs) (Outcome, error) {
	log := j.logger.With(
		"user_id", args.UserID,
		"email_type", args.Type,
		"trace_id", args.TraceID,
	)

	if args.UserID <= 0 {
		return "", types.NewAppError(types.ErrCodeInvalidParameters, "user_id is required", nil)
	}
	if args.Type == "" {
		return "", types.NewAppError(types.ErrCodeInvalidParameters, "type is required", nil)
	}
	emailType, err := types.ParseEmailType(args.Type)
	if err != nil {
		return "", err
	}

	user, err := j.users.GetByID(ctx, args.UserID)
	if err != nil {
		if isNotFound(err, types.ErrCodeNotFoundUser) {
			log.Info("user no longer exists, dropping email job")
			return OutcomeSkip, nil
		}
		return "", err
	}

	notification, err := j.resolveNotification(ctx, log, args.NotificationID)
	if err != nil {
		return "", err
	}

	post, err := j.resolvePost(ctx, log, args.PostID, notification)
	if err != nil {
		return "", err
	}

	ec := EmailContext{
		Post:         post,
		Notification: notification,
		ForceSend:    args.ForceSend,
		Settings:     j.settings,
	}

	decision := j.policy.Evaluate(ctx, user, emailType, ec)
	if decision.Skipped() {
		return OutcomeSkip, j.writeLog(ctx, user, emailType, args, true, decision.Reason)
	}

	envelope, skip, err := j.builder.Build(user, emailType, BuildContext{
		Post:         post,
		Notification: notification,
		EmailToken:   args.EmailToken,
	})
	if err != nil {
		return "", err
	}
	if skip != nil {
		return OutcomeSkip, j.writeLog(ctx, user, emailType, args, true, skip.Reason)
	}

	// An explicit destination overrides the user's address only at dispatch
	// time; eligibility was still evaluated against the user.
	if args.ToAddress != "" {
		envelope.To = []string{args.ToAddress}
	}

	msgID, err := j.sender.Send(ctx, types.SendInput{
		To:          envelope.To,
		FromAddress: envelope.FromAddress,
		FromName:    envelope.FromName,
		Subject:     envelope.Subject,
		BodyText:    envelope.BodyText,
		BodyHTML:    envelope.BodyHTML,
		ReferenceID: envelope.ReferenceID,
	})
	if err != nil {
		return "", fmt.Errorf("sending %s email to user %d: %w", emailType, user.ID, err)
	}

	log.Info("email sent",
		"provider_message_id", msgID,
		"to", envelope.To,
	)

	if err := j.writeLog(ctx, user, emailType, args, false, ""); err != nil {
		return OutcomeSend, err
	}

	sentAt := j.clock.Now()
	if err := j.users.UpdateLastEmailedAt(ctx, user.ID, sentAt); err != nil {
		return OutcomeSend, err
	}

	return OutcomeSend, nil
}

// resolveNotification loads the referenced notification. A notification that
// was deleted between enqueue and execution degrades to nil rather than
// failing the job.
func (j *UserEmailJob) resolveNotification(ctx context.Context, log types.Logger, id int64) (*types.Notification, error) {
	if id <= 0 {
		return nil, nil
	}
	n, err := j.notifications.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err, types.ErrCodeNotFoundNotification) {
			log.Warn("notification no longer exists", "notification_id", id)
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// resolvePost loads the post the email references. When the notification
// payload carries an original_post_id it wins over the explicit argument,
// since the notification records what the user was actually notified about.
func (j *UserEmailJob) resolvePost(ctx context.Context, log types.Logger, postID int64, notification *types.Notification) (*types.Post, error) {
	id := postID
	if notification != nil {
		if orig := notification.OriginalPostID(); orig > 0 {
			id = orig
		}
	}
	if id <= 0 {
		return nil, nil
	}

	p, err := j.posts.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err, types.ErrCodeNotFoundPost) {
			log.Warn("post no longer exists", "post_id", id)
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// writeLog inserts the single audit row for a determined outcome.
func (j *UserEmailJob) writeLog(ctx context.Context, user *types.User, emailType types.EmailType, args JobArgs, skipped bool, reason string) error {
	to := user.Email
	if args.ToAddress != "" {
		to = args.ToAddress
	}

	entry := &types.EmailLog{
		UserID:        user.ID,
		EmailType:     emailType,
		ToAddress:     to,
		Skipped:       skipped,
		SkippedReason: reason,
	}
	if err := j.emailLogs.Create(ctx, entry); err != nil {
		return fmt.Errorf("recording email log for user %d: %w", user.ID, err)
	}
	return nil
}

// isNotFound reports whether err is an AppError with the given code.
func isNotFound(err error, code types.ErrorCode) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
