package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout mailroom.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// UserRepository provides read access to forum users plus the single write
// mailroom owns: advancing last_emailed_at on a confirmed send.
type UserRepository interface {
	// GetByID returns the user or a not_found_user AppError.
	GetByID(ctx context.Context, id int64) (*User, error)

	// UpdateLastEmailedAt advances last_emailed_at to sentAt. The update is
	// monotonic: an earlier timestamp never overwrites a later one.
	UpdateLastEmailedAt(ctx context.Context, userID int64, sentAt time.Time) error
}

// PostRepository provides read access to posts with author and topic hydrated.
type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*Post, error)
}

// NotificationRepository provides read access to forum notifications.
type NotificationRepository interface {
	GetByID(ctx context.Context, id int64) (*Notification, error)
}

// EmailLogRepository persists and queries the email audit trail.
// Rows are insert-only: exactly one per determined job outcome.
type EmailLogRepository interface {
	Create(ctx context.Context, log *EmailLog) error
	CountByUser(ctx context.Context, userID int64) (int64, error)
	Latest(ctx context.Context) (*EmailLog, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*EmailLog, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sender is the external transport boundary. Implementations transmit a
// pre-rendered message and return the provider's message ID; failures
// propagate as errors and are never converted into skip outcomes.
type Sender interface {
	Send(ctx context.Context, input SendInput) (providerMsgID string, err error)
}
