package types

import (
	"github.com/go-playground/validator/v10"
)

// EmailJobMessage is the SQS payload the forum application enqueues for each
// email job. JSON tags use snake_case to match the producer's serializer.
type EmailJobMessage struct {
	// Required routing arguments.
	Type   string `json:"type" validate:"required"`
	UserID int64  `json:"user_id" validate:"required,gt=0"`

	// Optional entity references.
	PostID         int64 `json:"post_id,omitempty"`
	NotificationID int64 `json:"notification_id,omitempty"`

	// Optional per-call arguments.
	EmailToken string `json:"email_token,omitempty"`
	ToAddress  string `json:"to_address,omitempty" validate:"omitempty,email"`
	ForceSend  bool   `json:"force_send,omitempty"`

	// Retry state: carried across the SQS publish cycle and incremented by
	// the publisher before re-queueing.
	RetryCount int `json:"retry_count"`

	// Observability.
	TraceID string `json:"trace_id,omitempty"`
}

var messageValidate = validator.New()

// Validate checks the message's argument shape. Type resolution against the
// EmailType registry is the orchestrator's job; this only enforces presence
// and formats.
func (m *EmailJobMessage) Validate() error {
	if err := messageValidate.Struct(m); err != nil {
		return NewAppError(ErrCodeInvalidParameters, "invalid email job message", err)
	}
	return nil
}
