package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mailroom/internal/types"
)

// NotificationRepository provides data access for the notifications table.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by
// the given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// GetByID retrieves a notification by primary key. Returns a
// not_found_notification AppError when the row does not exist.
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*types.Notification, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, topic_id, post_number, notification_type,
		        read, data, created_at
		 FROM notifications
		 WHERE id = $1`,
		id,
	)

	var n types.Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.TopicID,
		&n.PostNumber,
		&n.Type,
		&n.Read,
		&n.Data,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification", err)
	}

	return &n, nil
}
