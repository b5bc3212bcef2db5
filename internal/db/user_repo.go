package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mailroom/internal/types"
)

// UserRepository provides data access for the users table. Mailroom reads
// user rows and owns a single write: advancing last_emailed_at after a
// confirmed send.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
// Used consistently across all query methods to avoid column drift.
const userColumns = `u.id, u.username, u.email, u.staged, u.anonymous,
	u.moderator, u.admin, u.email_always, u.last_seen_at, u.last_emailed_at,
	u.suspended_at, u.suspended_till, u.created_at`

// scanUser scans a single user row into a types.User struct.
// The columns must match the order defined in userColumns.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Staged,
		&u.Anonymous,
		&u.Moderator,
		&u.Admin,
		&u.EmailAlways,
		&u.LastSeenAt,
		&u.LastEmailedAt,
		&u.SuspendedAt,
		&u.SuspendedTill,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID retrieves a user by primary key. Returns a not_found_user AppError
// when the row does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return user, nil
}

// UpdateLastEmailedAt advances the user's last_emailed_at marker to sentAt.
// The GREATEST expression keeps the column monotonically non-decreasing even
// if two sends for the same user race.
func (r *UserRepository) UpdateLastEmailedAt(ctx context.Context, userID int64, sentAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET
			last_emailed_at = GREATEST(COALESCE(last_emailed_at, 'epoch'::timestamptz), $2)
		 WHERE id = $1`,
		userID,
		sentAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last_emailed_at", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
