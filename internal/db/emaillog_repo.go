package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mailroom/internal/types"
)

// EmailLogRepository provides data access for the email_logs audit table.
// Rows are insert-only: exactly one per determined email job outcome, never
// mutated afterwards.
type EmailLogRepository struct {
	db DBTX
}

// NewEmailLogRepository creates a new EmailLogRepository backed by the given
// database connection (pool or transaction).
func NewEmailLogRepository(db DBTX) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

const emailLogColumns = `id, user_id, email_type, to_address, skipped, skipped_reason, created_at`

// scanEmailLog scans a single email_logs row. skipped_reason is nullable.
func scanEmailLog(row pgx.Row) (*types.EmailLog, error) {
	var (
		l      types.EmailLog
		reason *string
	)
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.EmailType,
		&l.ToAddress,
		&l.Skipped,
		&reason,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		l.SkippedReason = *reason
	}
	return &l, nil
}

// Create inserts a new audit row. The database assigns the ID and creation
// timestamp, which are written back into the struct.
func (r *EmailLogRepository) Create(ctx context.Context, log *types.EmailLog) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO email_logs (user_id, email_type, to_address, skipped, skipped_reason)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		log.UserID,
		string(log.EmailType),
		log.ToAddress,
		log.Skipped,
		nilIfEmpty(log.SkippedReason),
	)
	if err := row.Scan(&log.ID, &log.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create email log", err)
	}
	return nil
}

// CountByUser returns the number of audit rows recorded for a user.
func (r *EmailLogRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_logs WHERE user_id = $1`,
		userID,
	)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count email logs", err)
	}
	return count, nil
}

// Latest returns the most recently created audit row. Returns a
// not_found_email_log AppError when the table is empty.
func (r *EmailLogRepository) Latest(ctx context.Context) (*types.EmailLog, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+emailLogColumns+` FROM email_logs ORDER BY id DESC LIMIT 1`,
	)
	log, err := scanEmailLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundEmailLog, "no email logs recorded", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get latest email log", err)
	}
	return log, nil
}

// ListByUser returns the most recent audit rows for a user, newest first.
func (r *EmailLogRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*types.EmailLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+emailLogColumns+` FROM email_logs
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list email logs", err)
	}
	defer rows.Close()

	var results []*types.EmailLog
	for rows.Next() {
		log, scanErr := scanEmailLog(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email log row", scanErr)
		}
		results = append(results, log)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating email log rows", err)
	}

	return results, nil
}

// DeleteBefore hard-deletes audit rows older than the cutoff time. Used for
// retention cleanup. Returns the count of deleted records.
func (r *EmailLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM email_logs WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete old email logs", err)
	}
	return tag.RowsAffected(), nil
}

// nilIfEmpty maps an empty string to NULL for nullable text columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
