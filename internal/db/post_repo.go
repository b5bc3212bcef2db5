package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mailroom/internal/types"
)

// PostRepository provides data access for the posts table. GetByID hydrates
// the post's author and topic (including the private-message participant
// list) so the policy engine can evaluate staff and participant rules
// without further lookups.
type PostRepository struct {
	db DBTX
}

// NewPostRepository creates a new PostRepository backed by the given
// database connection (pool or transaction).
func NewPostRepository(db DBTX) *PostRepository {
	return &PostRepository{db: db}
}

// GetByID retrieves a post with its author and topic hydrated.
// Returns a not_found_post AppError when the row does not exist.
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*types.Post, error) {
	row := r.db.QueryRow(ctx,
		`SELECT p.id, p.topic_id, p.user_id, p.post_number, p.excerpt,
		        p.user_deleted, p.created_at,
		        `+userColumns+`,
		        t.id, t.title, t.archetype
		 FROM posts p
		 JOIN users u ON u.id = p.user_id
		 JOIN topics t ON t.id = p.topic_id
		 WHERE p.id = $1`,
		id,
	)

	var (
		p      types.Post
		author types.User
		topic  types.Topic
	)
	err := row.Scan(
		&p.ID,
		&p.TopicID,
		&p.UserID,
		&p.PostNumber,
		&p.Excerpt,
		&p.UserDeleted,
		&p.CreatedAt,
		&author.ID,
		&author.Username,
		&author.Email,
		&author.Staged,
		&author.Anonymous,
		&author.Moderator,
		&author.Admin,
		&author.EmailAlways,
		&author.LastSeenAt,
		&author.LastEmailedAt,
		&author.SuspendedAt,
		&author.SuspendedTill,
		&author.CreatedAt,
		&topic.ID,
		&topic.Title,
		&topic.Archetype,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPost, "post not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get post", err)
	}

	allowed, err := r.topicAllowedUserIDs(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	topic.AllowedUserIDs = allowed

	p.Author = &author
	p.Topic = &topic
	return &p, nil
}

// topicAllowedUserIDs loads the private-message participant list for a topic.
// An empty list is normal for regular (non-PM) topics.
func (r *PostRepository) topicAllowedUserIDs(ctx context.Context, topicID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM topic_allowed_users WHERE topic_id = $1 ORDER BY user_id`,
		topicID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get topic allowed users", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan allowed user row", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating allowed user rows", err)
	}

	return ids, nil
}
