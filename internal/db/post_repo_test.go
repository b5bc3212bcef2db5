package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mailroom/internal/types"
)

// scanPostRow fills the combined post + author + topic scan targets used by
// PostRepository.GetByID.
func scanPostRow(authorModerator bool, userDeleted bool) func(dest ...any) error {
	created := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	return func(dest ...any) error {
		*dest[0].(*int64) = 100           // post id
		*dest[1].(*int64) = 200           // topic_id
		*dest[2].(*int64) = 55            // user_id (author)
		*dest[3].(*int) = 3               // post_number
		*dest[4].(*string) = "an excerpt" // excerpt
		*dest[5].(*bool) = userDeleted    // user_deleted
		*dest[6].(*time.Time) = created   // created_at

		*dest[7].(*int64) = 55                   // author id
		*dest[8].(*string) = "bubblegum"         // username
		*dest[9].(*string) = "pb@ooo.example"    // email
		*dest[10].(*bool) = false                // staged
		*dest[11].(*bool) = false                // anonymous
		*dest[12].(*bool) = authorModerator      // moderator
		*dest[13].(*bool) = false                // admin
		*dest[14].(*bool) = false                // email_always
		*dest[15].(**time.Time) = nil            // last_seen_at
		*dest[16].(**time.Time) = nil            // last_emailed_at
		*dest[17].(**time.Time) = nil            // suspended_at
		*dest[18].(**time.Time) = nil            // suspended_till
		*dest[19].(*time.Time) = created         // author created_at

		*dest[20].(*int64) = 200                         // topic id
		*dest[21].(*string) = "Secret plans"             // title
		*dest[22].(*string) = "private_message"          // archetype
		return nil
	}
}

func TestPostRepository_GetByID_HydratesAuthorAndTopic(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPostRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{int64(100)}).
		Return(&mockRow{scanFn: scanPostRow(true, false)})
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{int64(200)}).
		Return(newMockRows([][]any{{int64(42)}, {int64(55)}}), nil)

	post, err := repo.GetByID(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, int64(100), post.ID)
	assert.Equal(t, 3, post.PostNumber)
	assert.False(t, post.UserDeleted)

	require.NotNil(t, post.Author)
	assert.Equal(t, "bubblegum", post.Author.Username)
	assert.True(t, post.Author.Staff())

	require.NotNil(t, post.Topic)
	assert.Equal(t, types.ArchetypePrivateMessage, post.Topic.Archetype)
	assert.Equal(t, []int64{42, 55}, post.Topic.AllowedUserIDs)
	assert.True(t, post.Topic.AllowsUser(42))
	assert.False(t, post.Topic.AllowsUser(77))

	db.AssertExpectations(t)
}

func TestPostRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPostRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), 404)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPost, appErr.Code)
}

func TestPostRepository_GetByID_AllowedUsersQueryFails(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPostRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: scanPostRow(false, false)})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.GetByID(context.Background(), 100)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
