package types

import (
	"encoding/json"
	"time"
)

// User is the forum account targeted by an email job. Mailroom reads users
// and, on a confirmed send, advances LastEmailedAt; everything else is owned
// by the forum application.
type User struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`

	// Account state
	Staged    bool `json:"staged" db:"staged"`
	Anonymous bool `json:"anonymous" db:"anonymous"`
	Moderator bool `json:"moderator" db:"moderator"`
	Admin     bool `json:"admin" db:"admin"`

	// Email preferences
	EmailAlways bool `json:"email_always" db:"email_always"`

	// Activity markers (nullable in the database)
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
	LastEmailedAt *time.Time `json:"last_emailed_at,omitempty" db:"last_emailed_at"`

	// Suspension window. A user is suspended iff SuspendedTill is in the
	// future at evaluation time.
	SuspendedAt   *time.Time `json:"suspended_at,omitempty" db:"suspended_at"`
	SuspendedTill *time.Time `json:"suspended_till,omitempty" db:"suspended_till"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Staff reports whether the user holds a moderator or admin role.
// Staff-authored private messages bypass suspension and recency suppression.
func (u *User) Staff() bool {
	return u.Moderator || u.Admin
}

// SuspendedAsOf reports whether the user is suspended at the given instant.
func (u *User) SuspendedAsOf(now time.Time) bool {
	return u.SuspendedTill != nil && u.SuspendedTill.After(now)
}

// SeenSince reports whether the user was last seen after the cutoff.
// A nil LastSeenAt means the user has never been seen.
func (u *User) SeenSince(cutoff time.Time) bool {
	return u.LastSeenAt != nil && u.LastSeenAt.After(cutoff)
}

// Topic is the minimal topic projection mailroom needs: archetype and the
// private-message participant list.
type Topic struct {
	ID             int64   `json:"id" db:"id"`
	Title          string  `json:"title" db:"title"`
	Archetype      string  `json:"archetype" db:"archetype"`
	AllowedUserIDs []int64 `json:"allowed_user_ids" db:"-"`
}

// ArchetypePrivateMessage is the topic archetype for private conversations.
const ArchetypePrivateMessage = "private_message"

// AllowsUser reports whether the given user participates in the topic.
func (t *Topic) AllowsUser(userID int64) bool {
	for _, id := range t.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Post is the forum post an email references. Author and Topic are hydrated
// by the post repository so the policy engine can evaluate staff and
// participant rules without further lookups.
type Post struct {
	ID          int64     `json:"id" db:"id"`
	TopicID     int64     `json:"topic_id" db:"topic_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	PostNumber  int       `json:"post_number" db:"post_number"`
	Excerpt     string    `json:"excerpt" db:"excerpt"`
	UserDeleted bool      `json:"user_deleted" db:"user_deleted"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	// Hydrated by PostRepository.GetByID; nil when the join target is gone.
	Author *User  `json:"author,omitempty" db:"-"`
	Topic  *Topic `json:"topic,omitempty" db:"-"`
}

// Notification is a forum notification row referenced by an email job.
// Data is an opaque JSON payload; the only key mailroom interprets is
// original_post_id.
type Notification struct {
	ID         int64           `json:"id" db:"id"`
	UserID     int64           `json:"user_id" db:"user_id"`
	TopicID    int64           `json:"topic_id" db:"topic_id"`
	PostNumber int             `json:"post_number" db:"post_number"`
	Type       string          `json:"notification_type" db:"notification_type"`
	Read       bool            `json:"read" db:"read"`
	Data       json.RawMessage `json:"data" db:"data"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// notificationData is the subset of the opaque payload mailroom reads.
type notificationData struct {
	OriginalPostID int64 `json:"original_post_id"`
}

// OriginalPostID extracts the original_post_id from the notification payload.
// Returns 0 when the payload is absent or does not carry the key.
func (n *Notification) OriginalPostID() int64 {
	if len(n.Data) == 0 {
		return 0
	}
	var d notificationData
	if err := json.Unmarshal(n.Data, &d); err != nil {
		return 0
	}
	return d.OriginalPostID
}

// EmailLog is the audit record written once per determined email outcome.
// Rows are insert-only and never mutated.
type EmailLog struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	EmailType     EmailType `json:"email_type" db:"email_type"`
	ToAddress     string    `json:"to_address" db:"to_address"`
	Skipped       bool      `json:"skipped" db:"skipped"`
	SkippedReason string    `json:"skipped_reason,omitempty" db:"skipped_reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// MessageEnvelope is the renderable output of the message builder: a fully
// addressed, pre-rendered email ready for the provider.
type MessageEnvelope struct {
	To          []string `json:"to"`
	FromAddress string   `json:"from_address"`
	FromName    string   `json:"from_name"`
	Subject     string   `json:"subject"`
	BodyText    string   `json:"body_text"`
	BodyHTML    string   `json:"body_html,omitempty"`

	// ReferenceID correlates the provider send with the originating job
	// (notification id or email-log trace id).
	ReferenceID string `json:"reference_id,omitempty"`
}

// SendInput is the provider-facing payload for a single transmission.
type SendInput struct {
	To          []string
	FromAddress string
	FromName    string
	Subject     string
	BodyText    string
	BodyHTML    string
	ReferenceID string
}
