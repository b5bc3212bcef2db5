// Package mailer implements the transactional-email decision engine: an
// eligibility policy evaluated per job, a message builder that renders the
// templated envelope, and the job orchestrator that ties policy, builder,
// sender, and audit log together.
package mailer

import (
	"context"
	"time"

	"mailroom/internal/types"
)

// Outcome represents the result of a policy or builder evaluation.
type Outcome string

const (
	// OutcomeSend indicates the email should be built and dispatched.
	OutcomeSend Outcome = "send"

	// OutcomeSkip indicates the email is suppressed; the reason is recorded
	// in the audit log.
	OutcomeSkip Outcome = "skip"
)

// Decision contains the outcome and the human-readable, greppable reason
// from an eligibility evaluation.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Skipped reports whether the decision suppresses the email.
func (d Decision) Skipped() bool { return d.Outcome == OutcomeSkip }

// Skip reason strings. These end up verbatim in email_logs.skipped_reason,
// so they are stable and grep-friendly.
const (
	ReasonUserMissing      = "user is missing"
	ReasonUserStaged       = "user is staged"
	ReasonPostDeleted      = "post deleted by author"
	ReasonNotParticipant   = "user is not in the private message topic allowed list"
	ReasonSuspended        = "user is suspended and the post author is not staff"
	ReasonAnonymous        = "user is anonymous and the post author is not staff"
	ReasonNotificationSeen = "notification was already seen"
	ReasonSeenRecently     = "user was seen recently"
)

// PolicySettings carries the forum site settings the policy engine reads.
// They are passed explicitly at call time, never read as ambient globals.
type PolicySettings struct {
	// EmailTimeWindow is the recency throttle: users seen within this window
	// do not receive non-forced email. Zero disables the throttle.
	EmailTimeWindow time.Duration

	// AllowAnonymousPosting enables the anonymous-recipient rules for
	// private messages.
	AllowAnonymousPosting bool
}

// EmailContext supplies the optional inputs of a single eligibility
// evaluation.
type EmailContext struct {
	Post         *types.Post
	Notification *types.Notification

	// ForceSend bypasses the recency throttle and seen-notification
	// suppression, same as a forced email type. It never bypasses the
	// deletion and suspension safety rules.
	ForceSend bool

	Settings PolicySettings
}

// PolicyEngine decides whether an email job should send or be suppressed.
// The rules are evaluated in a fixed order; the first terminal decision
// wins, which makes the precedence auditable and each rule independently
// testable.
type PolicyEngine struct {
	clock  types.Clock
	logger types.Logger
}

// NewPolicyEngine creates a PolicyEngine with the given clock and logger.
// The clock abstraction allows deterministic testing of time-dependent rules.
func NewPolicyEngine(clock types.Clock, logger types.Logger) *PolicyEngine {
	return &PolicyEngine{
		clock:  clock,
		logger: logger,
	}
}

// evalState bundles the inputs of one evaluation pass through the rule chain.
type evalState struct {
	user      *types.User
	emailType types.EmailType
	ec        EmailContext
	now       time.Time

	// bypassThrottle is set when a staff-authored private message defeats
	// the recency throttle for a suspended or anonymous recipient.
	bypassThrottle bool
}

// policyRule is a single link in the precedence chain. A nil return means
// "continue to the next rule"; a non-nil return is terminal.
type policyRule struct {
	name string
	eval func(s *evalState) *Decision
}

// rules is the ordered precedence chain. Safety rules (deleted content,
// private-message addressing, suspension) come first so that no override can
// defeat them; the recency throttle comes last so that overrides can.
var rules = []policyRule{
	{"staged_user", ruleStagedUser},
	{"deleted_post", ruleDeletedPost},
	{"private_message_safety", rulePrivateMessageSafety},
	{"forced_send", ruleForcedSend},
	{"notification_seen", ruleNotificationSeen},
	{"recency_throttle", ruleRecencyThrottle},
}

// Evaluate runs the rule chain for one email job.
//
// Decision logic (in order of precedence):
//  1. Missing and staged users never receive mail.
//  2. A post deleted by its author never generates mail.
//  3. Private-message variants require topic participation; suspended and
//     anonymous recipients only receive staff-authored private messages,
//     which also bypass the recency throttle.
//  4. Forced sends (account-critical types, explicit force flag) bypass the
//     read-state and recency checks below, never the safety rules above.
//  5. A read notification suppresses mail unless the user has email_always.
//  6. Recently-seen users are throttled unless email_always is set.
//  7. Otherwise send.
func (e *PolicyEngine) Evaluate(ctx context.Context, user *types.User, emailType types.EmailType, ec EmailContext) Decision {
	s := &evalState{
		user:      user,
		emailType: emailType,
		ec:        ec,
		now:       e.clock.Now(),
	}

	var userID int64
	if user != nil {
		userID = user.ID
	}

	for _, r := range rules {
		if d := r.eval(s); d != nil {
			e.logger.Info("email policy decided",
				"rule", r.name,
				"outcome", string(d.Outcome),
				"reason", d.Reason,
				"user_id", userID,
				"email_type", string(emailType),
			)
			return *d
		}
	}

	return Decision{Outcome: OutcomeSend, Reason: "no suppression rules apply"}
}

// ruleStagedUser suppresses all mail for missing users and staged (not yet
// activated) accounts.
func ruleStagedUser(s *evalState) *Decision {
	if s.user == nil {
		return &Decision{Outcome: OutcomeSkip, Reason: ReasonUserMissing}
	}
	if s.user.Staged {
		return &Decision{Outcome: OutcomeSkip, Reason: ReasonUserStaged}
	}
	return nil
}

// ruleDeletedPost suppresses mail referencing content the author deleted.
// Runs before every override: forced sends must not resurrect deleted posts.
func ruleDeletedPost(s *evalState) *Decision {
	if s.ec.Post != nil && s.ec.Post.UserDeleted {
		return &Decision{Outcome: OutcomeSkip, Reason: ReasonPostDeleted}
	}
	return nil
}

// rulePrivateMessageSafety enforces the addressing and recipient-state rules
// for private-message email types.
//
// The staff bypass: a private message authored by a moderator or admin is
// delivered to a suspended (or anonymous, when anonymous posting is enabled)
// recipient even when the recipient was seen within the throttle window.
// Non-staff private messages to such recipients are always suppressed.
func rulePrivateMessageSafety(s *evalState) *Decision {
	pm := s.emailType.PrivateMessage()

	if pm && s.ec.Post != nil && s.ec.Post.Topic != nil {
		if !s.ec.Post.Topic.AllowsUser(s.user.ID) {
			return &Decision{Outcome: OutcomeSkip, Reason: ReasonNotParticipant}
		}
	}

	staffAuthor := s.ec.Post != nil && s.ec.Post.Author != nil && s.ec.Post.Author.Staff()

	// The suspension notice itself is exempt, otherwise a suspended user
	// could never learn why their account went quiet.
	if s.user.SuspendedAsOf(s.now) && s.emailType != types.EmailTypeAccountSuspended {
		if pm && staffAuthor {
			s.bypassThrottle = true
			return nil
		}
		return &Decision{Outcome: OutcomeSkip, Reason: ReasonSuspended}
	}

	if s.user.Anonymous && s.ec.Settings.AllowAnonymousPosting && pm {
		if staffAuthor {
			s.bypassThrottle = true
			return nil
		}
		return &Decision{Outcome: OutcomeSkip, Reason: ReasonAnonymous}
	}

	return nil
}

// ruleNotificationSeen suppresses mail for notifications the user already
// read on the site, unless they opted into email_always.
func ruleNotificationSeen(s *evalState) *Decision {
	if s.ec.Notification != nil && s.ec.Notification.Read && !s.user.EmailAlways {
		return &Decision{Outcome: OutcomeSkip, Reason: ReasonNotificationSeen}
	}
	return nil
}

// ruleForcedSend terminates the chain for account-critical email types and
// explicit per-call overrides, bypassing the read-state and recency checks.
// Runs after the safety rules so a forced send can never reach a staged,
// suspended, or deleted-content case.
func ruleForcedSend(s *evalState) *Decision {
	if s.ec.ForceSend || s.emailType.Forced() {
		return &Decision{Outcome: OutcomeSend, Reason: "forced send"}
	}
	return nil
}

// ruleRecencyThrottle suppresses mail for users active on the site within
// the configured window. email_always and the staff private-message bypass
// defeat the throttle.
func ruleRecencyThrottle(s *evalState) *Decision {
	window := s.ec.Settings.EmailTimeWindow
	if window <= 0 || s.user.EmailAlways || s.bypassThrottle {
		return nil
	}
	if s.user.SeenSince(s.now.Add(-window)) {
		return &Decision{Outcome: OutcomeSkip, Reason: ReasonSeenRecently}
	}
	return nil
}
