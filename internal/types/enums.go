package types

import "fmt"

// EmailType is the closed enumeration of transactional emails mailroom can
// produce. Each type maps to a template and a required argument shape in the
// message builder.
type EmailType string

const (
	EmailTypeDigest             EmailType = "digest"
	EmailTypeSignup             EmailType = "signup"
	EmailTypeAuthorizeEmail     EmailType = "authorize_email"
	EmailTypeForgotPassword     EmailType = "forgot_password"
	EmailTypeUserInvited        EmailType = "user_invited"
	EmailTypeUserReplied        EmailType = "user_replied"
	EmailTypeUserQuoted         EmailType = "user_quoted"
	EmailTypeUserPosted         EmailType = "user_posted"
	EmailTypeUserMentioned      EmailType = "user_mentioned"
	EmailTypePrivateMessage     EmailType = "private_message"
	EmailTypeUserPrivateMessage EmailType = "user_private_message"
	EmailTypeAccountSuspended   EmailType = "account_suspended"
)

// emailTypes is the registry of valid types, used by ParseEmailType.
var emailTypes = map[EmailType]struct{}{
	EmailTypeDigest:             {},
	EmailTypeSignup:             {},
	EmailTypeAuthorizeEmail:     {},
	EmailTypeForgotPassword:     {},
	EmailTypeUserInvited:        {},
	EmailTypeUserReplied:        {},
	EmailTypeUserQuoted:         {},
	EmailTypeUserPosted:         {},
	EmailTypeUserMentioned:      {},
	EmailTypePrivateMessage:     {},
	EmailTypeUserPrivateMessage: {},
	EmailTypeAccountSuspended:   {},
}

// AllEmailTypes returns every registered email type. Used by the template
// registry to verify coverage at startup.
func AllEmailTypes() []EmailType {
	out := make([]EmailType, 0, len(emailTypes))
	for t := range emailTypes {
		out = append(out, t)
	}
	return out
}

// ParseEmailType resolves a raw job argument into an EmailType.
// Unknown values are an invalid-parameters error, not a skip.
func ParseEmailType(s string) (EmailType, error) {
	t := EmailType(s)
	if _, ok := emailTypes[t]; !ok {
		return "", NewAppError(ErrCodeInvalidParameters,
			fmt.Sprintf("unknown email type %q", s), nil)
	}
	return t, nil
}

// Forced reports whether the type is account-critical and must bypass the
// recency throttle and seen-notification suppression. Forced types never
// bypass the deletion and suspension safety rules.
func (t EmailType) Forced() bool {
	switch t {
	case EmailTypeSignup, EmailTypeAuthorizeEmail, EmailTypeForgotPassword,
		EmailTypeUserInvited, EmailTypeAccountSuspended:
		return true
	}
	return false
}

// PrivateMessage reports whether the type delivers private-message content,
// which requires the recipient to be a topic participant.
func (t EmailType) PrivateMessage() bool {
	return t == EmailTypePrivateMessage || t == EmailTypeUserPrivateMessage
}

// NeedsPost reports whether the builder requires a resolved post for this type.
func (t EmailType) NeedsPost() bool {
	switch t {
	case EmailTypeUserReplied, EmailTypeUserQuoted, EmailTypeUserPosted,
		EmailTypeUserMentioned, EmailTypePrivateMessage, EmailTypeUserPrivateMessage:
		return true
	}
	return false
}

// NeedsToken reports whether the builder requires an email token for this
// type. Only the password reset hard-requires one; other account types
// render without it when the caller omits it.
func (t EmailType) NeedsToken() bool {
	return t == EmailTypeForgotPassword
}
