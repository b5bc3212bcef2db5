package mailer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"mailroom/internal/types"
)

// TemplateData is the flattened key-value map passed to the subject and body
// templates. Keys are strings; values are interface{} to support mixed types.
type TemplateData map[string]interface{}

// RenderedEmail is the output of template rendering: the subject line and
// the plain-text body of one message.
type RenderedEmail struct {
	Subject string
	Body    string
}

// TemplateService resolves and renders the subject/body pair for an email
// type. Implementations return (nil, nil) when the type renders to an empty
// body, which callers treat as a skip rather than an error.
type TemplateService interface {
	Render(emailType types.EmailType, data TemplateData) (*RenderedEmail, error)
}

// emailTemplate is one parsed subject/body pair.
type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

// TemplateRegistry is the production implementation of TemplateService. All
// templates are parsed once at construction, so a syntax error surfaces at
// startup rather than mid-send.
type TemplateRegistry struct {
	templates map[types.EmailType]emailTemplate
	logger    types.Logger
}

// templateSources maps each email type to its subject and body template text.
// Post-bearing types share a common body via postBodySource.
var templateSources = map[types.EmailType][2]string{
	types.EmailTypeSignup: {
		"[{{.site_name}}] Confirm your new account",
		"Welcome to {{.site_name}}, {{.username}}!\n\nClick the following link to confirm and activate your new account:\n{{.base_url}}/u/activate-account/{{.email_token}}\n",
	},
	types.EmailTypeAuthorizeEmail: {
		"[{{.site_name}}] Confirm your new email address",
		"A new email address was added to your {{.site_name}} account.\n{{if .email_token}}\nClick the following link to confirm it:\n{{.base_url}}/u/authorize-email/{{.email_token}}\n{{end}}",
	},
	types.EmailTypeForgotPassword: {
		"[{{.site_name}}] Password reset",
		"Somebody asked to reset your password on {{.site_name}}.\n\nIf it was not you, you can safely ignore this email.\n\nClick the following link to choose a new password:\n{{.base_url}}/u/password-reset/{{.email_token}}\n",
	},
	types.EmailTypeUserInvited: {
		"{{.inviter_name}} invited you to join {{.site_name}}",
		"{{.inviter_name}} invited you to join {{.site_name}}.\n\nClick the following link to accept the invitation:\n{{.base_url}}/invites/{{.email_token}}\n",
	},
	types.EmailTypeAccountSuspended: {
		"[{{.site_name}}] Your account has been suspended",
		"Your account on {{.site_name}} has been suspended{{if .suspended_till}} until {{.suspended_till}}{{end}}.\n",
	},
	types.EmailTypeUserReplied: {
		"[{{.site_name}}] {{.topic_title}}",
		postBodySource,
	},
	types.EmailTypeUserQuoted: {
		"[{{.site_name}}] {{.topic_title}}",
		postBodySource,
	},
	types.EmailTypeUserPosted: {
		"[{{.site_name}}] {{.topic_title}}",
		postBodySource,
	},
	types.EmailTypeUserMentioned: {
		"[{{.site_name}}] {{.topic_title}}",
		postBodySource,
	},
	types.EmailTypePrivateMessage: {
		"[{{.site_name}}] [PM] {{.topic_title}}",
		postBodySource,
	},
	types.EmailTypeUserPrivateMessage: {
		"[{{.site_name}}] [PM] {{.topic_title}}",
		postBodySource,
	},
	types.EmailTypeDigest: {
		"[{{.site_name}}] Activity summary",
		"Hi {{.username}},\n\nHere is a summary of activity on {{.site_name}} since your last visit:\n{{.base_url}}\n",
	},
}

// postBodySource renders the post excerpt followed by a visit link. Blank
// when the excerpt is empty, which the registry reports as no content.
const postBodySource = "{{if .post_excerpt}}{{.author_username}} wrote:\n\n{{.post_excerpt}}\n\nVisit {{.base_url}}{{.post_url}} to respond.\n{{end}}"

// NewTemplateRegistry parses all built-in templates and returns a registry.
// Returns an error if any template fails to parse or an email type has no
// template pair.
func NewTemplateRegistry(logger types.Logger) (*TemplateRegistry, error) {
	reg := &TemplateRegistry{
		templates: make(map[types.EmailType]emailTemplate, len(templateSources)),
		logger:    logger,
	}

	for emailType, src := range templateSources {
		subject, err := template.New(string(emailType) + ".subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("template registry: parsing %s subject: %w", emailType, err)
		}
		body, err := template.New(string(emailType) + ".body").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("template registry: parsing %s body: %w", emailType, err)
		}
		reg.templates[emailType] = emailTemplate{subject: subject, body: body}
	}

	for _, emailType := range types.AllEmailTypes() {
		if _, ok := reg.templates[emailType]; !ok {
			return nil, fmt.Errorf("template registry: missing template for email type %q", emailType)
		}
	}

	return reg, nil
}

// Render executes the subject and body templates for the given type. A body
// that renders to only whitespace yields (nil, nil): the caller records a
// skip instead of dispatching an empty message.
func (r *TemplateRegistry) Render(emailType types.EmailType, data TemplateData) (*RenderedEmail, error) {
	tmpl, ok := r.templates[emailType]
	if !ok {
		return nil, fmt.Errorf("template registry: no template for email type %q", emailType)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("template registry: rendering %s subject: %w", emailType, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("template registry: rendering %s body: %w", emailType, err)
	}

	if strings.TrimSpace(body.String()) == "" {
		r.logger.Warn("template rendered empty body",
			"email_type", string(emailType),
		)
		return nil, nil
	}

	return &RenderedEmail{
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}

// Compile-time assertion that TemplateRegistry implements TemplateService.
var _ TemplateService = (*TemplateRegistry)(nil)
