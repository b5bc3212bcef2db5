package mailer

import (
	"fmt"

	"mailroom/internal/types"
)

// ReasonNoMessageBody is recorded when the template layer produced no
// content for an otherwise eligible email.
const ReasonNoMessageBody = "no message body"

// BuilderConfig carries the sender identity and site branding the builder
// stamps onto every envelope.
type BuilderConfig struct {
	FromAddress string
	FromName    string
	SiteName    string
	BaseURL     string
}

// BuildContext supplies the per-job inputs of one build.
type BuildContext struct {
	Post         *types.Post
	Notification *types.Notification
	EmailToken   string
}

// MessageBuilder assembles the addressed, rendered envelope for an email the
// policy engine already approved. Building never sends and never touches the
// database.
type MessageBuilder struct {
	templates TemplateService
	config    BuilderConfig
	logger    types.Logger
}

// NewMessageBuilder creates a MessageBuilder backed by the given template
// service.
func NewMessageBuilder(templates TemplateService, config BuilderConfig, logger types.Logger) *MessageBuilder {
	return &MessageBuilder{
		templates: templates,
		config:    config,
		logger:    logger,
	}
}

// Build renders the envelope for one approved email.
//
// Returns exactly one of three outcomes:
//   - (envelope, nil, nil): the message is ready to send.
//   - (nil, decision, nil): the message cannot be produced for a reason that
//     is an auditable skip, not a failure (missing post, empty body).
//   - (nil, nil, err): the arguments are structurally invalid for the type.
func (b *MessageBuilder) Build(user *types.User, emailType types.EmailType, bc BuildContext) (*types.MessageEnvelope, *Decision, error) {
	if emailType.NeedsToken() && bc.EmailToken == "" {
		return nil, nil, types.NewAppError(types.ErrCodeInvalidParameters,
			fmt.Sprintf("email type %q requires an email token", emailType), nil)
	}

	if emailType.NeedsPost() && bc.Post == nil {
		b.logger.Warn("no post resolved for post-bearing email type",
			"email_type", string(emailType),
			"user_id", user.ID,
		)
		return nil, &Decision{Outcome: OutcomeSkip, Reason: ReasonNoMessageBody}, nil
	}

	data := b.templateData(user, bc)

	rendered, err := b.templates.Render(emailType, data)
	if err != nil {
		return nil, nil, fmt.Errorf("message builder: %w", err)
	}
	if rendered == nil {
		return nil, &Decision{Outcome: OutcomeSkip, Reason: ReasonNoMessageBody}, nil
	}

	envelope := &types.MessageEnvelope{
		To:          []string{user.Email},
		FromAddress: b.config.FromAddress,
		FromName:    b.config.FromName,
		Subject:     rendered.Subject,
		BodyText:    rendered.Body,
	}
	if bc.Notification != nil {
		envelope.ReferenceID = fmt.Sprintf("notification-%d", bc.Notification.ID)
	} else if bc.Post != nil {
		envelope.ReferenceID = fmt.Sprintf("post-%d", bc.Post.ID)
	}

	return envelope, nil, nil
}

// templateData flattens the build inputs into the key-value map the
// templates consume.
func (b *MessageBuilder) templateData(user *types.User, bc BuildContext) TemplateData {
	// Every key a template may reference gets a default so text/template
	// never renders a "<no value>" placeholder into a message.
	data := TemplateData{
		"site_name":       b.config.SiteName,
		"base_url":        b.config.BaseURL,
		"username":        user.Username,
		"email":           user.Email,
		"email_token":     bc.EmailToken,
		"inviter_name":    b.config.SiteName,
		"author_username": "",
		"topic_title":     "",
		"post_excerpt":    "",
		"post_url":        "",
	}

	if user.SuspendedTill != nil {
		data["suspended_till"] = user.SuspendedTill.Format("Jan 2, 2006")
	}

	if p := bc.Post; p != nil {
		data["post_excerpt"] = p.Excerpt
		data["post_url"] = fmt.Sprintf("/t/%d/%d", p.TopicID, p.PostNumber)
		if p.Author != nil {
			data["author_username"] = p.Author.Username
			data["inviter_name"] = p.Author.Username
		}
		if p.Topic != nil {
			data["topic_title"] = p.Topic.Title
		}
	}

	return data
}
