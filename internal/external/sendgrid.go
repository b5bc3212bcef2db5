package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mailroom/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
// Overridable in tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for a SendGridClient.
type SendGridClientConfig struct {
	APIKey  string
	BaseURL string // override for testing; defaults to sendGridAPIBase
	Logger  types.Logger
}

// SendGridClient implements types.Sender against the SendGrid v3 Mail Send
// API. Messages arrive pre-rendered from the builder, so the payload carries
// literal subject and body content rather than provider-side templates.
type SendGridClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  types.Logger
}

// NewSendGridClient creates a SendGridClient routed through the given
// BaseClient.
func NewSendGridClient(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  cfg.Logger,
	}
}

// sendGridMailPayload is the v3 mail/send JSON request body.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	// custom_args correlate the provider send with the originating job.
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send transmits one pre-rendered message and returns the provider message
// ID from the X-Message-Id response header.
//
// Error mapping:
//   - 403 Forbidden: types.ErrCodeEmailBlocked (recipient suppressed)
//   - 429 / 5xx: handled by BaseClient (retry, then upstream codes)
//   - other 4xx: types.ErrCodeUpstreamEmailProvider
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	body, err := json.Marshal(s.buildMailPayload(input))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal mail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create mail send request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", s.handleErrorResponse(resp)
}

// buildMailPayload maps a domain SendInput to the SendGrid v3 payload.
// Content order matters to SendGrid: text/plain must precede text/html.
func (s *SendGridClient) buildMailPayload(input types.SendInput) sendGridMailPayload {
	to := make([]sendGridAddress, 0, len(input.To))
	for _, addr := range input.To {
		to = append(to, sendGridAddress{Email: addr})
	}

	content := []sendGridContent{
		{Type: "text/plain", Value: input.BodyText},
	}
	if input.BodyHTML != "" {
		content = append(content, sendGridContent{Type: "text/html", Value: input.BodyHTML})
	}

	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{{To: to}},
		From: sendGridAddress{
			Email: input.FromAddress,
			Name:  input.FromName,
		},
		Subject: input.Subject,
		Content: content,
	}
	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}
	return payload
}

// sendGridErrorResponse is the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// handleErrorResponse reads a SendGrid error body and maps it to an AppError.
func (s *SendGridClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid returned status %d with unreadable body", resp.StatusCode), readErr)
	}

	errMsg := string(body)
	var sgErr sendGridErrorResponse
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	}

	if resp.StatusCode == http.StatusForbidden {
		// Recipient is on the suppression list.
		return types.NewAppError(types.ErrCodeEmailBlocked,
			fmt.Sprintf("SendGrid blocked delivery: %s", errMsg), nil)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SendGrid error (%d): %s", resp.StatusCode, errMsg), nil)
}

// Compile-time assertion that SendGridClient satisfies types.Sender.
var _ types.Sender = (*SendGridClient)(nil)
