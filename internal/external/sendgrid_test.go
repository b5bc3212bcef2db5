package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailroom/internal/types"
)

// testLogger implements types.Logger as a no-op.
type testLogger struct{}

func (l *testLogger) Info(msg string, args ...any)  {}
func (l *testLogger) Error(msg string, args ...any) {}
func (l *testLogger) Warn(msg string, args ...any)  {}
func (l *testLogger) With(args ...any) types.Logger { return l }

func newTestSendGrid(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"sendgrid-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond},
		"Mailroom-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewSendGridClient(base, SendGridClientConfig{
		APIKey:  "SG.test-key",
		BaseURL: serverURL,
		Logger:  &testLogger{},
	})
}

func sampleSendInput() types.SendInput {
	return types.SendInput{
		To:          []string{"eviltrout@example.com"},
		FromAddress: "noreply@forum.example.com",
		FromName:    "Meta Forum",
		Subject:     "[Meta Forum] Password reset",
		BodyText:    "Click here to reset.",
		ReferenceID: "notification-77",
	}
}

func TestSendGrid_SendSuccess(t *testing.T) {
	var captured sendGridMailPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-msg-42")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGrid(t, server.URL)

	msgID, err := client.Send(context.Background(), sampleSendInput())
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if msgID != "sg-msg-42" {
		t.Errorf("expected provider message id, got %q", msgID)
	}
	if auth != "Bearer SG.test-key" {
		t.Errorf("unexpected auth header %q", auth)
	}

	if len(captured.Personalizations) != 1 || len(captured.Personalizations[0].To) != 1 {
		t.Fatalf("unexpected personalizations: %+v", captured.Personalizations)
	}
	if captured.Personalizations[0].To[0].Email != "eviltrout@example.com" {
		t.Errorf("unexpected recipient %q", captured.Personalizations[0].To[0].Email)
	}
	if captured.Subject != "[Meta Forum] Password reset" {
		t.Errorf("unexpected subject %q", captured.Subject)
	}
	if len(captured.Content) != 1 || captured.Content[0].Type != "text/plain" {
		t.Errorf("unexpected content: %+v", captured.Content)
	}
	if captured.CustomArgs["reference_id"] != "notification-77" {
		t.Errorf("missing reference correlation: %+v", captured.CustomArgs)
	}
}

func TestSendGrid_403MapsToBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"recipient on suppression list"}]}`))
	}))
	defer server.Close()

	client := newTestSendGrid(t, server.URL)

	_, err := client.Send(context.Background(), sampleSendInput())
	if err == nil {
		t.Fatal("expected error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected email_blocked, got %s", appErr.Code)
	}
}

func TestSendGrid_400MapsToProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"invalid from address"}]}`))
	}))
	defer server.Close()

	client := newTestSendGrid(t, server.URL)

	_, err := client.Send(context.Background(), sampleSendInput())
	if err == nil {
		t.Fatal("expected error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected provider error code, got %s", appErr.Code)
	}
}

func TestSendGrid_5xxSurfacesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestSendGrid(t, server.URL)

	_, err := client.Send(context.Background(), sampleSendInput())
	if err == nil {
		t.Fatal("expected error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected upstream unavailable, got %s", appErr.Code)
	}
}

func TestSendGrid_HTMLContentIncluded(t *testing.T) {
	var captured sendGridMailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGrid(t, server.URL)

	input := sampleSendInput()
	input.BodyHTML = "<p>Click here to reset.</p>"
	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	if len(captured.Content) != 2 {
		t.Fatalf("expected text and html content, got %+v", captured.Content)
	}
	if captured.Content[0].Type != "text/plain" || captured.Content[1].Type != "text/html" {
		t.Errorf("content order must be text/plain then text/html: %+v", captured.Content)
	}
}
