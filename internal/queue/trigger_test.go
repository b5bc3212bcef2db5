package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"mailroom/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

// testLogger implements types.Logger as a no-op.
type testLogger struct{}

func (l *testLogger) Info(msg string, args ...any)  {}
func (l *testLogger) Error(msg string, args ...any) {}
func (l *testLogger) Warn(msg string, args ...any)  {}
func (l *testLogger) With(args ...any) types.Logger { return l }

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/email-jobs"

func newTestPublisher(mock *mockSQSSender) *EmailJobPublisher {
	return NewEmailJobPublisher(mock, testQueueURL, &testLogger{})
}

func TestPublish_SerializesMessage(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	err := pub.Publish(context.Background(), types.EmailJobMessage{
		Type:   "user_replied",
		UserID: 42,
		PostID: 100,
	}, "notification")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	call := mock.calls[0]
	if *call.QueueUrl != testQueueURL {
		t.Errorf("unexpected queue URL %q", *call.QueueUrl)
	}

	var sent types.EmailJobMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &sent); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if sent.Type != "user_replied" || sent.UserID != 42 || sent.PostID != 100 {
		t.Errorf("unexpected payload: %+v", sent)
	}
	if sent.TraceID == "" {
		t.Error("expected a generated trace id")
	}
}

func TestPublish_RejectsInvalidMessage(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	err := pub.Publish(context.Background(), types.EmailJobMessage{Type: "digest"}, "test")
	if !types.IsInvalidParameters(err) {
		t.Fatalf("expected invalid_parameters, got %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("invalid message must not reach SQS, got %d calls", len(mock.calls))
	}
}

func TestPublishRetry_IncrementsCountAndSetsDelay(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	err := pub.PublishRetry(context.Background(), types.EmailJobMessage{
		Type:       "digest",
		UserID:     42,
		RetryCount: 1,
		TraceID:    "trace-1",
	}, 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := mock.calls[0]
	if call.DelaySeconds != 30 {
		t.Errorf("expected 30s delay, got %d", call.DelaySeconds)
	}

	var sent types.EmailJobMessage
	json.Unmarshal([]byte(*call.MessageBody), &sent)
	if sent.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", sent.RetryCount)
	}
}

func TestPublishRetry_ClampsDelayToSQSMax(t *testing.T) {
	mock := &mockSQSSender{}
	pub := newTestPublisher(mock)

	err := pub.PublishRetry(context.Background(), types.EmailJobMessage{
		Type:   "digest",
		UserID: 42,
	}, 2*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := mock.calls[0].DelaySeconds; got != 900 {
		t.Errorf("expected delay clamped to 900s, got %d", got)
	}
}

func TestPublish_SQSFailurePropagates(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("queue unavailable")}
	pub := newTestPublisher(mock)

	err := pub.Publish(context.Background(), types.EmailJobMessage{
		Type:   "digest",
		UserID: 42,
	}, "test")
	if err == nil {
		t.Fatal("expected error when SQS send fails")
	}
}
