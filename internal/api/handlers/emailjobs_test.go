package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"mailroom/internal/types"
)

// mockPublisher captures the message handed to Publish.
type mockPublisher struct {
	published []types.EmailJobMessage
	reasons   []string
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, msg types.EmailJobMessage, reason string) error {
	m.published = append(m.published, msg)
	m.reasons = append(m.reasons, reason)
	return m.err
}

func newJobRouter(pub *mockPublisher) chi.Router {
	r := chi.NewRouter()
	NewEmailJobHandler(pub, &testLogger{}).RegisterRoutes(r)
	return r
}

func TestHandleEnqueue_PublishesAndReturnsTraceID(t *testing.T) {
	pub := &mockPublisher{}
	router := newJobRouter(pub)

	body := `{"type":"user_mentioned","user_id":42,"post_id":7}`
	req := httptest.NewRequest(http.MethodPost, "/email-jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want %d; body: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	if len(pub.published) != 1 {
		t.Fatalf("got %d published messages, want 1", len(pub.published))
	}
	msg := pub.published[0]
	if msg.Type != "user_mentioned" || msg.UserID != 42 || msg.PostID != 7 {
		t.Errorf("published message %+v does not match request body", msg)
	}
	if msg.TraceID == "" {
		t.Error("expected the handler to assign a trace id")
	}
	if pub.reasons[0] != "ops_api" {
		t.Errorf("got publish reason %q, want ops_api", pub.reasons[0])
	}

	var resp struct {
		Data struct {
			TraceID string `json:"trace_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Data.TraceID != msg.TraceID {
		t.Errorf("response trace id %q does not match published %q", resp.Data.TraceID, msg.TraceID)
	}
}

func TestHandleEnqueue_PreservesCallerTraceID(t *testing.T) {
	pub := &mockPublisher{}
	router := newJobRouter(pub)

	body := `{"type":"digest","user_id":42,"trace_id":"trace-abc"}`
	req := httptest.NewRequest(http.MethodPost, "/email-jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusAccepted)
	}
	if pub.published[0].TraceID != "trace-abc" {
		t.Errorf("got trace id %q, want trace-abc", pub.published[0].TraceID)
	}
}

func TestHandleEnqueue_RejectsUnknownType(t *testing.T) {
	pub := &mockPublisher{}
	router := newJobRouter(pub)

	body := `{"type":"carrier_pigeon","user_id":42}`
	req := httptest.NewRequest(http.MethodPost, "/email-jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
	if len(pub.published) != 0 {
		t.Errorf("unknown type must not reach the queue, got %d publishes", len(pub.published))
	}
}

func TestHandleEnqueue_RejectsMalformedBody(t *testing.T) {
	pub := &mockPublisher{}
	router := newJobRouter(pub)

	req := httptest.NewRequest(http.MethodPost, "/email-jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(pub.published) != 0 {
		t.Errorf("malformed body must not reach the queue")
	}
}

func TestHandleEnqueue_PublishFailureSurfaces(t *testing.T) {
	pub := &mockPublisher{err: types.NewAppError(types.ErrCodeInvalidParameters, "invalid email job message", nil)}
	router := newJobRouter(pub)

	body := `{"type":"digest","user_id":42,"to_address":"not-an-email"}`
	req := httptest.NewRequest(http.MethodPost, "/email-jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}
