package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mailroom/internal/types"
)

// recordLogger captures log calls for middleware assertions.
type recordLogger struct {
	infoCalls  []string
	errorCalls []string
}

func (l *recordLogger) Info(msg string, args ...any)  { l.infoCalls = append(l.infoCalls, msg) }
func (l *recordLogger) Error(msg string, args ...any) { l.errorCalls = append(l.errorCalls, msg) }
func (l *recordLogger) Warn(msg string, args ...any)  {}
func (l *recordLogger) With(args ...any) types.Logger { return l }

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected a generated request id in the context")
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Errorf("response header %q does not match context id %q", got, seen)
	}
}

func TestRequestID_HonorsInboundHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "upstream-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "upstream-id" {
		t.Errorf("got context id %q, want upstream-id", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "upstream-id" {
		t.Errorf("got response header %q, want upstream-id", got)
	}
}

func TestRecoverer_ConvertsPanicTo500(t *testing.T) {
	logger := &recordLogger{}
	handler := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
	if len(logger.errorCalls) != 1 {
		t.Errorf("got %d error log calls, want 1", len(logger.errorCalls))
	}
	resp := decodeErrorBody(t, rec)
	if resp.Error.Message == "boom" {
		t.Error("panic value must not leak into the response body")
	}
}

func TestRequestLogger_RecordsDownstreamStatus(t *testing.T) {
	logger := &recordLogger{}
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("got status %d, want 418", rec.Code)
	}
	if len(logger.infoCalls) != 1 {
		t.Errorf("got %d info log calls, want 1", len(logger.infoCalls))
	}
}

func TestResponseCapture_DefaultsTo200OnWrite(t *testing.T) {
	rc := &responseCapture{ResponseWriter: httptest.NewRecorder()}

	if _, err := rc.Write([]byte("ok")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rc.statusCode != http.StatusOK {
		t.Errorf("got captured status %d, want 200", rc.statusCode)
	}
}
