package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
)

func TestRequestScopeMiddleware_UsesHeaderID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var got *scope.Scope
	handler := RequestScopeMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = scope.Request.Current(r.Context())
		if got == nil {
			t.Fatal("request scope missing from context")
		}
		if got.Closed() {
			t.Error("scope closed before the handler returned")
		}
		if id := RequestIDFromContext(r.Context()); id != "req-42" {
			t.Errorf("RequestIDFromContext() = %q, want req-42", id)
		}
		LoggerFromContext(r.Context()).Info("handled")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.Label() != "req-42" {
		t.Errorf("scope label = %q, want req-42", got.Label())
	}
	if !got.Closed() {
		t.Error("scope should be closed after the handler returns")
	}
	if h := rec.Header().Get("X-Request-ID"); h != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", h)
	}
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("log output missing request_id: %s", buf.String())
	}
}

func TestRequestScopeMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	var id string
	handler := RequestScopeMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("generated request ID %q is not a UUID: %v", id, err)
	}
	if rec.Header().Get("X-Request-ID") != id {
		t.Error("response header should echo the generated ID")
	}
}

func TestRequestScopeMiddleware_ClosesOnPanic(t *testing.T) {
	t.Parallel()

	var s *scope.Scope
	handler := RequestScopeMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s = scope.Request.Current(r.Context())
		panic("boom")
	}))

	func() {
		defer func() { _ = recover() }()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()

	if s == nil || !s.Closed() {
		t.Error("scope should be closed when the handler panics")
	}
}

func TestFromContext_Defaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if LoggerFromContext(ctx) != slog.Default() {
		t.Error("LoggerFromContext() should fall back to slog.Default()")
	}
	if id := RequestIDFromContext(ctx); id != "" {
		t.Errorf("RequestIDFromContext() = %q, want empty", id)
	}
}
