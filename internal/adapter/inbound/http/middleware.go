package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/ratelog/internal/ctxkey"
	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
)

// RequestScopeMiddleware gives every request its own logging scope.
//
// The request ID is taken from X-Request-ID or generated, then used as the
// scope label. The scope is installed as the scope.Request scope of the
// request context and closed when the handler returns, so rate limit state
// aggregated per request is released with it. An enriched logger with a
// request_id field is stored in the context as well.
func RequestScopeMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			s := scope.Create(requestID)
			defer s.Close()

			ctx := scope.Request.WithScope(r.Context(), s)
			ctx = context.WithValue(ctx, ctxkey.RequestIDKey{}, requestID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, logger.With("request_id", requestID))

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RequestIDFromContext returns the request ID set by RequestScopeMiddleware,
// or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.RequestIDKey{}).(string)
	return id
}
