// Package shield provides HTTP middleware for the presse status API:
// security headers, request IDs, body limits, per-IP rate limiting and
// HEAD method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(db) {
//	    r.Use(mw)
//	}
//
// Or pick middlewares individually:
//
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxJSONBody(1 << 20))
//	r.Use(shield.RequestID)
package shield

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultAPIStack returns the standard middleware stack for the presse API.
// Ordered: HeadToGet, SecurityHeaders, MaxJSONBody, RequestID, RateLimiter.
// Pass a nil db to run without rate limiting.
func DefaultAPIStack(db *sql.DB) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(1 << 20),
		RequestID,
	}
	if db != nil {
		stack = append(stack, NewRateLimiter(db, "/healthz").Middleware)
	}
	return stack
}
