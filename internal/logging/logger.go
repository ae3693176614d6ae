// Package logging defines the structured logger used across the engine and
// its slog-backed implementation.
package logging

import "context"

// Logger is a context-aware, structured logger. args are key/value pairs:
//
//	log.Info(ctx, "slot bound", "app_id", appID, "license_id", id)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always adds args.
	With(args ...any) Logger
}

// ForPair returns a child logger tagged with an (application, email) pair.
func ForPair(l Logger, appID int64, email string) Logger {
	return l.With("app_id", appID, "email", email)
}
