// Package log provides slog loggers that mask credentials.
//
// The snipe command logs into an account and keeps a session cookie, and the
// scrape command can be configured with a cookie or auth headers. SecureHandler
// wraps any slog.Handler and replaces such values with MaskValue, both by key
// name (password, email, cookie, authenticity_token, ...) and by value shape
// (bearer tokens, JWTs, session cookie pairs).
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("logging in", "email", email) // email=***REDACTED***
//	slog.SetDefault(logger)
package log
