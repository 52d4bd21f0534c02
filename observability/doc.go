// Package observability builds the zap logger and the Sentry error reporter
// used by the deskauthd daemon.
package observability
