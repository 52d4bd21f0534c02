package observability

import (
	"context"
	"time"

	"github.com/deskops/deskauth"
	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty dsn is a no-op.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// SentryReporter forwards unexpected engine failures to Sentry.
type SentryReporter struct {
	hub *sentry.Hub
}

var _ deskauth.ErrorReporter = (*SentryReporter)(nil)

// NewSentryReporter reports through hub, or the current hub when nil.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub}
}

// Report captures err with tags. A hub attached to ctx takes precedence.
func (r *SentryReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := r.hub
	if ctxHub := sentry.GetHubFromContext(ctx); ctxHub != nil {
		hub = ctxHub
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
