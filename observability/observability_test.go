package observability

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
		wantLevel     zapcore.Level
	}{
		{level: "debug", format: "json", wantLevel: zapcore.DebugLevel},
		{level: "warn", format: "console", wantLevel: zapcore.WarnLevel},
		{level: "info", format: "", wantLevel: zapcore.InfoLevel},
		{level: "loud", format: "json", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if !logger.Core().Enabled(tt.wantLevel) {
				t.Fatalf("expected level %s enabled", tt.wantLevel)
			}
			if tt.wantLevel > zapcore.DebugLevel && logger.Core().Enabled(tt.wantLevel-1) {
				t.Fatalf("expected level below %s disabled", tt.wantLevel)
			}
		})
	}
}

func TestInitSentryEmptyDSNIsNoop(t *testing.T) {
	if err := InitSentry("", "test"); err != nil {
		t.Fatalf("expected nil error for empty dsn, got %v", err)
	}
}

func newCapturingHub(t *testing.T) (*sentry.Hub, func() []*sentry.Event) {
	t.Helper()
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("sentry client: %v", err)
	}
	return sentry.NewHub(client, sentry.NewScope()), func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]*sentry.Event(nil), events...)
	}
}

func TestSentryReporterCapturesWithTags(t *testing.T) {
	hub, events := newCapturingHub(t)
	r := NewSentryReporter(hub)

	r.Report(context.Background(), errors.New("user store down"), map[string]string{"op": "login"})
	r.Report(context.Background(), nil, nil)

	got := events()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Tags["op"] != "login" {
		t.Fatalf("expected op tag, got %v", got[0].Tags)
	}
}

func TestSentryReporterPrefersContextHub(t *testing.T) {
	base, baseEvents := newCapturingHub(t)
	scoped, scopedEvents := newCapturingHub(t)

	ctx := sentry.SetHubOnContext(context.Background(), scoped)
	NewSentryReporter(base).Report(ctx, errors.New("boom"), nil)

	if len(baseEvents()) != 0 || len(scopedEvents()) != 1 {
		t.Fatalf("expected event on context hub only, base=%d scoped=%d", len(baseEvents()), len(scopedEvents()))
	}
}
