package flows

import (
	"context"
	"time"
)

// AccountRecord is the flow-local account model. The engine converts to and
// from its public Account type at the boundary.
type AccountRecord struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Age       int

	Role              uint8
	Admin             bool
	EmailConfirmed    bool
	FailedAccessCount int
	Lockout           Lockout
	CreatedAt         time.Time
}

// TokenSet is what the token issuer hands back for an authenticated account.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuditFunc emits one audit event. meta is evaluated only when the event is kept.
type AuditFunc func(ctx context.Context, event string, success bool, accountID string, err error, meta func() map[string]string)

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func noopMetric(int) {}
