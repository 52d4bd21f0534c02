package jwt

import (
	"context"
	"time"

	"github.com/deskops/deskauth"
)

// Issuer adapts a [Manager] to deskauth.TokenIssuer and
// deskauth.RefreshTokenParser.
type Issuer struct {
	manager *Manager
}

var (
	_ deskauth.TokenIssuer        = (*Issuer)(nil)
	_ deskauth.RefreshTokenParser = (*Issuer)(nil)
)

func NewIssuer(cfg Config) (*Issuer, error) {
	m, err := NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Issuer{manager: m}, nil
}

// Manager exposes the underlying manager, e.g. for access-token middleware.
func (i *Issuer) Manager() *Manager {
	return i.manager
}

func (i *Issuer) IssueAccess(_ context.Context, account deskauth.Account, roles []deskauth.Role) (string, time.Time, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return i.manager.CreateAccess(account.ID, account.Username, account.Email, names)
}

func (i *Issuer) IssueRefresh(_ context.Context, account deskauth.Account) (string, error) {
	token, _, err := i.manager.CreateRefresh(account.ID)
	return token, err
}

// ParseRefresh returns the account id of a valid refresh token.
func (i *Issuer) ParseRefresh(_ context.Context, token string) (string, error) {
	claims, err := i.manager.ParseRefresh(token)
	if err != nil {
		return "", err
	}
	return claims.UID, nil
}
