package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/deskops/deskauth"
	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newHSManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "deskauth",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateAccessRoundTrip(t *testing.T) {
	m := newHSManager(t)

	token, exp, err := m.CreateAccess("acct-1", "jdoe", "jdoe@example.com", []string{"Technician"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) <= 14*time.Minute {
		t.Fatalf("expected ~15m expiry, got %v", time.Until(exp))
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "acct-1" || claims.Username != "jdoe" || claims.Email != "jdoe@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "Technician" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	m := newHSManager(t)

	access, _, err := m.CreateAccess("acct-1", "jdoe", "jdoe@example.com", nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	refresh, _, err := m.CreateRefresh("acct-1")
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType for access as refresh, got %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType for refresh as access, got %v", err)
	}
	claims, err := m.ParseRefresh(refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.UID != "acct-1" || claims.ID == "" {
		t.Fatalf("expected uid and jti, got %+v", claims)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	m := newHSManager(t)

	a, _, err := m.CreateRefresh("acct-1")
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}
	b, _, err := m.CreateRefresh("acct-1")
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct refresh tokens")
	}
}

func TestRefreshExpiry(t *testing.T) {
	m := newHSManager(t)
	base := time.Now()
	m.now = func() time.Time { return base }

	token, _, err := m.CreateRefresh("acct-1")
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	m.now = func() time.Time { return base.Add(25 * time.Hour) }
	if _, err := m.ParseRefresh(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired refresh token, got %v", err)
	}
}

func TestCreateRejectsEmptySubject(t *testing.T) {
	m := newHSManager(t)
	if _, _, err := m.CreateAccess("", "u", "e", nil); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
	if _, _, err := m.CreateRefresh(""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u", Typ: tokenTypeAccess, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "deskauth",
		Audience:      "desk-api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, _, err := m.CreateAccess("u", "user", "u@example.com", nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(issuer, audience string, exp, iat time.Time) string {
		c := Claims{UID: "u", Typ: tokenTypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{audience},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(iat),
		}}
		s, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		return s
	}
	now := time.Now()

	if _, err := m.ParseAccess(sign("other", "desk-api", now.Add(time.Minute), now)); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.ParseAccess(sign("deskauth", "other-api", now.Add(time.Minute), now)); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.ParseAccess(sign("deskauth", "desk-api", now.Add(-15*time.Second), now.Add(-time.Minute))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.ParseAccess(sign("deskauth", "desk-api", now.Add(-2*time.Minute), now.Add(-3*time.Minute))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u", Typ: tokenTypeAccess, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseAccess(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestIssuerImplementsEngineContracts(t *testing.T) {
	issuer, err := NewIssuer(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	ctx := context.Background()
	acct := deskauth.Account{ID: "acct-9", Username: "tech", Email: "tech@example.com", Role: deskauth.RoleTechnician}

	access, _, err := issuer.IssueAccess(ctx, acct, []deskauth.Role{acct.Role})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	claims, err := issuer.Manager().ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "Technician" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}

	refresh, err := issuer.IssueRefresh(ctx, acct)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	id, err := issuer.ParseRefresh(ctx, refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if id != "acct-9" {
		t.Fatalf("expected acct-9, got %q", id)
	}
	if _, err := issuer.ParseRefresh(ctx, access); err == nil {
		t.Fatal("expected access token to be rejected as refresh")
	}
}

func TestVerifyOnlyManager(t *testing.T) {
	pub, priv := newEdKeys(t)
	signer, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, _, err := signer.CreateAccess("acct-1", "jdoe", "jdoe@example.com", nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := verifier.ParseAccess(token); err != nil {
		t.Fatalf("verifier must accept the signer's token: %v", err)
	}
	if _, _, err := verifier.CreateAccess("acct-1", "", "", nil); !errors.Is(err, ErrVerifyOnly) {
		t.Fatalf("expected ErrVerifyOnly, got %v", err)
	}
}
