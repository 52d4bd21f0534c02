package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrWrongTokenType is returned when a refresh token is parsed as access or the reverse.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrMissingSubject is returned for a token without a uid claim.
	ErrMissingSubject = errors.New("token has no subject")
	// ErrVerifyOnly is returned when signing with an Ed25519 manager built without a private key.
	ErrVerifyOnly = errors.New("manager has no signing key")
)

// Config configures a [Manager]. HS256 signs and verifies with PrivateKey.
// Ed25519 signs with PrivateKey and verifies with PublicKey or VerifyKeys.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and verifies access and refresh tokens. It is safe for
// concurrent use.
type Manager struct {
	config Config
	keys   keySet
	now    func() time.Time
}

// Claims is the payload of both token types. Typ tells them apart so a
// refresh token is never accepted as an access token.
type Claims struct {
	UID      string   `json:"uid"`
	Username string   `json:"usr,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Typ      string   `json:"typ"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, errors.New("invalid access TTL configuration")
	case cfg.RefreshTTL < 0:
		return nil, errors.New("invalid refresh TTL configuration")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	keys, err := newKeySet(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{config: cfg, keys: keys, now: time.Now}, nil
}

// CreateAccess signs an access token for uid and returns it with its expiry.
func (j *Manager) CreateAccess(uid, username, email string, roles []string) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	claims := j.newClaims(uid, tokenTypeAccess, j.config.AccessTTL)
	claims.Username = username
	claims.Email = email
	claims.Roles = roles

	signed, err := j.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// CreateRefresh signs a refresh token for uid. Each token carries a random
// jti, so two refresh tokens for the same account never collide.
func (j *Manager) CreateRefresh(uid string) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	claims := j.newClaims(uid, tokenTypeRefresh, j.config.RefreshTTL)
	claims.ID = uuid.NewString()

	signed, err := j.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// ParseAccess verifies an access token.
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, tokenTypeAccess)
}

// ParseRefresh verifies a refresh token.
func (j *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, tokenTypeRefresh)
}

func (j *Manager) newClaims(uid, typ string, ttl time.Duration) Claims {
	now := j.now()
	claims := Claims{
		UID: uid,
		Typ: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return claims
}

func (j *Manager) sign(claims Claims) (string, error) {
	if j.keys.sign == nil {
		return "", ErrVerifyOnly
	}
	token := jwt.NewWithClaims(j.keys.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(j.keys.sign)
}

func (j *Manager) parse(tokenStr, typ string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.keys.method.Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, j.keys.verifyKey)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Typ != typ {
		return nil, ErrWrongTokenType
	}
	if claims.UID == "" {
		return nil, ErrMissingSubject
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}
	return claims, nil
}
