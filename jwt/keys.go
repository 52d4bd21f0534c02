package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// keySet holds the parsed signing key and the verification keys, resolved
// once when the manager is built.
type keySet struct {
	method jwt.SigningMethod
	sign   any
	// byKid is used when VerifyKeys is configured; single otherwise.
	byKid  map[string]any
	single any
	kid    string
}

func newKeySet(cfg Config) (keySet, error) {
	switch cfg.SigningMethod {
	case MethodHS256:
		return hmacKeySet(cfg)
	case MethodEd25519:
		return edKeySet(cfg)
	default:
		return keySet{}, errors.New("unsupported signing method")
	}
}

func hmacKeySet(cfg Config) (keySet, error) {
	if len(cfg.PrivateKey) == 0 {
		return keySet{}, errors.New("hs256 requires private key")
	}
	ks := keySet{
		method: jwt.SigningMethodHS256,
		sign:   cfg.PrivateKey,
		single: cfg.PrivateKey,
		kid:    cfg.KeyID,
	}
	if len(cfg.VerifyKeys) > 0 {
		ks.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return keySet{}, errors.New("verify key map contains empty kid")
			}
			ks.byKid[kid] = key
		}
	}
	return ks, ks.checkKid()
}

func edKeySet(cfg Config) (keySet, error) {
	ks := keySet{method: jwt.SigningMethodEdDSA, kid: cfg.KeyID}

	if len(cfg.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return keySet{}, err
		}
		ks.sign = priv
	}
	if len(cfg.PublicKey) > 0 {
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return keySet{}, err
		}
		ks.single = pub
	}
	if len(cfg.VerifyKeys) > 0 {
		ks.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return keySet{}, errors.New("verify key map contains empty kid")
			}
			pub, err := parseEdPublicKey(key)
			if err != nil {
				return keySet{}, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			ks.byKid[kid] = pub
		}
	}
	if ks.single == nil && ks.byKid == nil {
		return keySet{}, errors.New("ed25519 requires public key or verify key set")
	}
	return ks, ks.checkKid()
}

func (ks keySet) checkKid() error {
	if ks.kid != "" && ks.byKid != nil {
		if _, ok := ks.byKid[ks.kid]; !ok {
			return errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return nil
}

// verifyKey is the jwt.Keyfunc. A configured key set or KeyID makes the kid
// header mandatory.
func (ks keySet) verifyKey(t *jwt.Token) (any, error) {
	if t.Method.Alg() != ks.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if ks.byKid == nil && ks.kid == "" {
		return ks.single, nil
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	if ks.byKid != nil {
		key, ok := ks.byKid[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}
	if kid != ks.kid {
		return nil, errors.New("unknown kid")
	}
	return ks.single, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
