package password

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func testConfig() Config {
	return Config{
		Memory:      floorMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T, mutate func(*Config)) *Argon2 {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	hasher := newTestHasher(t, nil)

	hash, err := hasher.Hash("Tick3t-desk!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("Tick3t-desk!", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("tick3t-desk!", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher := newTestHasher(t, nil)
	a, _ := hasher.Hash("same-input")
	b, _ := hasher.Hash("same-input")
	if a == b {
		t.Fatal("two hashes of one password must differ")
	}
}

func TestVerifyAcceptsPaddedEncoding(t *testing.T) {
	hasher := newTestHasher(t, nil)
	hash, err := hasher.Hash("padded-row")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	p, err := decodePHC(hash)
	if err != nil {
		t.Fatalf("decodePHC error: %v", err)
	}
	padded := strings.Join([]string{
		"$argon2id$v=19$m=8192,t=1,p=1",
		base64.StdEncoding.EncodeToString(p.salt),
		base64.StdEncoding.EncodeToString(p.key),
	}, "$")

	ok, err := hasher.Verify("padded-row", padded)
	if err != nil || !ok {
		t.Fatalf("expected padded hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newTestHasher(t, nil)
	strong := newTestHasher(t, func(c *Config) { c.Time = 2 })

	hash, err := weak.Hash("upgrade-me")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if up, err := strong.NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade for weaker parameters, up=%v err=%v", up, err)
	}
	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected no upgrade for current parameters, up=%v err=%v", up, err)
	}
}

func TestVerifyRejectsBadHashes(t *testing.T) {
	hasher := newTestHasher(t, nil)
	good, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	tests := []struct {
		name    string
		encoded string
		want    error
	}{
		{"garbage", "not-a-hash", ErrMalformedHash},
		{"wrong version", strings.Replace(good, "$v=19$", "$v=18$", 1), ErrUnsupportedHash},
		{"missing field", strings.Join(strings.Split(good, "$")[:5], "$"), ErrMalformedHash},
		{"cost below floor", strings.Replace(good, "m=8192", "m=1024", 1), ErrMalformedHash},
		{"extra parameter", strings.Replace(good, "p=1", "p=1,x=2", 1), ErrMalformedHash},
		{"parallelism overflow", strings.Replace(good, "p=1", "p=300", 1), ErrMalformedHash},
		{"unknown identity marker", base64.StdEncoding.EncodeToString([]byte{0x07, 1, 2, 3}), ErrUnsupportedHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := hasher.Verify("version-test", tt.encoded); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHashInputLimits(t *testing.T) {
	hasher := newTestHasher(t, func(c *Config) { c.MaxPasswordBytes = 64 })

	if _, err := hasher.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := hasher.Hash("abc"); err != nil {
		t.Fatalf("length is a policy concern, Hash must accept short input: %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	hash, err := hasher.Hash(exact)
	if err != nil {
		t.Fatalf("expected exactly-max password to be accepted: %v", err)
	}
	if ok, err := hasher.Verify(exact, hash); err != nil || !ok {
		t.Fatalf("Verify failed for max-length password: ok=%v err=%v", ok, err)
	}
	if _, err := hasher.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong from Verify, got %v", err)
	}
}

func TestDefaultMaxPasswordBytesApplied(t *testing.T) {
	hasher := newTestHasher(t, nil)

	if _, err := hasher.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected password > %d bytes to be rejected", DefaultMaxPasswordBytes)
	}
	if _, err := hasher.Hash(strings.Repeat("e", DefaultMaxPasswordBytes)); err != nil {
		t.Fatalf("expected password of exactly %d bytes to be accepted: %v", DefaultMaxPasswordBytes, err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	tests := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
		func(c *Config) { c.MaxPasswordBytes = -1 },
	}
	for i, mutate := range tests {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

func identityV3Hash(password string, rounds uint32) string {
	salt := []byte("0123456789abcdef")
	subkey := pbkdf2.Key([]byte(password), salt, int(rounds), 32, sha256.New)

	raw := make([]byte, identityV3Header, identityV3Header+len(salt)+len(subkey))
	raw[0] = identityV3
	binary.BigEndian.PutUint32(raw[1:5], 1)
	binary.BigEndian.PutUint32(raw[5:9], rounds)
	binary.BigEndian.PutUint32(raw[9:13], uint32(len(salt)))
	raw = append(raw, salt...)
	raw = append(raw, subkey...)
	return base64.StdEncoding.EncodeToString(raw)
}

func identityV2Hash(password string) string {
	salt := []byte("fedcba9876543210")
	subkey := pbkdf2.Key([]byte(password), salt, identityV2Rounds, identityV2KeyLen, sha1.New)
	raw := append([]byte{identityV2}, salt...)
	return base64.StdEncoding.EncodeToString(append(raw, subkey...))
}

func TestVerifyImportedIdentityHashes(t *testing.T) {
	hasher := newTestHasher(t, nil)

	for name, encoded := range map[string]string{
		"v2": identityV2Hash("Legacy#1"),
		"v3": identityV3Hash("Legacy#1", 10000),
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := hasher.Verify("Legacy#1", encoded)
			if err != nil || !ok {
				t.Fatalf("expected match, ok=%v err=%v", ok, err)
			}
			ok, err = hasher.Verify("legacy#1", encoded)
			if err != nil || ok {
				t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
			}
			if up, err := hasher.NeedsUpgrade(encoded); err != nil || !up {
				t.Fatalf("imported hashes must be upgraded, up=%v err=%v", up, err)
			}
		})
	}
}

func TestIdentityHashRejectsTruncatedInput(t *testing.T) {
	encoded := identityV3Hash("x", 1000)
	raw, _ := base64.StdEncoding.DecodeString(encoded)

	truncated := base64.StdEncoding.EncodeToString(raw[:identityV3Header+20])
	if _, err := decodeIdentity(truncated); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}

	binary.BigEndian.PutUint32(raw[1:5], 9)
	if _, err := decodeIdentity(base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash for unknown prf, got %v", err)
	}
}
