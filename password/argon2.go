package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcPrefix = "$argon2id$"

	floorMemoryKB uint32 = 8 * 1024
	floorSaltLen  uint32 = 16
	floorKeyLen   uint32 = 16

	// DefaultMaxPasswordBytes bounds the input fed to the KDF when
	// Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrEmptyPassword is returned by Hash for an empty input.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when the input exceeds Config.MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned for an encoded hash that cannot be decoded.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrUnsupportedHash is returned for a decodable hash of an unknown scheme or version.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes rejects longer inputs in Hash and Verify. Zero means
	// DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

// DefaultConfig returns 64 MiB, 3 passes, 2 lanes, 16-byte salt, 32-byte key.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", floorMemoryKB)
	case c.Time < 1:
		return errors.New("password time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < floorSaltLen:
		return fmt.Errorf("password salt length must be >= %d", floorSaltLen)
	case c.KeyLength < floorKeyLen:
		return fmt.Errorf("password key length must be >= %d", floorKeyLen)
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Argon2 hashes new passwords with Argon2id and verifies both its own PHC
// strings and hashes imported from the ticketing system's ASP.NET Identity
// tables. Safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg against the minimum cost parameters.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns a fresh-salted PHC encoding of password. Length rules belong
// to [Policy]; only the empty password is refused here.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	p := phcParams{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
		key:         argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength),
	}
	return p.encode(), nil
}

// Verify reports whether password matches encodedHash. A hash of an unknown
// scheme is an error, not a mismatch.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	if !strings.HasPrefix(encodedHash, phcPrefix) {
		return verifyIdentity(password, encodedHash)
	}

	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash should be replaced: imported
// hashes always are, Argon2id ones when weaker than the current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	if !strings.HasPrefix(encodedHash, phcPrefix) {
		if _, err := decodeIdentity(encodedHash); err != nil {
			return false, err
		}
		return true, nil
	}

	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength
	return weaker, nil
}

type phcParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phcParams) encode() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

// decodePHC parses $argon2id$v=19$m=..,t=..,p=..$salt$key.
func decodePHC(s string) (phcParams, error) {
	fields := strings.Split(strings.TrimPrefix(s, phcPrefix), "$")
	if len(fields) != 4 {
		return phcParams{}, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return phcParams{}, ErrMalformedHash
	}
	if version != argon2.Version {
		return phcParams{}, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, version)
	}

	var p phcParams
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.parallelism) != fields[1] {
		return phcParams{}, ErrMalformedHash
	}
	if p.memory < floorMemoryKB || p.time < 1 || p.parallelism < 1 {
		return phcParams{}, fmt.Errorf("%w: cost below floor", ErrMalformedHash)
	}

	if p.salt, err = decodeB64(fields[2]); err != nil || uint32(len(p.salt)) < floorSaltLen {
		return phcParams{}, ErrMalformedHash
	}
	if p.key, err = decodeB64(fields[3]); err != nil || len(p.key) == 0 {
		return phcParams{}, ErrMalformedHash
	}
	return p, nil
}

// decodeB64 accepts the unpadded PHC alphabet and the padded form older
// rows were written with.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
