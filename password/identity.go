package password

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// Accounts migrated from the ASP.NET Identity tables keep their original
// PasswordHash column until the next successful login rehashes them.
//
//	v2: 0x00 | salt[16] | subkey[32]                      PBKDF2-HMAC-SHA1, 1000 rounds
//	v3: 0x01 | prf u32 | rounds u32 | saltLen u32 | salt | subkey   big-endian header
const (
	identityV2 byte = 0x00
	identityV3 byte = 0x01

	identityV2Rounds  = 1000
	identityV2SaltLen = 16
	identityV2KeyLen  = 32

	identityV3Header    = 13
	identityMinSaltLen  = 16
	identityMinKeyLen   = 16
	identityMaxRounds   = 10_000_000
	identityMaxSaltSize = 1024
)

type identityHash struct {
	prf    func() hash.Hash
	rounds int
	salt   []byte
	subkey []byte
}

func decodeIdentity(encoded string) (identityHash, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return identityHash{}, ErrMalformedHash
	}

	switch raw[0] {
	case identityV2:
		if len(raw) != 1+identityV2SaltLen+identityV2KeyLen {
			return identityHash{}, ErrMalformedHash
		}
		return identityHash{
			prf:    sha1.New,
			rounds: identityV2Rounds,
			salt:   raw[1 : 1+identityV2SaltLen],
			subkey: raw[1+identityV2SaltLen:],
		}, nil

	case identityV3:
		if len(raw) < identityV3Header {
			return identityHash{}, ErrMalformedHash
		}
		prf, err := identityPRF(binary.BigEndian.Uint32(raw[1:5]))
		if err != nil {
			return identityHash{}, err
		}
		rounds := binary.BigEndian.Uint32(raw[5:9])
		saltLen := binary.BigEndian.Uint32(raw[9:13])
		if rounds == 0 || rounds > identityMaxRounds || saltLen < identityMinSaltLen || saltLen > identityMaxSaltSize {
			return identityHash{}, ErrMalformedHash
		}
		body := raw[identityV3Header:]
		if uint32(len(body)) < saltLen+identityMinKeyLen {
			return identityHash{}, ErrMalformedHash
		}
		return identityHash{
			prf:    prf,
			rounds: int(rounds),
			salt:   body[:saltLen],
			subkey: body[saltLen:],
		}, nil

	default:
		return identityHash{}, fmt.Errorf("%w: format marker 0x%02x", ErrUnsupportedHash, raw[0])
	}
}

func identityPRF(id uint32) (func() hash.Hash, error) {
	switch id {
	case 0:
		return sha1.New, nil
	case 1:
		return sha256.New, nil
	case 2:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: prf %d", ErrUnsupportedHash, id)
	}
}

func verifyIdentity(password, encoded string) (bool, error) {
	h, err := decodeIdentity(encoded)
	if err != nil {
		return false, err
	}
	derived := pbkdf2.Key([]byte(password), h.salt, h.rounds, len(h.subkey), h.prf)
	return subtle.ConstantTimeCompare(derived, h.subkey) == 1, nil
}
