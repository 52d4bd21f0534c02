package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

// NewOTPCode returns a code drawn uniformly from [10^(digits-1), 10^digits - 1],
// so six digits gives [100000, 999999] with no leading zero.
func NewOTPCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Sub(new(big.Int).Mul(low, big.NewInt(10)), low)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	code := strconv.FormatInt(n.Add(n, low).Int64(), 10)
	if len(code) != digits {
		return "", errors.New("invalid otp generation length")
	}
	return code, nil
}

// ValidOTPCode reports whether code is exactly digits ASCII digits.
func ValidOTPCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}
