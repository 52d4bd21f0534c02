package password

import (
	"strconv"
	"unicode"
)

// Policy is a set of composition rules for new passwords.
type Policy struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// Check returns one reason per broken rule, in a stable order. An empty
// result means the password is acceptable. Length counts runes.
func (p Policy) Check(password string) []string {
	var (
		reasons                      []string
		length                       int
		digit, lower, upper, special bool
	)
	for _, r := range password {
		length++
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			special = true
		}
	}

	if length < p.MinLength {
		reasons = append(reasons, "must be at least "+strconv.Itoa(p.MinLength)+" characters")
	}
	if p.RequireDigit && !digit {
		reasons = append(reasons, "must contain a digit")
	}
	if p.RequireLowercase && !lower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if p.RequireUppercase && !upper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if p.RequireNonAlphanumeric && !special {
		reasons = append(reasons, "must contain a non-alphanumeric character")
	}
	return reasons
}
