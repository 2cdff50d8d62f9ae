package auth

import (
	"fmt"
	"regexp"
)

// emailPattern is a pragmatic email shape check: one @, a non-empty local
// part, and a dotted domain. Deliverability is the mail system's problem.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// maxEmailLength caps stored email addresses.
const maxEmailLength = 254

// IsValidEmail checks if an email address meets format requirements.
func IsValidEmail(email string) bool {
	return email != "" && len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Password strength bounds.
const (
	maxPasswordLength = 128
)

// ValidatePasswordStrength checks a password against the registration
// policy and returns every violated rule (empty slice = acceptable).
//
// Character classes are ASCII-only on purpose: a non-ASCII cased letter
// does not satisfy the lowercase/uppercase rules. Unicode passwords are
// accepted, they just need an ASCII letter of each case and a digit
// alongside.
func ValidatePasswordStrength(password string) []string {
	var violations []string

	if len(password) < MinPasswordLength {
		violations = append(violations,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > maxPasswordLength {
		violations = append(violations,
			fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	}

	var hasLower, hasUpper, hasDigit bool
	for i := 0; i < len(password); i++ {
		c := password[i]
		switch {
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= '0' && c <= '9':
			hasDigit = true
		}
	}

	if !hasLower {
		violations = append(violations, "password must contain a lowercase letter")
	}
	if !hasUpper {
		violations = append(violations, "password must contain an uppercase letter")
	}
	if !hasDigit {
		violations = append(violations, "password must contain a digit")
	}

	return violations
}
