package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular traveller account. Can create and join trips,
	// manage their own itineraries and expenses.
	RoleUser Role = "user"

	// RoleAdmin has full system control: user management, trip moderation,
	// operational endpoints. The first account ever registered is promoted
	// to admin automatically (deployment bootstrap).
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles an account may hold.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if the role is a recognised account role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Account represents a registered user account.
//
// FailedLoginAttempts and LockedUntil implement the brute-force lockout:
// the counter increments on each failed credential check and a timestamped
// lock is set when it reaches the configured threshold. A LockedUntil in
// the past means the account is unlocked — no explicit unlock step exists.
type Account struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name,omitempty"`
	PasswordHash        string     `json:"-"` // never serialised
	Role                Role       `json:"role"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// RefreshToken is the durable record of an issued refresh token.
//
// A record is consumable only while UsedAt and RevokedAt are both nil and
// ExpiresAt is in the future. Rotation marks the consumed record used and
// inserts its successor in the same family; reuse detection revokes every
// record sharing the FamilyID.
type RefreshToken struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	FamilyID  string     `json:"family_id"`
	TokenHash string     `json:"-"` // never serialised
	UsedAt    *time.Time `json:"used_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Session is the result of a successful registration or login.
type Session struct {
	Account      *Account `json:"account"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
}

// TokenPair is the result of a successful refresh rotation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Sentinel errors for auth operations.
//
// ErrInvalidCredentials deliberately carries the same wording for "unknown
// email" and "wrong password" so responses cannot be used to enumerate
// accounts.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountLocked      = errors.New("account locked")
	ErrTokenMissing       = errors.New("token missing")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
)

// LockedError reports that an account is (or has just become) locked.
// It matches ErrAccountLocked under errors.Is, and its message intentionally
// reveals the remaining wait time to reduce support load.
type LockedError struct {
	// RetryAfterMinutes is ceil((lockedUntil - now) / 1 minute).
	RetryAfterMinutes int

	// Attempts is the failure count that tripped the lock. Zero when the
	// error reports an attempt against an already-locked account.
	Attempts int
}

func (e *LockedError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("account locked after %d failed login attempts, retry in %d minutes",
			e.Attempts, e.RetryAfterMinutes)
	}
	return fmt.Sprintf("account locked, retry in %d minutes", e.RetryAfterMinutes)
}

// Is lets errors.Is(err, ErrAccountLocked) match *LockedError values.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ValidationError reports every violated input rule, not just the first,
// so clients can surface the full list in one round trip.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}
