package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Telemetry receives security events for operational metrics.
// Implementations must be non-blocking; the auth flows never wait on them.
type Telemetry interface {
	RecordSecurityEvent(event, accountID string, count int64)
}

// AuditLogger persists security-relevant events for later review.
type AuditLogger interface {
	RecordAuthEvent(ctx context.Context, action, accountID string, details map[string]any)
}

// Security event names shared by telemetry and the audit trail.
const (
	EventRegistration  = "registration"
	EventLoginSuccess  = "login_success"
	EventLoginFailure  = "login_failure"
	EventAccountLocked = "account_locked"
	EventTokenReuse    = "token_reuse"
	EventFamilyRevoked = "family_revoked"
	EventLogout        = "logout"
)

// Service orchestrates the register / login / refresh flows over the
// password hasher, token codec, lockout tracker, and the two repositories.
//
// Thread Safety: all methods are safe for concurrent use; cross-request
// state lives entirely in the account and refresh-token rows.
type Service struct {
	accounts AccountRepository
	tokens   TokenRepository
	codec    *TokenCodec
	lockout  *Lockout
	clock    Clock
	logger   *slog.Logger

	// dummyHash is verified against when the email is unknown, so the
	// unknown-account path costs the same hashing work as a wrong password.
	dummyHash string

	// verify is VerifyPassword in production; tests substitute a counting
	// wrapper to assert locked attempts never reach the hasher.
	verify func(password, encoded string) bool

	telemetry Telemetry
	audit     AuditLogger
}

// NewService creates the authentication service.
// A nil clock defaults to SystemClock; a nil logger discards.
func NewService(accounts AccountRepository, tokens TokenRepository, codec *TokenCodec, lockout *Lockout, clock Clock, logger *slog.Logger) (*Service, error) {
	if accounts == nil || tokens == nil || codec == nil || lockout == nil {
		return nil, fmt.Errorf("accounts, tokens, codec and lockout are required")
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dummyHash, err := HashPassword("wayfarer-timing-equalisation")
	if err != nil {
		return nil, fmt.Errorf("preparing dummy hash: %w", err)
	}

	return &Service{
		accounts:  accounts,
		tokens:    tokens,
		codec:     codec,
		lockout:   lockout,
		clock:     clock,
		logger:    logger,
		dummyHash: dummyHash,
		verify:    VerifyPassword,
	}, nil
}

// SetTelemetry attaches an optional security-event recorder.
func (s *Service) SetTelemetry(t Telemetry) { s.telemetry = t }

// SetAudit attaches an optional audit trail.
func (s *Service) SetAudit(a AuditLogger) { s.audit = a }

// Register creates a new account and issues its first session.
//
// Email shape and password strength are validated together so the caller
// receives every violation at once. The first account ever created is
// promoted to admin (bootstrap); everyone after that is a regular user.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*Session, error) {
	email = normaliseEmail(email)

	var violations []string
	if !IsValidEmail(email) {
		violations = append(violations, "invalid email address")
	}
	violations = append(violations, ValidatePasswordStrength(password)...)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("checking existing account: %w", err)
	}

	role := RoleUser
	admins, err := s.accounts.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("counting admins: %w", err)
	}
	if admins == 0 {
		role = RoleAdmin
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		// The unique index catches registration races the pre-check missed.
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	session, err := s.issueSession(ctx, account, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "role", account.Role)
	s.recordEvent(ctx, EventRegistration, account.ID, 1, map[string]any{"role": string(account.Role)})

	return session, nil
}

// Authenticate verifies credentials and issues a fresh session.
//
// The order is fixed: account lookup, lock check, password verification.
// An unknown email takes the same path as a wrong password — including a
// hashing operation against a dummy hash — and both surface the identical
// ErrInvalidCredentials, so responses cannot reveal which accounts exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = normaliseEmail(email)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.verify(password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	// Lock check precedes password verification: a locked account never
	// pays for, or leaks timing from, a hashing operation.
	if err := s.lockout.Check(account); err != nil {
		return nil, err
	}

	if !s.verify(password, account.PasswordHash) {
		locked, lockErr := s.lockout.RecordFailure(ctx, account)
		if lockErr != nil {
			return nil, lockErr
		}

		s.logger.Warn("login failure",
			"account_id", account.ID,
			"failed_attempts", account.FailedLoginAttempts,
		)
		s.recordEvent(ctx, EventLoginFailure, account.ID, 1, map[string]any{
			"failed_attempts": account.FailedLoginAttempts,
		})

		if locked != nil {
			s.logger.Warn("account locked",
				"account_id", account.ID,
				"retry_after_minutes", locked.RetryAfterMinutes,
			)
			s.recordEvent(ctx, EventAccountLocked, account.ID, 1, nil)
			return nil, locked
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.lockout.Reset(ctx, account); err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, account, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("login success", "account_id", account.ID)
	s.recordEvent(ctx, EventLoginSuccess, account.ID, 1, nil)

	return session, nil
}

// RefreshAccessToken redeems a refresh token for a new access/refresh
// pair — the rotation state machine.
//
// A structurally valid token whose store record is already consumed is
// treated as a theft signal: the entire family is revoked (including the
// child issued by the legitimate redemption) and the distinct ErrTokenReuse
// is returned. First-time use consumes the record and mints a successor in
// the same family; consume-and-mint commit atomically, so a concurrent
// redemption of the same token cannot also succeed.
func (s *Service) RefreshAccessToken(ctx context.Context, rawToken string) (*TokenPair, error) {
	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", ErrTokenInvalid)
	}

	record, err := s.tokens.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !record.ExpiresAt.After(now) {
		return nil, ErrTokenExpired
	}
	if record.RevokedAt != nil {
		return nil, ErrTokenRevoked
	}
	if record.UsedAt != nil {
		return nil, s.handleReuse(ctx, record)
	}

	account, err := s.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("loading account: %w", err)
	}

	newRefresh, newClaims, err := s.codec.SignRefresh(account.ID, record.FamilyID)
	if err != nil {
		return nil, err
	}

	successor := &RefreshToken{
		AccountID: account.ID,
		FamilyID:  record.FamilyID,
		TokenHash: HashToken(newRefresh),
		ExpiresAt: newClaims.ExpiresAt.Time,
	}
	if err := s.tokens.Rotate(ctx, record.TokenHash, successor, now); err != nil {
		if errors.Is(err, ErrTokenReuse) {
			// Lost a race against a concurrent redemption of the same token.
			return nil, s.handleReuse(ctx, record)
		}
		return nil, err
	}

	// Mint the access token only after the rotation has durably committed:
	// no token the caller can see exists without its store record.
	accessToken, err := s.codec.SignAccess(account)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefresh}, nil
}

// handleReuse revokes the compromised family and returns ErrTokenReuse.
func (s *Service) handleReuse(ctx context.Context, record *RefreshToken) error {
	count, err := s.tokens.RevokeFamily(ctx, record.FamilyID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("revoking family after reuse: %w", err)
	}

	s.logger.Warn("refresh token reuse detected, family revoked",
		"account_id", record.AccountID,
		"family_id", record.FamilyID,
		"revoked", count,
	)
	s.recordEvent(ctx, EventTokenReuse, record.AccountID, 1, map[string]any{
		"family_id": record.FamilyID,
	})
	s.recordEvent(ctx, EventFamilyRevoked, record.AccountID, count, map[string]any{
		"family_id": record.FamilyID,
	})

	return ErrTokenReuse
}

// GetProfile returns the account for an ID.
func (s *Service) GetProfile(ctx context.Context, accountID string) (*Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// ListAccounts returns every registered account, oldest first.
// Admin surface.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.accounts.List(ctx)
}

// Logout revokes the presented refresh token's entire family, ending the
// session on every device that descended from the same login.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeRefresh {
		return fmt.Errorf("%w: not a refresh token", ErrTokenInvalid)
	}

	record, err := s.tokens.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		return err
	}

	count, err := s.tokens.RevokeFamily(ctx, record.FamilyID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("revoking family on logout: %w", err)
	}

	s.logger.Info("logout", "account_id", record.AccountID, "revoked", count)
	s.recordEvent(ctx, EventLogout, record.AccountID, count, nil)
	return nil
}

// LogoutAll revokes every active refresh token an account holds.
// Returns the number of tokens revoked.
func (s *Service) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	count, err := s.tokens.RevokeAllForAccount(ctx, accountID, s.clock.Now())
	if err != nil {
		return 0, err
	}

	s.logger.Info("logout all sessions", "account_id", accountID, "revoked", count)
	s.recordEvent(ctx, EventLogout, accountID, count, map[string]any{"scope": "all"})
	return count, nil
}

// ListSessions returns the account's consumable refresh tokens, one per
// live session.
func (s *Service) ListSessions(ctx context.Context, accountID string) ([]RefreshToken, error) {
	return s.tokens.ListActiveByAccount(ctx, accountID)
}

// SweepExpiredTokens deletes refresh tokens past their expiry.
// Intended to run periodically from the service entrypoint.
func (s *Service) SweepExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx)
}

// issueSession persists a refresh token record and returns the session.
// The refresh record is committed before the access token is minted, so a
// cancelled request can never hand out tokens without durable state.
func (s *Service) issueSession(ctx context.Context, account *Account, familyID string) (*Session, error) {
	refreshToken, claims, err := s.codec.SignRefresh(account.ID, familyID)
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		AccountID: account.ID,
		FamilyID:  claims.FamilyID,
		TokenHash: HashToken(refreshToken),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting refresh token: %w", err)
	}

	accessToken, err := s.codec.SignAccess(account)
	if err != nil {
		return nil, err
	}

	return &Session{
		Account:      account,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// recordEvent forwards a security event to the optional telemetry and
// audit sinks. Sink failures are logged, never propagated — observability
// must not break an auth flow.
func (s *Service) recordEvent(ctx context.Context, event, accountID string, count int64, details map[string]any) {
	if s.telemetry != nil {
		s.telemetry.RecordSecurityEvent(event, accountID, count)
	}
	if s.audit != nil {
		s.audit.RecordAuthEvent(ctx, event, accountID, details)
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
