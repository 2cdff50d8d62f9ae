package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates access from refresh tokens inside the claims, so
// a refresh token can never be presented as an access token or vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the full claim set carried by Wayfarer tokens.
// Access tokens carry Email and Role; refresh tokens carry FamilyID.
type Claims struct {
	jwt.RegisteredClaims
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role,omitempty"`
	TokenType TokenType `json:"typ"`
	FamilyID  string    `json:"fid,omitempty"`
}

// CodecConfig configures a TokenCodec.
type CodecConfig struct {
	// Secret is the HMAC signing key. Injected at construction — the codec
	// never reads process-wide state.
	Secret string

	// Issuer and Audience are embedded in and required of every token.
	Issuer   string
	Audience string

	// AccessTTL and RefreshTTL default to 15 minutes and 7 days.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenCodec signs and verifies Wayfarer access and refresh tokens
// (HS256 JWTs: three base64url segments, header.claims.signature).
type TokenCodec struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
}

// NewTokenCodec creates a codec from the given configuration.
// A nil clock defaults to SystemClock.
func NewTokenCodec(cfg CodecConfig, clock Clock) *TokenCodec {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if clock == nil {
		clock = SystemClock
	}

	return &TokenCodec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      clock,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// SignAccess creates a signed access token for an account.
// The account must carry an ID and an email.
func (c *TokenCodec) SignAccess(account *Account) (string, error) {
	if account == nil || account.ID == "" || account.Email == "" {
		return "", &ValidationError{Violations: []string{"account id and email are required"}}
	}

	now := c.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
			ID:        uuid.NewString(),
		},
		Email:     account.Email,
		Role:      account.Role,
		TokenType: TokenTypeAccess,
	}

	return c.sign(claims)
}

// SignRefresh creates a signed refresh token for an account. A new family
// ID is generated when none is supplied (fresh login); rotation passes the
// existing family through. The returned claims expose the family ID and
// expiry so the caller can persist the matching store record.
func (c *TokenCodec) SignRefresh(accountID, familyID string) (string, *Claims, error) {
	if accountID == "" {
		return "", nil, &ValidationError{Violations: []string{"account id is required"}}
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}

	now := c.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
			ID:        uuid.NewString(),
		},
		TokenType: TokenTypeRefresh,
		FamilyID:  familyID,
	}

	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

func (c *TokenCodec) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// Verify validates a token's signature, issuer, audience, and expiry and
// returns the full claim set. Failures map to the sentinel taxonomy:
// ErrTokenMissing for empty input, ErrTokenExpired past expiry, and
// ErrTokenInvalid for everything else (bad signature, wrong issuer or
// audience, malformed structure, missing required claims).
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.TokenType != TokenTypeAccess && claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrTokenInvalid, claims.TokenType)
	}

	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature or any
// registered claim. Diagnostics only — never use the result for a trust
// decision.
func (c *TokenCodec) DecodeUnverified(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
