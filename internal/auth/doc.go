// Package auth implements the authentication and session-security core of
// Wayfarer.
//
// It provides:
//   - Argon2id password hashing (OWASP 2025 recommendation) with strength
//     validation at the registration boundary
//   - Signed JWT access and refresh tokens with issuer/audience/type claims
//   - Per-account failed-login tracking with a timed lockout
//   - Rotating single-use refresh tokens grouped into families, with
//     reuse detection and whole-family revocation on theft signals
//
// Refresh tokens are persisted by a one-way SHA-256 hash only; the raw
// token never touches the database. Every successful rotation produces
// exactly one successor in the same family and consumes the predecessor.
// Presenting an already-consumed token revokes the entire family, forcing
// a fresh login for both the attacker and the legitimate client.
//
// All "now" reads that drive domain decisions (lockout windows, token
// expiry) go through the Clock interface so the state machines are
// deterministically testable.
package auth
