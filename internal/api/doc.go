// Package api implements the HTTP REST API for Wayfarer.
//
// This package provides:
//   - REST endpoints for registration, login, token refresh, and logout
//   - Account profile and active-session endpoints
//   - Admin access to the security audit trail
//   - Middleware stack (request ID, logging, recovery, CORS, bearer auth)
//   - TLS support for production deployments
//
// # Architecture
//
// Handlers are deliberately thin. Request bodies are decoded here,
// passed to the auth service, and the service's error taxonomy is
// translated into HTTP statuses and response codes. All security policy
// (argon2id verification, lockout, refresh rotation, reuse detection)
// lives in internal/auth.
//
// # Security
//
// Protected routes require a bearer access token signed by the
// configured secret. Refresh tokens are only ever accepted by the
// refresh and logout endpoints; the middleware rejects them elsewhere.
package api
