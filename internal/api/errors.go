package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wayfarer-app/wayfarer-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"

	// Auth-specific codes. token_reuse_detected is deliberately distinct
	// from the generic invalid_token so clients can force a full re-login.
	ErrCodeAccountLocked = "account_locked"
	ErrCodeTokenReuse    = "token_reuse_detected"
	ErrCodeInvalidToken  = "invalid_token"
	ErrCodeTokenExpired  = "token_expired"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError translates the auth package's error taxonomy into an
// HTTP response.
//
// Mapping notes:
//   - ErrAccountLocked carries its wait time in the message (the lock
//     state is already observable by the caller, so revealing the
//     remaining minutes gives nothing away).
//   - ErrTokenReuse is still a 401 but with a distinct code, so a client
//     can tell "log in again" apart from "token rotation raced".
//   - Anything unmapped is a 500 and the real error is only logged.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	var verr *auth.ValidationError
	var lerr *auth.LockedError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, strings.Join(verr.Violations, "; "))
	case errors.As(err, &lerr):
		writeError(w, http.StatusUnauthorized, ErrCodeAccountLocked, lerr.Error())
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, http.StatusUnauthorized, ErrCodeAccountLocked, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "an account with this email already exists")
	case errors.Is(err, auth.ErrTokenReuse):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenReuse, "refresh token reuse detected; all sessions for this login have been revoked")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "token has expired")
	case errors.Is(err, auth.ErrTokenMissing),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "invalid or revoked token")
	case errors.Is(err, auth.ErrAccountNotFound):
		writeNotFound(w, "account not found")
	default:
		s.logger.Error("auth operation failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
