package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/maddy52/whatsappweb/internal/media"
	"github.com/maddy52/whatsappweb/internal/session"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeAuthPending    = "auth_pending"
	ErrCodeUnavailable    = "unavailable"
	ErrCodePayloadTooBig  = "payload_too_large"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
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

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps session and media errors onto HTTP responses.
//
// Validation failures are the caller's fault (400). An unlinked session
// that needs its QR scanned is a failed precondition (412), distinct from
// a session that simply is not ready yet (503) so callers know whether to
// retry or to fetch the QR.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidTenantID),
		errors.Is(err, session.ErrMissingRecipient),
		errors.Is(err, session.ErrMissingPayload):
		writeBadRequest(w, err.Error())
	case errors.Is(err, media.ErrUnsupportedType):
		writeBadRequest(w, err.Error())
	case errors.Is(err, media.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooBig, err.Error())
	case errors.Is(err, session.ErrUnknownTenant),
		errors.Is(err, session.ErrNotRegistered),
		errors.Is(err, session.ErrNoChallenge):
		writeNotFound(w, err.Error())
	case errors.Is(err, session.ErrAuthPending):
		writeError(w, http.StatusPreconditionFailed, ErrCodeAuthPending, err.Error())
	case errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrStartupFailed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
