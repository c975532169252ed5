package console

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetdesk/fleetdesk-client/internal/access"
	"github.com/fleetdesk/fleetdesk-client/internal/device"
	"github.com/fleetdesk/fleetdesk-client/internal/fleetapi"
)

// Error represents a structured error response.
type Error struct {
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeUpstream     = "upstream_error"
	ErrCodeInternal     = "internal_error"
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

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUpstreamError maps a fleet server or cache error to a response.
//
// A rejected session has already been cleared by the API client, so the
// response points the caller at the login view.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var statusErr *fleetapi.StatusError

	switch {
	case errors.Is(err, fleetapi.ErrUnauthorized), errors.Is(err, fleetapi.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, Error{
			Status:   http.StatusUnauthorized,
			Code:     ErrCodeUnauthorized,
			Message:  err.Error(),
			Redirect: access.LoginPath,
		})
	case errors.Is(err, fleetapi.ErrNotFound), errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, fleetapi.ErrInvalidDeviceID):
		writeBadRequest(w, err.Error())
	case errors.As(err, &statusErr) && statusErr.Status < http.StatusInternalServerError:
		message := statusErr.Detail
		if message == "" {
			message = http.StatusText(statusErr.Status)
		}
		writeError(w, statusErr.Status, ErrCodeUpstream, message)
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	}
}
