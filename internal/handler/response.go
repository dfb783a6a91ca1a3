package handler

// RESPONSE HELPERS:
// Successful responses are JSON; failures carry a status code and no body.
// The reason for a failure is written to the log, never to the client.
//
//   writeJSON(w, http.StatusOK, user)
//   writeError(w, err)                       // status from the error kind
//   w.WriteHeader(http.StatusUnauthorized)   // fixed status for this route

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mipt-portal/userservice/internal/apperror"
)

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a service error kind to an HTTP status code.
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401
//	ErrNotFound     → 404
//	ErrConflict     → 409
//	anything else   → 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends the status that matches err's kind, with an empty body.
func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(statusFor(err))
}
