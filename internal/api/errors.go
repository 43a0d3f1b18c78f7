package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/bioconsole/internal/reactor"
)

// Error is the JSON body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodePreconditionFailed = "precondition_failed"
	ErrCodeTransport          = "transport_error"
	ErrCodeUnavailable        = "unavailable"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // connection may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// classifyError maps a session error to an HTTP status and error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, reactor.ErrUnknownChannel):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, reactor.ErrOutOfRange), errors.Is(err, reactor.ErrInvalidValue):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, reactor.ErrPreconditionFailed):
		return http.StatusConflict, ErrCodePreconditionFailed
	case errors.Is(err, reactor.ErrTransport):
		return http.StatusBadGateway, ErrCodeTransport
	case errors.Is(err, reactor.ErrSessionClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	writeError(w, status, code, err.Error())
}
