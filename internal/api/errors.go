package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/nvx"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeValidation   = "validation_error"
	ErrCodeNotReady     = "not_ready"
	ErrCodeUnreachable  = "device_unreachable"
	ErrCodeUnauthorized = "device_unauthenticated"
	ErrCodeRejected     = "command_failed"
	ErrCodeInternal     = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeAdapterError maps an adapter error to a response.
func writeAdapterError(w http.ResponseWriter, err error) {
	var cerr *adapter.CommandError
	switch {
	case errors.Is(err, adapter.ErrNoView):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotReady, err.Error())
	case errors.Is(err, adapter.ErrUnknownProperty):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, adapter.ErrInvalidValue), errors.Is(err, adapter.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, adapter.ErrUnauthenticated):
		writeError(w, http.StatusBadGateway, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, adapter.ErrUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeUnreachable, err.Error())
	case errors.Is(err, nvx.ErrAuthFailed):
		writeError(w, http.StatusBadGateway, ErrCodeUnauthorized, err.Error())
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadGateway, ErrCodeRejected, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
