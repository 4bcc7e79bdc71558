package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-sonos/internal/adapter"
	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
)

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnreachable  = "device_unreachable"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeSpeakerError maps registry and speaker errors to a status:
// unknown device, property or action 404; capability and precondition
// 409; invalid value or input 400; device failures 502.
func writeSpeakerError(w http.ResponseWriter, err error) {
	var (
		capErr  *speaker.CapabilityError
		condErr *speaker.PreconditionError
	)
	switch {
	case errors.Is(err, adapter.ErrUnknownDevice),
		errors.Is(err, speaker.ErrUnknownProperty),
		errors.Is(err, speaker.ErrUnknownAction):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.As(err, &capErr), errors.As(err, &condErr):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, speaker.ErrInvalidValue), errors.Is(err, speaker.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case speaker.IsRemoteFailure(err), errors.Is(err, speaker.ErrDisconnected):
		writeError(w, http.StatusBadGateway, ErrCodeUnreachable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
