package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/airlink-bridge/internal/accessory"
)

// Error is the body of every non-2xx response. RequestID echoes the
// X-Request-ID header so panel logs can be matched to bridge logs.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeTimeout        = "timeout"
)

// characteristicFailures maps accessory errors onto HTTP responses.
// Order matters: the first matching sentinel wins.
var characteristicFailures = []struct {
	target error
	status int
	code   string
}{
	{accessory.ErrUnknownCharacteristic, http.StatusNotFound, ErrCodeNotFound},
	{accessory.ErrHidden, http.StatusNotFound, ErrCodeNotFound},
	{accessory.ErrReadOnly, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow},
	{accessory.ErrInvalidValue, http.StatusBadRequest, ErrCodeValidation},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(headerRequestID),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCharacteristicError answers a failed characteristic read or write.
func (s *Server) writeCharacteristicError(w http.ResponseWriter, r *http.Request, err error) {
	for _, f := range characteristicFailures {
		if errors.Is(err, f.target) {
			writeError(w, f.status, f.code, err.Error())
			return
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "appliance did not answer in time")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		s.logger.Error("characteristic access failed",
			"error", err,
			"request_id", requestIDFrom(r.Context()),
		)
		writeInternalError(w, "characteristic access failed")
	}
}
