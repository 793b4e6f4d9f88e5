// Package response writes JSON envelopes for the plain chi handlers that sit
// outside huma (rate limiting, unknown routes).
package response

import (
	"encoding/json/v2"
	"log/slog"
	"net/http"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// Envelope provides a consistent JSON response structure.
type Envelope struct {
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

func write(w http.ResponseWriter, status int, envelope Envelope, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.MarshalWrite(w, envelope); err != nil && logger != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	write(w, status, Envelope{Success: status < 400, Data: data}, logger)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, code errors.Code, message string, logger *slog.Logger) {
	write(w, status, Envelope{Code: string(code), Error: message}, logger)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusNotFound, errors.CodeNotFound, message, logger)
}

// TooManyRequests writes a 429 Too Many Requests response.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusTooManyRequests, errors.CodeRateLimited, message, logger)
}

// HandleError maps a domain error to its status. Anything else is a 500
// whose detail is logged, not sent.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var de *errors.Error
	if errors.As(err, &de) {
		Error(w, de.HTTPStatus(), de.Code, de.Message, logger)
		return
	}

	if logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, errors.CodeInternal, "internal server error", logger)
}
