package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Details    any    `json:"details,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, ErrorResponse{
		Error:      code,
		Message:    message,
		StatusCode: status,
	})
}

// RespondAppError classifies err and writes the matching envelope. Internal
// causes are logged, never echoed.
func RespondAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae := apperr.From(err)
	status := ae.Kind.StatusCode()
	if status >= 500 {
		logger.Error("request failed", "error", err)
	}
	Respond(w, status, ErrorResponse{
		Error:      ae.Kind.Code(),
		Message:    ae.Message,
		StatusCode: status,
		Details:    ae.Details,
	})
}
