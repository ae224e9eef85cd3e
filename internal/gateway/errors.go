package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/book-expert/tts-helper/internal/api"
	"github.com/book-expert/tts-helper/internal/core"
)

// warmupRetryAfterSeconds is the hint sent with warmup_timeout errors.
const warmupRetryAfterSeconds = 5

// badRequest is a validation failure; its text is sent to the client as is.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// Validation failures.
const (
	errMissingBody  badRequest = "Missing request body"
	errBodyTooLarge badRequest = "Request body too large (max 64 KiB)"
	errInvalidJSON  badRequest = "Invalid JSON"
	errEmptyText    badRequest = "Text cannot be empty"
	errTextTooLong  badRequest = "Text too long (max 5000 characters)"
	errSpeedRange   badRequest = "Speed must be between 0.5 and 2.0"
)

const msgNotFound = "Endpoint not found"

// classify maps a generation error onto its HTTP status, wire code and
// optional retry hint.
func classify(err error) (int, string, *int) {
	switch {
	case errors.Is(err, core.ErrWarmupTimeout):
		retryAfter := warmupRetryAfterSeconds

		return http.StatusInternalServerError, api.CodeWarmupTimeout, &retryAfter
	case errors.Is(err, core.ErrProcessNotRunning):
		return http.StatusInternalServerError, api.CodeProcessNotRunning, nil
	case errors.Is(err, core.ErrGenerationFailed):
		return http.StatusInternalServerError, api.CodeGenerationFailed, nil
	case errors.Is(err, core.ErrInvalidResponse):
		return http.StatusInternalServerError, api.CodeInvalidResponse, nil
	default:
		return http.StatusInternalServerError, api.CodeInternalError, nil
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string, retryAfter *int) {
	s.writeJSON(w, status, api.ErrorResponse{
		Error:             code,
		Message:           message,
		RetryAfterSeconds: retryAfter,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(api.HeaderContentType, api.ContentTypeJSON)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.log.Warn("Failed to write JSON response: %v", err)
	}
}
