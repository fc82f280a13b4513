package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// Predefined error responses for the artifact API.
var (
	ErrInvalidRequest    = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrArtifactNotFound  = New(http.StatusNotFound, "ARTIFACT_NOT_FOUND", "Requested artifact has not been produced")
	ErrNoRun             = New(http.StatusNotFound, "NO_RUN", "No completed analysis run available")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
	ErrInternalServer    = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// ToAPIError maps an engine error to an API error response.
func ToAPIError(err error) *APIError {
	var schema *SchemaError
	if errors.As(err, &schema) {
		return &APIError{
			StatusCode: http.StatusUnprocessableEntity,
			ErrorCode:  "SCHEMA_ERROR",
			Message:    schema.Error(),
			Details:    schema.Missing,
		}
	}
	var dup *DuplicateRecordError
	if errors.As(err, &dup) {
		return &APIError{
			StatusCode: http.StatusUnprocessableEntity,
			ErrorCode:  "DUPLICATE_RECORDS",
			Message:    dup.Error(),
			Details:    dup.Keys,
		}
	}
	if IsRecoverable(err) {
		return &APIError{
			StatusCode: http.StatusUnprocessableEntity,
			ErrorCode:  "PARTIAL_RESULT",
			Message:    err.Error(),
		}
	}
	return ErrInternalServer
}
