package gateway

import (
	"errors"
	"fmt"
)

// Common errors for gateway operations.
var (
	// ErrMissingCredential indicates no API key is configured. Raised at
	// client construction, before any network attempt.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrEmptyResponse indicates the service returned no usable content.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrSchemaViolation indicates the returned content does not parse
	// against the expected structured shape.
	ErrSchemaViolation = errors.New("response does not match expected schema")
)

// ServiceError represents a transport or API-level failure from the remote
// service.
type ServiceError struct {
	StatusCode int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("service error: %s", e.Message)
	}
	return fmt.Sprintf("service error (code %d, status %s): %s", e.StatusCode, e.Status, e.Message)
}

// IsAuthError returns true if the error is authentication-related.
func (e *ServiceError) IsAuthError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// RefusalError indicates the service declined to produce audio and returned
// explanatory text instead. The refusal text is surfaced to the user.
type RefusalError struct {
	Text string
}

// Error implements the error interface.
func (e *RefusalError) Error() string {
	return fmt.Sprintf("synthesis refused: %s", e.Text)
}

// IncompleteError indicates the service stopped without producing audio or
// refusal text. FinishReason carries the raw reason code from the service.
type IncompleteError struct {
	FinishReason string
}

// Error implements the error interface.
func (e *IncompleteError) Error() string {
	return fmt.Sprintf("synthesis incomplete (finish reason: %s)", e.FinishReason)
}
