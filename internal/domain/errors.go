package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the report service. Handlers translate these
// into the HTTP statuses participants see.
var (
	ErrDistributionNotFound = errors.New("distribution not found")
	ErrSampleNotFound       = errors.New("sample not found")
	ErrNoSubmission         = errors.New("no scoreable submission for participant")
	ErrReferenceMissing     = errors.New("reference lab data missing")
	ErrForbidden            = errors.New("forbidden")
)

// APIError is the JSON error body returned by the HTTP layer.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates an APIError with the given code and message.
func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// WithDetails returns a copy of the error carrying extra context.
func (e *APIError) WithDetails(details string) *APIError {
	return &APIError{Code: e.Code, Message: e.Message, Details: details}
}
