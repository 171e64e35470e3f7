package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/upb/tenant-rules-admin/models"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeServer       ErrorType = "server"
	ErrorTypeAborted      ErrorType = "aborted"
	ErrorTypeUnexpected   ErrorType = "unexpected"
)

// DomainError represents a structured error with additional context.
// StatusCode is the HTTP status that produced it, or 0 for local and
// transport failures.
type DomainError struct {
	Type        ErrorType
	Message     string
	Err         error
	Details     map[string]interface{}
	StatusCode  int
	Code        string
	FieldErrors []models.FieldMessage
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithFieldErrors attaches field-level validation messages
func (e *DomainError) WithFieldErrors(fields []models.FieldMessage) *DomainError {
	e.FieldErrors = append(e.FieldErrors, fields...)
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is comparisons. They match any DomainError of the
// same type; never mutate them.
var (
	ErrRuleNotFound    = NewDomainError(ErrorTypeNotFound, "rule not found", nil)
	ErrVersionNotFound = NewDomainError(ErrorTypeNotFound, "Version not found", nil)

	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	ErrVersionConflict = NewDomainError(ErrorTypeConflict, "rule was modified concurrently", nil)
	ErrDuplicateName   = NewDomainError(ErrorTypeConflict, "a rule with this name already exists", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	ErrForbidden      = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrTenantMismatch = NewDomainError(ErrorTypeForbidden, "tenant mismatch", nil)

	ErrRateLimited = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrNetwork     = NewDomainError(ErrorTypeNetwork, "network failure", nil)
	ErrServer      = NewDomainError(ErrorTypeServer, "server failure", nil)
	ErrAborted     = NewDomainError(ErrorTypeAborted, "request aborted", nil)
	ErrUnexpected  = NewDomainError(ErrorTypeUnexpected, "unexpected response", nil)
)

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool { return hasType(err, ErrorTypeRateLimit) }

// IsNetworkError checks if an error is a transport failure
func IsNetworkError(err error) bool { return hasType(err, ErrorTypeNetwork) }

// IsServerError checks if an error is a backend failure
func IsServerError(err error) bool { return hasType(err, ErrorTypeServer) }

// IsAbortedError checks if the operation was cancelled by the caller
func IsAbortedError(err error) bool { return hasType(err, ErrorTypeAborted) }

// IsUnexpectedError checks if an error is an unmapped response
func IsUnexpectedError(err error) bool { return hasType(err, ErrorTypeUnexpected) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetFieldErrors returns the field errors of a validation error
func GetFieldErrors(err error) []models.FieldMessage {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.FieldErrors
	}
	return nil
}

// WrapServer wraps an error as a server failure
func WrapServer(message string, err error) error {
	return NewDomainError(ErrorTypeServer, message, err)
}

// NewRuleNotFound returns a not-found error for one rule
func NewRuleNotFound(ruleID string) *DomainError {
	return NewDomainError(ErrorTypeNotFound, ErrRuleNotFound.Message, nil).WithDetail("rule_id", ruleID)
}

// NewVersionNotFound returns a not-found error for one rule version
func NewVersionNotFound(ruleID string, version int) *DomainError {
	return NewDomainError(ErrorTypeNotFound, ErrVersionNotFound.Message, nil).
		WithDetail("rule_id", ruleID).
		WithDetail("version", version)
}

// NewValidationError builds a validation error carrying field messages
func NewValidationError(message string, fields []models.FieldMessage) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil).WithFieldErrors(fields)
}

// ErrorTypeForStatus maps an HTTP status to the error taxonomy
func ErrorTypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case status == http.StatusUnauthorized:
		return ErrorTypeUnauthorized
	case status == http.StatusForbidden:
		return ErrorTypeForbidden
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return ErrorTypeConflict
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status >= http.StatusInternalServerError:
		return ErrorTypeServer
	default:
		return ErrorTypeUnexpected
	}
}

// StatusForErrorType is the inverse of ErrorTypeForStatus for server responses
func StatusForErrorType(t ErrorType) int {
	switch t {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus builds the domain error for a non-2xx response
func FromStatus(status int, body *models.ErrorBody) *DomainError {
	errType := ErrorTypeForStatus(status)
	message := http.StatusText(status)
	if body != nil && body.Message != "" {
		message = body.Message
	}
	if message == "" {
		message = fmt.Sprintf("status %d", status)
	}

	e := NewDomainError(errType, message, nil)
	e.StatusCode = status
	if body != nil {
		e.Code = body.Code
		for k, v := range body.Details {
			e.Details[k] = v
		}
		e.FieldErrors = body.FieldErrors
	}
	return e
}

// FromTransport classifies a failure that happened before any response
// arrived. Cancellation is reported as aborted, never as a network failure.
func FromTransport(ctx context.Context, err error) *DomainError {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return NewDomainError(ErrorTypeAborted, "request aborted", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewDomainError(ErrorTypeNetwork, "request timed out", err).WithDetail("timeout", true)
	default:
		return NewDomainError(ErrorTypeNetwork, "network failure", err)
	}
}

// ToErrorBody renders an error for the wire
func ToErrorBody(err error) models.ErrorBody {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return models.ErrorBody{Code: string(ErrorTypeServer), Message: "An unexpected error occurred"}
	}

	body := models.ErrorBody{
		Code:        domainErr.Code,
		Message:     domainErr.Message,
		FieldErrors: domainErr.FieldErrors,
	}
	if body.Code == "" {
		body.Code = string(domainErr.Type)
	}
	if len(domainErr.Details) > 0 {
		body.Details = domainErr.Details
	}
	return body
}
