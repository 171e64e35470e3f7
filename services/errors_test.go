package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-rules-admin/models"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
	assert.Zero(t, domainErr.StatusCode)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNetwork,
				Message: "network failure",
				Err:     errors.New("connection refused"),
			},
			wantMsg: "network: network failure (connection refused)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeServer, "server error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same error type", NewDomainError(ErrorTypeNotFound, "gone", nil), ErrRuleNotFound, true},
		{"wrapped same type", fmt.Errorf("get: %w", ErrVersionNotFound), ErrRuleNotFound, true},
		{"different error type", NewDomainError(ErrorTypeValidation, "bad", nil), ErrRuleNotFound, false},
		{"not a domain error target", ErrRuleNotFound, errors.New("regular error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetailAndFields(t *testing.T) {
	err := NewValidationError("validation failed", []models.FieldMessage{{Field: "name", Message: "name is required"}})
	err.WithDetail("rule_id", "r-1")

	assert.True(t, IsValidationError(err))
	assert.Equal(t, "r-1", GetErrorDetails(err)["rule_id"])
	require.Len(t, GetFieldErrors(err), 1)
	assert.Equal(t, "name", GetFieldErrors(err)[0].Field)
	assert.Nil(t, GetFieldErrors(errors.New("plain")))
}

func TestTypeHelpers(t *testing.T) {
	helpers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:     IsNotFoundError,
		ErrorTypeValidation:   IsValidationError,
		ErrorTypeConflict:     IsConflictError,
		ErrorTypeUnauthorized: IsUnauthorizedError,
		ErrorTypeForbidden:    IsForbiddenError,
		ErrorTypeRateLimit:    IsRateLimitError,
		ErrorTypeNetwork:      IsNetworkError,
		ErrorTypeServer:       IsServerError,
		ErrorTypeAborted:      IsAbortedError,
		ErrorTypeUnexpected:   IsUnexpectedError,
	}

	for typ, is := range helpers {
		t.Run(string(typ), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewDomainError(typ, "x", nil))
			assert.True(t, is(err))
			assert.Equal(t, typ, GetErrorType(err))

			for other, otherIs := range helpers {
				if other != typ {
					assert.False(t, otherIs(err), "%s matched %s", typ, other)
				}
			}
			assert.False(t, is(errors.New("regular")))
			assert.False(t, is(nil))
		})
	}
}

func TestErrorTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusBadRequest, ErrorTypeValidation},
		{http.StatusUnprocessableEntity, ErrorTypeValidation},
		{http.StatusUnauthorized, ErrorTypeUnauthorized},
		{http.StatusForbidden, ErrorTypeForbidden},
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusConflict, ErrorTypeConflict},
		{http.StatusPreconditionFailed, ErrorTypeConflict},
		{http.StatusTooManyRequests, ErrorTypeRateLimit},
		{http.StatusInternalServerError, ErrorTypeServer},
		{http.StatusBadGateway, ErrorTypeServer},
		{http.StatusServiceUnavailable, ErrorTypeServer},
		{http.StatusTeapot, ErrorTypeUnexpected},
		{http.StatusMovedPermanently, ErrorTypeUnexpected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorTypeForStatus(tt.status))
		})
	}
}

func TestStatusForErrorType_RoundTrips(t *testing.T) {
	for _, typ := range []ErrorType{
		ErrorTypeNotFound, ErrorTypeValidation, ErrorTypeConflict,
		ErrorTypeUnauthorized, ErrorTypeForbidden, ErrorTypeRateLimit, ErrorTypeServer,
	} {
		assert.Equal(t, typ, ErrorTypeForStatus(StatusForErrorType(typ)), typ)
	}
}

func TestFromStatus(t *testing.T) {
	body := &models.ErrorBody{
		Code:        "VALIDATION_ERROR",
		Message:     "Rule is invalid",
		Details:     map[string]any{"rule": "r-1"},
		FieldErrors: []models.FieldMessage{{Field: "conditions.max_tokens", Message: "must be positive"}},
	}

	err := FromStatus(http.StatusBadRequest, body)
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	assert.Equal(t, "Rule is invalid", err.Message)
	assert.Equal(t, "r-1", err.Details["rule"])
	assert.Equal(t, body.FieldErrors, err.FieldErrors)

	bare := FromStatus(http.StatusServiceUnavailable, nil)
	assert.Equal(t, ErrorTypeServer, bare.Type)
	assert.Equal(t, "Service Unavailable", bare.Message)
}

func TestFromTransport(t *testing.T) {
	t.Run("cancellation is aborted", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := FromTransport(ctx, fmt.Errorf("do: %w", context.Canceled))
		assert.True(t, IsAbortedError(err))
		assert.False(t, IsNetworkError(err))
	})

	t.Run("deadline is a network failure", func(t *testing.T) {
		err := FromTransport(context.Background(), context.DeadlineExceeded)
		assert.True(t, IsNetworkError(err))
		assert.Equal(t, true, err.Details["timeout"])
	})

	t.Run("connection errors are network failures", func(t *testing.T) {
		err := FromTransport(context.Background(), errors.New("dial tcp: connection refused"))
		assert.True(t, IsNetworkError(err))
		assert.Nil(t, err.Details["timeout"])
	})
}

func TestToErrorBody(t *testing.T) {
	body := ToErrorBody(fmt.Errorf("update: %w", ErrVersionConflict))
	assert.Equal(t, "conflict", body.Code)
	assert.Equal(t, "rule was modified concurrently", body.Message)
	assert.Nil(t, body.Details)

	plain := ToErrorBody(errors.New("boom"))
	assert.Equal(t, "server", plain.Code)
	assert.NotContains(t, plain.Message, "boom")
}
