package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
	"github.com/upb/tenant-rules-admin/utils"
	"go.uber.org/zap"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorBody {
	t.Helper()
	var env models.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env.Error
}

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "rule not found",
			err:            services.NewRuleNotFound("rule-1"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   "not_found",
		},
		{
			name:           "validation error",
			err:            services.ErrInvalidInput,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation",
		},
		{
			name:           "conflict error",
			err:            services.ErrVersionConflict,
			expectedStatus: http.StatusConflict,
			expectedCode:   "conflict",
		},
		{
			name:           "unauthorized error",
			err:            services.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "unauthorized",
		},
		{
			name:           "forbidden error",
			err:            services.ErrForbidden,
			expectedStatus: http.StatusForbidden,
			expectedCode:   "forbidden",
		},
		{
			name:           "rate limit error",
			err:            services.ErrRateLimited,
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   "rate_limit",
		},
		{
			name:           "server error",
			err:            services.WrapServer("store failed", errors.New("disk full")),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "server",
		},
		{
			name:           "plain error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.expectedCode, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHandleServiceErrorCarriesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.NewVersionNotFound("rule-1", 7), zap.NewNop())

	body := decodeError(t, w)
	assert.Equal(t, "Version not found", body.Message)
	assert.Equal(t, "rule-1", body.Details["rule_id"])
	assert.EqualValues(t, 7, body.Details["version"])
}

func TestHandleServiceErrorFieldErrors(t *testing.T) {
	fields := []models.FieldMessage{{Field: "conditions.max_tokens", Message: "max_tokens must be greater than 0"}}

	w := httptest.NewRecorder()
	HandleServiceError(w, services.NewValidationError("rule failed validation", fields), zap.NewNop())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, fields, body.FieldErrors)
}

func TestHandleServiceErrorHidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.WrapServer("secret dsn leaked", errors.New("x")), zap.NewNop())

	body := decodeError(t, w)
	assert.Equal(t, "An internal error occurred", body.Message)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestHandleServiceErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, nil, zap.NewNop())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("struct validation", func(t *testing.T) {
		err := utils.ValidateStruct(&models.StatusRequest{})
		require.Error(t, err)

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		require.Len(t, body.FieldErrors, 1)
		assert.Equal(t, "enabled", body.FieldErrors[0].Field)
	})

	t.Run("generic error", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleValidationError(w, errors.New("version must be a positive integer"), logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "version must be a positive integer", decodeError(t, w).Message)
	})
}
