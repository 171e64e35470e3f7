package handlers

import (
	"net/http"

	"github.com/upb/tenant-rules-admin/services"
	"github.com/upb/tenant-rules-admin/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	errType := services.GetErrorType(err)
	status := services.StatusForErrorType(errType)
	body := services.ToErrorBody(err)

	if status >= http.StatusInternalServerError {
		// Log internal errors but return generic message
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(errType)))
		body.Message = "An internal error occurred"
		body.Details = nil
	} else {
		logger.Debug("handled service error",
			zap.String("type", string(errType)),
			zap.String("message", body.Message),
			zap.Any("details", body.Details))
	}

	if werr := utils.WriteError(w, status, body); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		if werr := utils.WriteBadRequest(w, "Validation failed", utils.GetValidationFields(err)); werr != nil {
			logger.Error("failed to write validation error response", zap.Error(werr))
		}
		return
	}

	// Generic validation error
	if werr := utils.WriteBadRequest(w, err.Error(), nil); werr != nil {
		logger.Error("failed to write validation error response", zap.Error(werr))
	}
}
