package handlers

import (
	"net/http"

	"github.com/upb/llm-blackbox/services"
	"github.com/upb/llm-blackbox/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Only the domain message is written; wrapped causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.PublicMessage(err)
	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsModelTimeoutError(err):
		writeErr = utils.WriteGatewayTimeout(w, message, details)

	case services.IsModelQuotaError(err):
		writeErr = utils.WriteTooManyRequests(w, message, details)

	case services.IsUnavailableError(err):
		writeErr = utils.WriteServiceUnavailable(w, message, details)

	case services.IsModelError(err):
		writeErr = utils.WriteBadGateway(w, message, details)

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, message)

	default:
		// Unknown error type - log and return internal error
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, services.ErrInternal.Message)
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	HandleServiceError(w, services.ErrInvalidInput, logger)
}
