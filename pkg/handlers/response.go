package handlers

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/logging"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// ValidationErrorBody is the 400 body for rejected input.
type ValidationErrorBody struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Errors  []apperrors.FieldError `json:"errors"`
}

// ValidationErrorResponse writes a 400 listing every invalid field.
func ValidationErrorResponse(w http.ResponseWriter, fields []apperrors.FieldError) error {
	if fields == nil {
		fields = []apperrors.FieldError{}
	}
	return WriteJSON(w, http.StatusBadRequest, ValidationErrorBody{
		Error:   "validation_failed",
		Message: "Validation failed",
		Errors:  fields,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// MessageResponse is the body of delete responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeServiceError maps service errors onto HTTP responses. notFoundMsg is
// used when the resource addressed by the request is missing. Unexpected
// errors are logged with driver detail sanitized and reported generically.
func writeServiceError(w http.ResponseWriter, err error, notFoundMsg string, logger *zap.Logger) {
	var (
		validationErr *apperrors.ValidationError
		unsupported   *apperrors.UnsupportedTypeError
		missingConn   *apperrors.ConnectionNotFoundError
		status        int
		code, message string
	)

	switch {
	case errors.As(err, &validationErr):
		if err := ValidationErrorResponse(w, validationErr.Fields); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	case errors.As(err, &unsupported):
		status, code, message = http.StatusBadRequest, "unsupported_type", "Unsupported connection type"
	case errors.As(err, &missingConn):
		status, code, message = http.StatusNotFound, "not_found", "Connection not found"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", notFoundMsg
	case errors.Is(err, apperrors.ErrExecution):
		logger.Warn("Execution failed", zap.String("error", logging.SanitizeError(err)))
		status, code, message = http.StatusBadGateway, "execution_failed", "Failed to execute query against the data source"
	default:
		logger.Error("Request failed", zap.String("error", logging.SanitizeError(err)))
		status, code, message = http.StatusInternalServerError, "internal_error", "Internal server error"
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
