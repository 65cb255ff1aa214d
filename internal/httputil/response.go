// Package httputil writes JSON error responses for the envelope API.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

// retryAfterSeconds is advertised on 503 responses while the key service is unavailable.
const retryAfterSeconds = "1"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// errorCategory maps an error category to its response. An empty message means the
// wrapped error text is safe to return to the caller.
type errorCategory struct {
	target  error
	status  int
	code    string
	message string
}

// Checked in order. Unprocessable errors get a fixed message so integrity failures reveal
// nothing about the payload.
var errorCategories = []errorCategory{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found", "The requested resource was not found"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict", "A conflict occurred with existing data"},
	{apperrors.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_input", ""},
	{apperrors.ErrUnprocessable, http.StatusUnprocessableEntity, "unprocessable", "The payload could not be processed"},
	{apperrors.ErrUnavailable, http.StatusServiceUnavailable, "unavailable", "A required dependency is unavailable, retry later"},
}

var internalError = errorCategory{
	status:  http.StatusInternalServerError,
	code:    "internal_error",
	message: "An internal error occurred",
}

func categorize(err error) errorCategory {
	for _, category := range errorCategories {
		if apperrors.Is(err, category.target) {
			return category
		}
	}
	return internalError
}

// HandleErrorGin maps a domain error to its status code and writes the JSON response.
// The full error chain is logged; only invalid input text is echoed to the caller.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	category := categorize(err)
	message := category.message
	if message == "" {
		message = err.Error()
	}

	if category.status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}

	level := slog.LevelWarn
	if category.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	writeError(c, logger, level, "request failed", category.status, category.code, message, err)
}

// HandleBadRequestGin writes a 400 for a body or parameter that could not be decoded.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	writeError(c, logger, slog.LevelWarn, "bad request", http.StatusBadRequest, "bad_request", err.Error(), err)
}

// HandleValidationErrorGin writes a 422 for a request that decoded but failed validation.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	writeError(
		c, logger, slog.LevelWarn, "validation failed",
		http.StatusUnprocessableEntity, "validation_error", err.Error(), err,
	)
}

func writeError(
	c *gin.Context,
	logger *slog.Logger,
	level slog.Level,
	msg string,
	status int,
	code, message string,
	err error,
) {
	requestID := requestid.Get(c)

	if logger != nil {
		logger.Log(c.Request.Context(), level, msg,
			slog.Int("status_code", status),
			slog.String("error_code", code),
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
	}

	c.JSON(status, ErrorResponse{Error: code, Message: message, RequestID: requestID})
}
