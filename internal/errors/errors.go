// Package errors provides the JSON error responses of the monitoring API.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/reelplay/internal/logger"
)

// APIError represents a structured error with HTTP context
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	Cause      error          `json:"-"`
	HTTPStatus int            `json:"-"`
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// ToGinResponse sends the error as a standardized JSON response
func (e *APIError) ToGinResponse(c *gin.Context) {
	statusCode := e.HTTPStatus
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	response := gin.H{
		"error": e.Message,
		"code":  e.Code,
	}
	if len(e.Context) > 0 {
		response["details"] = e.Context
	}

	log := logger.Default().Named("api")
	args := []any{
		"status", statusCode,
		"code", e.Code,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	}
	if e.Cause != nil {
		args = append(args, "error", e.Cause)
	}
	if statusCode >= http.StatusInternalServerError {
		log.Error("HTTP error response", args...)
	} else {
		log.Debug("HTTP error response", args...)
	}

	c.AbortWithStatusJSON(statusCode, response)
}

func NewValidationError(message string, field string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]any{"field": field},
	}
}

func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]any{"resource": resource, "id": id},
	}
}

// NewUnavailableError reports a component that is disabled or not running.
func NewUnavailableError(component string) *APIError {
	return &APIError{
		Code:       "UNAVAILABLE",
		Message:    component + " is not available",
		HTTPStatus: http.StatusServiceUnavailable,
		Context:    map[string]any{"component": component},
	}
}

func NewInternalError(message string, cause error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewDatabaseError(operation string, cause error) *APIError {
	return &APIError{
		Code:       "DATABASE_ERROR",
		Message:    "Database operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]any{"operation": operation},
		Cause:      cause,
	}
}

// HTTP helpers

func HandleValidationError(c *gin.Context, message string, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

func HandleNotFound(c *gin.Context, resource string, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}

func HandleUnavailable(c *gin.Context, component string) {
	NewUnavailableError(component).ToGinResponse(c)
}

func HandleInternalError(c *gin.Context, message string, err error) {
	NewInternalError(message, err).ToGinResponse(c)
}

func HandleDatabaseError(c *gin.Context, operation string, err error) {
	NewDatabaseError(operation, err).ToGinResponse(c)
}
