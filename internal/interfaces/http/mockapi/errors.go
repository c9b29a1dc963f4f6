package mockapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the "error" field of error bodies
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeUnsupported  = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

func abortValidation(c *gin.Context, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   ErrCodeValidation,
		Message: "Validation failed",
		Errors:  fields,
	})
}

func notFound(c *gin.Context, entity string) {
	abortError(c, http.StatusNotFound, ErrCodeNotFound, entity+" not found")
}
