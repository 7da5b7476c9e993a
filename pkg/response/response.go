// Package response writes the JSON envelope shared by every REST endpoint.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
)

// Response is the envelope: data on success, error otherwise
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Meta    Meta         `json:"meta"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func write(c *gin.Context, status int, body Response) {
	body.Meta = Meta{
		Timestamp: time.Now().UTC(),
		RequestID: c.GetString("request_id"),
	}
	c.JSON(status, body)
}

// Success sends data with the given status
func Success(c *gin.Context, statusCode int, data any) {
	write(c, statusCode, Response{Success: true, Data: data})
}

// Error sends an error envelope
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	write(c, statusCode, Response{
		Error: &ErrorDetail{Code: errorCode, Message: errorMessage},
	})
}

// FromError renders err using its AppError code and status.
// Errors that are not AppErrors, and 5xx AppErrors, are logged and
// rendered with a generic message so internal detail never leaks.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
		Error(c, appErr.StatusCode, string(appErr.Code), "Internal server error")
		return
	}
	Error(c, appErr.StatusCode, string(appErr.Code), appErr.Message)
}

func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, string(apperrors.ErrCodeValidation), message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), message)
}
