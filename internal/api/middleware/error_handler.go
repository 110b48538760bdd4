// Package middleware provides the HTTP middleware of the production API:
// request IDs, error rendering, session tokens, CSRF, rate limits and
// OpenAPI validation.
package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/pkg/logger"
)

// ErrorHandler renders the last error added via c.Error() as
// {code, message, params}. A 429 also carries Retry-After.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		rid := GetRequestID(c.Request.Context())

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			fields := []zap.Field{
				zap.String("request_id", rid),
				zap.String("code", appErr.Code),
				zap.Int("status", appErr.HTTPStatus),
				zap.Error(appErr.Err),
			}
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error("Request failed", fields...)
			} else {
				logger.Warn("Request error", fields...)
			}

			if appErr.HTTPStatus == http.StatusTooManyRequests {
				if secs, ok := appErr.Params["retry_after_seconds"].(int64); ok {
					c.Header("Retry-After", strconv.FormatInt(secs, 10))
				}
			}

			body := gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			}
			if len(appErr.Params) > 0 {
				body["params"] = appErr.Params
			}
			if len(appErr.FieldErrors) > 0 {
				body["field_errors"] = appErr.FieldErrors
			}
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		logger.Error("Unhandled request error", zap.String("request_id", rid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    apperrors.CodeInternal,
			"message": "An internal error occurred",
		})
	}
}
