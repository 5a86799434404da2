package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/dashboard-notifications/internal/handler"
	apperrors "github.com/jwalitptl/dashboard-notifications/pkg/errors"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// AppErrors keep their status; anything else is a 500.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := GetRequestID(c)
		for _, e := range c.Errors {
			log.ZL.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(lastErr, &appErr) {
			appErr = apperrors.Internal(lastErr)
		}
		c.JSON(appErr.StatusCode(), handler.NewErrorResponse(appErr.Message))
	}
}
