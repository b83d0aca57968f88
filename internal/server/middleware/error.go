package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/pkg/api"
)

// ErrorHandler renders errors attached by handlers as RFC 9457 problem
// documents. The last attached error wins; anything that is not a
// Problem becomes an opaque 500.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if problem, ok := err.(*api.Problem); ok {
			// The internal error stays in the logs; the caller only sees
			// the problem document.
			if problem.Log != nil {
				logger.Error("request failed",
					zap.Int("status", problem.Status),
					zap.String("title", problem.Title),
					zap.String("path", c.Request.URL.Path),
					zap.Error(problem.Log))
			}

			c.JSON(problem.Status, problem)
			c.Abort()
			return
		}

		logger.Error("unhandled error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))

		c.JSON(http.StatusInternalServerError, api.NewError(
			http.StatusInternalServerError,
			"Internal Server Error",
			"An unexpected error occurred.",
		))
		c.Abort()
	}
}
