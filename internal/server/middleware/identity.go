package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chronoverse/chronoverse-api/internal/store"
)

// Identity resolves the three request identities used for rate limiting
// and metering: the caller-declared user id, the client IP, and the raw
// bearer token. Anything absent stays absent; downstream code treats a
// missing identity as unlimited for that dimension.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if userID := c.GetHeader("X-User-ID"); userID != "" {
			ctx = context.WithValue(ctx, store.ContextKeyUserID, userID)
		}

		if ip := c.ClientIP(); ip != "" {
			ctx = context.WithValue(ctx, store.ContextKeyClientIP, ip)
		}

		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			ctx = context.WithValue(ctx, store.ContextKeyToken, token)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserID pulls the resolved user id out of the request context.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(store.ContextKeyUserID).(string)
	return v
}

// ClientIP pulls the resolved client IP out of the request context.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(store.ContextKeyClientIP).(string)
	return v
}

// Token pulls the resolved bearer token out of the request context.
func Token(ctx context.Context) string {
	v, _ := ctx.Value(store.ContextKeyToken).(string)
	return v
}
