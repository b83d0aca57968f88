package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chronoverse/chronoverse-api/internal/ratelimit"
	"github.com/chronoverse/chronoverse-api/pkg/api"
)

// RateLimiter manages per-client token buckets for the global ingress guard.
type RateLimiter struct {
	clients map[string]*rate.Limiter
	mu      sync.RWMutex
	rps     rate.Limit
	burst   int
	logger  *zap.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
	}
}

// getLimiter returns a rate limiter for the given client IP.
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.clients[ip]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = rl.clients[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rps, rl.burst)
	rl.clients[ip] = limiter

	return limiter
}

// Middleware returns the Gin middleware handler.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.getLimiter(ip)

		if !limiter.Allow() {
			rl.logger.Warn("Global rate limit exceeded",
				zap.String("ip", ip),
				zap.String("path", c.Request.URL.Path),
			)
			problem := api.RateLimitError("server_overloaded", 1)
			c.AbortWithStatusJSON(problem.Status, problem)
			return
		}

		c.Next()
	}
}

// PerIdentity enforces the minute-window caps. Checked cheapest-identity
// first: IP, then user, then token.
func PerIdentity(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		checks := []struct {
			kind   ratelimit.Kind
			value  string
			reason string
		}{
			{ratelimit.KindIP, ClientIP(ctx), "ip_minute_cap"},
			{ratelimit.KindUser, UserID(ctx), "user_minute_cap"},
			{ratelimit.KindToken, Token(ctx), "token_minute_cap"},
		}

		for _, check := range checks {
			if !limiter.Allow(ctx, check.kind, check.value) {
				problem := api.RateLimitError(check.reason, 60)
				c.AbortWithStatusJSON(problem.Status, problem)
				return
			}
		}

		c.Next()
	}
}
