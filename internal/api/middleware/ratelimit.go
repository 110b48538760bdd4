package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/ratelimit"
)

// RateRule is a fixed window: at most Max hits per Window.
type RateRule struct {
	Max    int
	Window time.Duration
}

// RateLimitByIP limits every request by client address.
func RateLimitByIP(limiter *ratelimit.Limiter, rule RateRule) gin.HandlerFunc {
	return rateLimit(limiter, rule, func(c *gin.Context) string {
		return ratelimit.Key("ip", c.ClientIP())
	})
}

// RateLimitByUser limits one feature per authenticated user. Must run
// after JWTAuth.
func RateLimitByUser(limiter *ratelimit.Limiter, feature string, rule RateRule) gin.HandlerFunc {
	return rateLimit(limiter, rule, func(c *gin.Context) string {
		uid := GetUserID(c.Request.Context())
		if uid == "" {
			return ""
		}
		return ratelimit.Key("user", uid, feature)
	})
}

func rateLimit(limiter *ratelimit.Limiter, rule RateRule, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if limiter == nil || k == "" || rule.Max <= 0 {
			c.Next()
			return
		}
		d := limiter.Check(c.Request.Context(), k, rule.Max, rule.Window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			abort(c, apperrors.ErrRateLimitedf(d.RetryAfter))
			return
		}
		c.Next()
	}
}
