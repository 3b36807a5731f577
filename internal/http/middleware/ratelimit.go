package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-relay/internal/ratelimit"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by caller identity (context value or X-User-ID)
// and falls back to the client IP. The prefixes keep the two namespaces
// apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if s := c.GetString(ctxKeyUserID); s != "" {
			return "user:" + s
		}
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return "user:" + h
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter is the HTTP front of internal/ratelimit. It is edge abuse
// control, not authorization.
type RateLimiter struct {
	buckets *ratelimit.Buckets
	keyFn   keyFunc
}

// NewRateLimiter refills rps tokens per second up to burst for each key.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{buckets: ratelimit.New(rps, burst), keyFn: keyFn}
}

// IsRateBypass reports whether IdempotencyValidator exempted the request.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler rejects requests over the limit with 429, Retry-After: 1 and the
// standard error envelope (code "rate_limited").
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || rl.buckets.Allow(rl.keyFn(c)) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
