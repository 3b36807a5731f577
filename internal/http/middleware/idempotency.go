package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a client retry POST /messages without relaying
// the message twice.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderUserID carries the caller identity when no upstream authentication
// has stored one in the context.
const HeaderUserID = "X-User-ID"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions constrains accepted keys. Expiry is the lookup's job.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 selects 200
	Pattern *regexp.Regexp // nil selects ^[A-Za-z0-9._~\-:]+$
}

// IdempotencyLookup reports whether a live result exists for (userID, key).
// Errors are treated as "no replay".
type IdempotencyLookup func(ctx context.Context, userID, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header and stores it for
// the handler. Requests without the header pass through untouched; a
// malformed key is rejected with 400. When lookup finds a stored result the
// request is flagged as a replay and exempted from rate limiting, since
// serving it relays nothing.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if found, err := lookup(c.Request.Context(), UserID(c), key, time.Now().UTC()); err == nil && found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetString(ctxKeyIdemKey)
	return key, key != ""
}

// IsReplay reports whether a stored result exists for this request's key.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// UserID returns the caller identity: the context value set by upstream
// authentication, else X-User-ID, else "anonymous". Idempotency keys and
// rate-limit buckets are scoped by it.
func UserID(c *gin.Context) string {
	if s := c.GetString(ctxKeyUserID); s != "" {
		return s
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return "anonymous"
}
