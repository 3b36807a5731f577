package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions selects the optional headers of SecurityHeaders.
//
// HSTS is only sent on HTTPS requests, detected directly or through
// X-Forwarded-Proto. NoStore should stay on for the relay: inbox and audit
// responses carry message content.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration // <= 0 selects 180 days
	NoStore      bool
	EnablePolicy bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

// SecurityHeaders sets the hardening headers for a JSON API. No CSP is sent;
// the relay serves no HTML outside the optional Swagger UI.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	age := opt.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(age.Seconds())) + "; includeSubDomains; preload"

	fixed := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		fixed = append(fixed,
			[2]string{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			[2]string{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if opt.NoStore {
		fixed = append(fixed,
			[2]string{"Cache-Control", "no-store"},
			[2]string{"Pragma", "no-cache"},
			[2]string{"Expires", "0"},
		)
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range fixed {
			h.Set(kv[0], kv[1])
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(HeaderRequestID) != "" {
			exposeHeader(h, HeaderRequestID)
		}
		c.Next()
	}
}

// exposeHeader adds name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
