package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// RedactOptions lists what RedactingLogger masks in addition to its
// built-in rules. Names are matched case-insensitively for headers and
// exactly for query parameters.
type RedactOptions struct {
	MaskHeaders     []string
	MaskQueryParams []string
}

// scrubRule replaces every match of re with repl.
type scrubRule struct {
	re   *regexp.Regexp
	repl string
}

// Rules run in order. UUIDs go first so the loose phone pattern cannot
// match their digit groups.
var scrubRules = []scrubRule{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

func scrub(s string) string {
	for _, r := range scrubRules {
		if s == "" {
			return s
		}
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// RedactingLogger writes one access log line per request without bodies and
// with identifying values masked. It also attaches a request-scoped logger
// (see LoggerFrom) carrying the request ID and route.
//
// Authorization, Cookie and Set-Cookie headers are always masked. 5xx
// responses log at error level, 4xx at warn, the rest at info.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	headers := map[string]bool{"authorization": true, "cookie": true, "set-cookie": true}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			headers[h] = true
		}
	}
	params := make(map[string]bool, len(opts.MaskQueryParams))
	for _, p := range opts.MaskQueryParams {
		if p = strings.TrimSpace(p); p != "" {
			params[p] = true
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		lg := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", route).
			Logger()
		c.Set(ctxKeyLogger, &lg)

		query := scrub(maskQuery(c.Request.URL.RawQuery, params))
		hdrs := scrubHeaders(c.Request.Header, headers)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", scrub(c.Errors.String()))
		}
		ev.Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", hdrs).
			Msg("http_request")
	}
}

func scrubHeaders(in map[string][]string, masked map[string]bool) map[string]string {
	out := make(map[string]string, len(in))
	for k, vv := range in {
		if masked[strings.ToLower(k)] {
			out[k] = redacted
			continue
		}
		out[k] = scrub(strings.Join(vv, ", "))
	}
	return out
}

// maskQuery replaces the values of the named parameters in a raw query
// string, keeping parameter order and the other pairs untouched.
func maskQuery(raw string, names map[string]bool) string {
	if raw == "" || len(names) == 0 {
		return raw
	}
	pairs := strings.Split(raw, "&")
	for i, pair := range pairs {
		if key, _, found := strings.Cut(pair, "="); found && names[key] {
			pairs[i] = key + "=" + redacted
		}
	}
	return strings.Join(pairs, "&")
}
