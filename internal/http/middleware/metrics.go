package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP collectors. The path label is the matched route template, never the
// raw URL, so usernames in /messages?username= cannot blow up cardinality.
var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "HTTP requests currently being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response body size by method and route.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
	}, []string{"method", "path"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize)
}

// unmatchedRoute labels requests that hit no route.
const unmatchedRoute = "unmatched"

// Metrics records count, latency, in-flight and response size per request.
// Upgraded WebSocket requests are counted once, with the latency of the
// whole session.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		start := time.Now()
		defer func() {
			httpInflight.Dec()
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			m := c.Request.Method
			httpReqs.WithLabelValues(m, route, strconv.Itoa(c.Writer.Status())).Inc()
			httpLat.WithLabelValues(m, route).Observe(time.Since(start).Seconds())
			if n := c.Writer.Size(); n >= 0 {
				httpRespSize.WithLabelValues(m, route).Observe(float64(n))
			}
		}()
		c.Next()
	}
}
