package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabels(t *testing.T) {
	r := newEngine(Metrics())
	r.GET("/api/v1/conversations", func(c *gin.Context) {
		if got := testutil.ToFloat64(httpInflight); got < 1 {
			t.Errorf("inflight during request = %v", got)
		}
		c.JSON(http.StatusOK, []string{})
	})

	okBefore := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/conversations", "200"))
	missBefore := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/conversations?username=alice", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/conversations?username=bob", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/users/carol", nil))

	if d := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/conversations", "200")) - okBefore; d != 2 {
		t.Fatalf("route counter delta = %v; want 2", d)
	}
	if d := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")) - missBefore; d != 1 {
		t.Fatalf("unmatched counter delta = %v; want 1", d)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight after requests = %v", got)
	}
	if n := testutil.CollectAndCount(httpLat); n == 0 {
		t.Fatalf("latency histogram has no series")
	}
	if n := testutil.CollectAndCount(httpRespSize); n == 0 {
		t.Fatalf("size histogram has no series")
	}
}
