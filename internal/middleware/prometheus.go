package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"learnhub-backend/pkg/metrics"
)

// unscraped paths are left out of the HTTP histograms
var unscraped = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
}

// HTTPMetrics records in-flight count, status and latency per route template.
// Unmatched paths are folded into one label value to bound cardinality.
func HTTPMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := unscraped[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// MetricsHandler exposes the registry of m for Prometheus scraping
func MetricsHandler(m *metrics.Metrics) gin.HandlerFunc {
	registry := m.GetRegistry()
	if registry == nil {
		return func(c *gin.Context) {
			c.AbortWithStatus(http.StatusServiceUnavailable)
		}
	}
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
