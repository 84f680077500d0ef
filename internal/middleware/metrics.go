package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acadhub/projhub-api/internal/service"
)

// Metrics records per-request latency and status counters. Unmatched routes
// are observed under the raw URL path so 404 noise stays visible.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
