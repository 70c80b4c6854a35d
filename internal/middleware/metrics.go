package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remap-keys/remap-backend/internal/telemetry"
)

// Metrics records request count and duration per route template. The route
// template (e.g. /api/v1/commands/:name) is used instead of the raw path so
// the label cardinality stays bounded.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "<no-route>"
		}
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
