package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts and latencies.  The route template is
// used as the path label so /sessions/:session_id stays one series per
// route instead of one per session.
func Metrics(m *prometheus.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
