// Package middleware holds the gin middleware shared by the HTTP API.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
)

// LoggingConfig controls the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged at all, typically the probe endpoints.
	SkipPaths []string

	// SlowThreshold promotes a request to Warn level when exceeded.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the configuration used in production.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// RequestLogging logs every request with method, path, status, duration
// and size.  5xx responses log at Error, 4xx and slow requests at Warn.
func RequestLogging(logger logging.Logger, cfg LoggingConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	log := logger.Named("http")

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", c.Writer.Size()),
			logging.String("client_ip", c.ClientIP()),
		}
		if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
			fields = append(fields, logging.String("request_id", requestID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		case cfg.SlowThreshold > 0 && duration >= cfg.SlowThreshold:
			log.Warn("request completed slowly", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
