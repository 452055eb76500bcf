// Package http assembles the gin route tree and the server around it.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/prometheus"
	"github.com/stratlens/stratlens/internal/interfaces/http/handlers"
	"github.com/stratlens/stratlens/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware dependencies of
// the full route tree.  Nil optional entries disable their routes.
type RouterConfig struct {
	ResultsHandler *handlers.ResultsHandler
	HealthHandler  *handlers.HealthHandler

	CORS    *middleware.CORSConfig
	Logging *middleware.LoggingConfig

	Logger  logging.Logger
	Metrics *prometheus.Metrics
}

// NewRouter builds the complete route tree: probe endpoints at the
// root, the metrics endpoint, and the versioned API group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := middleware.DefaultCORSConfig()
	if cfg.CORS != nil {
		corsCfg = *cfg.CORS
	}
	r.Use(middleware.CORS(corsCfg))

	logCfg := middleware.DefaultLoggingConfig()
	if cfg.Logging != nil {
		logCfg = *cfg.Logging
	}
	r.Use(middleware.RequestLogging(log, logCfg))

	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}

	api := r.Group("/api/v1")
	if cfg.ResultsHandler != nil {
		cfg.ResultsHandler.RegisterRoutes(api)
	}
	return r
}
