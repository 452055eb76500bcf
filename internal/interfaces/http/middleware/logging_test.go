package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
)

func newLoggingRouter(log logging.Logger, cfg LoggingConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogging(log, cfg))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/boom", func(c *gin.Context) { c.String(http.StatusInternalServerError, "boom") })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequestLoggingFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newLoggingRouter(logging.NewLoggerFromCore(core), DefaultLoggingConfig())

	req := httptest.NewRequest(http.MethodGet, "/ok?verbose=1", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/ok?verbose=1", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Equal(t, "req-42", fields["request_id"])
}

func TestRequestLoggingServerErrorLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newLoggingRouter(logging.NewLoggerFromCore(core), DefaultLoggingConfig())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestRequestLoggingSkipsProbePaths(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newLoggingRouter(logging.NewLoggerFromCore(core), DefaultLoggingConfig())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, 0, logs.Len())
}
