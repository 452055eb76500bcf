package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	appresults "github.com/stratlens/stratlens/internal/application/results"
	domain "github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// GenerationTrigger starts a generation run.  The API server backs it
// with the event producer; tests and the worker use the orchestrator
// directly.
type GenerationTrigger interface {
	RequestGeneration(ctx context.Context, sessionID common.SessionID, topic string, force bool) error
}

// ResultsReader is the read-side surface the handler needs.  It is
// satisfied by the application reader.
type ResultsReader interface {
	Status(ctx context.Context, sessionID common.SessionID) (*domain.GenerationStatus, error)
	SegmentBundle(ctx context.Context, sessionID common.SessionID, segment domain.Segment) (*domain.SegmentBundle, error)
	SessionBundles(ctx context.Context, sessionID common.SessionID) ([]domain.SegmentBundle, error)
	Clear(ctx context.Context, sessionID common.SessionID) error
}

var _ ResultsReader = (*appresults.Reader)(nil)

// ResultsHandler serves the results resource of a session.
type ResultsHandler struct {
	reader  ResultsReader
	trigger GenerationTrigger
	logger  logging.Logger
}

// NewResultsHandler builds the handler.
func NewResultsHandler(reader ResultsReader, trigger GenerationTrigger, log logging.Logger) *ResultsHandler {
	if log == nil {
		log = logging.Default()
	}
	return &ResultsHandler{reader: reader, trigger: trigger, logger: log.Named("results_handler")}
}

// RegisterRoutes mounts the results endpoints under the given group.
func (h *ResultsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions/:session_id")
	sessions.POST("/results/generate", h.Generate)
	sessions.GET("/results/status", h.Status)
	sessions.GET("/results", h.List)
	sessions.GET("/results/segments/:segment", h.Segment)
	sessions.DELETE("/results", h.Clear)
}

// GenerateRequest is the POST body for a generation request.
type GenerateRequest struct {
	Topic string `json:"topic"`
	Force bool   `json:"force"`
}

// GenerateResponse acknowledges an accepted generation request.
type GenerateResponse struct {
	SessionID common.SessionID `json:"session_id"`
	Status    string           `json:"status"`
}

// Generate handles POST /sessions/:session_id/results/generate.  The
// run executes asynchronously; 202 means the request was queued, not
// that results exist yet.
func (h *ResultsHandler) Generate(c *gin.Context) {
	sessionID := common.SessionID(c.Param("session_id"))

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidation("invalid request body: "+err.Error()))
		return
	}
	if req.Topic == "" {
		respondError(c, errors.NewValidation("topic must not be empty"))
		return
	}

	if err := h.trigger.RequestGeneration(c.Request.Context(), sessionID, req.Topic, req.Force); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenerateResponse{SessionID: sessionID, Status: "accepted"})
}

// Status handles GET /sessions/:session_id/results/status.
func (h *ResultsHandler) Status(c *gin.Context) {
	sessionID := common.SessionID(c.Param("session_id"))
	status, err := h.reader.Status(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SessionResultsResponse wraps the full bundle set of a session.
type SessionResultsResponse struct {
	SessionID common.SessionID       `json:"session_id"`
	Segments  []domain.SegmentBundle `json:"segments"`
}

// List handles GET /sessions/:session_id/results.
func (h *ResultsHandler) List(c *gin.Context) {
	sessionID := common.SessionID(c.Param("session_id"))
	bundles, err := h.reader.SessionBundles(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResultsResponse{SessionID: sessionID, Segments: bundles})
}

// Segment handles GET /sessions/:session_id/results/segments/:segment.
func (h *ResultsHandler) Segment(c *gin.Context) {
	sessionID := common.SessionID(c.Param("session_id"))
	segment := domain.Segment(c.Param("segment"))
	bundle, err := h.reader.SegmentBundle(c.Request.Context(), sessionID, segment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// Clear handles DELETE /sessions/:session_id/results.
func (h *ResultsHandler) Clear(c *gin.Context) {
	sessionID := common.SessionID(c.Param("session_id"))
	if err := h.reader.Clear(c.Request.Context(), sessionID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
