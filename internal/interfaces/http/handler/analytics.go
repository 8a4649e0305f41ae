package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/storefront/analytics/internal/infrastructure/telemetry"
	"github.com/storefront/analytics/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// AnalyticsHandler ingests envelopes and session batches and serves exports
type AnalyticsHandler struct {
	BaseHandler
	events         tracking.EventRepository
	batches        tracking.SessionBatchRepository
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	metrics        *telemetry.CollectorMetrics
	logger         *zap.Logger
	exportGuard    gin.HandlerFunc
}

// NewAnalyticsHandler creates an AnalyticsHandler. exportGuard protects the
// export endpoint; pass nil to leave it open (tests only)
func NewAnalyticsHandler(
	events tracking.EventRepository,
	batches tracking.SessionBatchRepository,
	idempotency shared.IdempotencyStore,
	idempotencyTTL time.Duration,
	metrics *telemetry.CollectorMetrics,
	logger *zap.Logger,
	exportGuard gin.HandlerFunc,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		events:         events,
		batches:        batches,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		metrics:        metrics,
		logger:         logger,
		exportGuard:    exportGuard,
	}
}

// RegisterRoutes registers the analytics endpoints
func (h *AnalyticsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	analytics := rg.Group("/analytics")
	{
		analytics.POST("/events", h.IngestEvent)
		analytics.POST("/session", h.IngestSessionBatch)
		if h.exportGuard != nil {
			analytics.POST("/export", h.exportGuard, h.Export)
		} else {
			analytics.POST("/export", h.Export)
		}
	}
}

// IngestEvent accepts one envelope. The delivery queue retries on failure, so
// redelivered envelopes are answered 200 with duplicate=true instead of being
// stored twice
func (h *AnalyticsHandler) IngestEvent(c *gin.Context) {
	var req dto.EnvelopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	h.metrics.RecordReceived(ctx, req.Kind)

	newlyMarked, err := h.idempotency.MarkProcessed(ctx, req.EventID.String(), h.idempotencyTTL)
	if err != nil {
		// Fail open: a broken dedup store should not drop events
		h.logger.Warn("idempotency check failed, accepting envelope",
			zap.String("event_id", req.EventID.String()),
			zap.Error(err))
		newlyMarked = true
	}
	if !newlyMarked {
		h.metrics.RecordDeduplicated(ctx, req.Kind)
		h.Success(c, dto.IngestResponse{EventID: req.EventID.String(), Duplicate: true})
		return
	}

	if err := h.events.Save(ctx, req.ToEnvelope()); err != nil {
		h.logger.Error("persist envelope failed",
			zap.String("event_id", req.EventID.String()),
			zap.String("kind", req.Kind),
			zap.Error(err))
		h.InternalError(c, "Failed to store event")
		return
	}

	h.metrics.RecordPersisted(ctx, req.Kind)
	h.Accepted(c, dto.IngestResponse{EventID: req.EventID.String()})
}

// IngestSessionBatch accepts one flushed session recording batch
func (h *AnalyticsHandler) IngestSessionBatch(c *gin.Context) {
	var req dto.SessionBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.batches.Save(ctx, req.ToSessionBatch()); err != nil {
		h.logger.Error("persist session batch failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		h.InternalError(c, "Failed to store session batch")
		return
	}

	h.metrics.RecordBatchPersisted(ctx)
	h.Accepted(c, gin.H{"sessionId": req.SessionID})
}

// Export returns stored events in a date range, oldest first
func (h *AnalyticsHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	query, err := req.ToQuery()
	if err != nil {
		h.Error(c, 400, dto.ErrCodeInvalidInput, err.Error())
		return
	}

	ctx := c.Request.Context()
	started := time.Now()
	events, err := h.events.FindRange(ctx, query)
	if err != nil {
		h.metrics.RecordExport(ctx, time.Since(started), "error")
		h.logger.Error("export query failed", zap.Error(err))
		h.InternalError(c, "Failed to export events")
		return
	}

	h.metrics.RecordExport(ctx, time.Since(started), "ok")
	h.Success(c, dto.ExportResponse{Events: events, Count: len(events)})
}
