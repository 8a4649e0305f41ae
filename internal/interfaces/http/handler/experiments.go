package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/storefront/analytics/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// ExperimentsHandler serves experiment definitions to tracker engines and
// lets operators manage them
type ExperimentsHandler struct {
	BaseHandler
	experiments tracking.ExperimentRepository
	logger      *zap.Logger
	writeGuard  gin.HandlerFunc
}

// NewExperimentsHandler creates an ExperimentsHandler. writeGuard protects
// the upsert endpoint; pass nil to leave it open (tests only)
func NewExperimentsHandler(experiments tracking.ExperimentRepository, logger *zap.Logger, writeGuard gin.HandlerFunc) *ExperimentsHandler {
	return &ExperimentsHandler{
		experiments: experiments,
		logger:      logger,
		writeGuard:  writeGuard,
	}
}

// RegisterRoutes registers the experiment endpoints
func (h *ExperimentsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	experiments := rg.Group("/experiments")
	{
		experiments.GET("/active", h.Active)
		if h.writeGuard != nil {
			experiments.PUT("/:id", h.writeGuard, h.Upsert)
		} else {
			experiments.PUT("/:id", h.Upsert)
		}
	}
}

// Active returns the experiment -> variant map engines seed their local
// assignments from. Unauthenticated: every page load fetches it
func (h *ExperimentsHandler) Active(c *gin.Context) {
	active, err := h.experiments.Active(c.Request.Context())
	if err != nil {
		h.logger.Error("load active experiments failed", zap.Error(err))
		h.InternalError(c, "Failed to load experiments")
		return
	}
	h.Success(c, active)
}

// Upsert creates or updates an experiment definition
func (h *ExperimentsHandler) Upsert(c *gin.Context) {
	experimentID := c.Param("id")
	if experimentID == "" {
		h.BadRequest(c, "experiment id is required")
		return
	}

	var req dto.ExperimentUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	if err := h.experiments.Upsert(c.Request.Context(), experimentID, req.Variant, *req.Active); err != nil {
		h.logger.Error("upsert experiment failed",
			zap.String("experiment_id", experimentID),
			zap.Error(err))
		h.InternalError(c, "Failed to store experiment")
		return
	}

	h.Success(c, gin.H{
		"experimentId": experimentID,
		"variant":      req.Variant,
		"active":       *req.Active,
	})
}
