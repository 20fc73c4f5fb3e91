package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tkhuang/riskcast/internal/domain"
	"github.com/tkhuang/riskcast/internal/service"
)

// ScalingHandler handles autoscaler observability and override endpoints.
type ScalingHandler struct {
	engine *service.ScalingEngine
}

// NewScalingHandler creates a new scaling handler.
// Parameters:
//   - engine: scaling engine instance.
// Returns:
//   - *ScalingHandler: initialized handler.
func NewScalingHandler(engine *service.ScalingEngine) *ScalingHandler {
	return &ScalingHandler{engine: engine}
}

// Status handles GET /api/v1/scaling/status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScalingHandler) Status(c *gin.Context) {
	status, err := h.engine.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get scaling status: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// History handles GET /api/v1/scaling/history.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScalingHandler) History(c *gin.Context) {
	limit := intQuery(c, "limit", 50)

	events, err := h.engine.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get scaling history: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  len(events),
	})
}

type manualScalingRequest struct {
	TargetWorkers int    `json:"target_workers" binding:"required"`
	Reason        string `json:"reason"`
}

// Manual handles POST /api/v1/scaling/manual.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScalingHandler) Manual(c *gin.Context) {
	var req manualScalingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	if err := h.engine.ManualOverride(c.Request.Context(), req.TargetWorkers, req.Reason); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to apply override: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target_workers": req.TargetWorkers,
		"reason":         req.Reason,
	})
}
