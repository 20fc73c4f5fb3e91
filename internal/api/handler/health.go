package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tkhuang/riskcast/internal/queue"
	"gorm.io/gorm"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db     *gorm.DB
	broker queue.Broker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, broker queue.Broker) *HealthHandler {
	return &HealthHandler{db: db, broker: broker}
}

// Health returns the health status of the service and its dependencies
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := "ok"
	checks := gin.H{}

	if h.db != nil {
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "unreachable"
			status = "degraded"
		} else {
			checks["database"] = "ok"
		}
	}

	if h.broker != nil {
		if err := h.broker.Ping(ctx); err != nil {
			checks["queue"] = "unreachable"
			status = "degraded"
		} else {
			checks["queue"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
	})
}
