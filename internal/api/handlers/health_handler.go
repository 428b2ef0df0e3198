package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wearlink/coordinator/internal/store"
)

type HealthHandler struct {
	store    store.Store
	degraded bool
}

func NewHealthHandler(st store.Store, degraded bool) *HealthHandler {
	return &HealthHandler{store: st, degraded: degraded}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	if err := h.store.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"degraded": h.degraded,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"degraded": h.degraded,
	})
}
