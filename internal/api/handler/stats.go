package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats serves the live counters straight from the coordinator.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Hub.Coordinator.Stats())
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
