package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health godoc
// @Summary      Health check
// @Description  Returns the health status of the service and whether engine state is synced to the remote store
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	if h.state == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	body := gin.H{"status": "healthy", "state": "synced"}
	if h.state.Degraded() {
		body["state"] = "degraded"
	}
	if last := h.state.LastSaved(); !last.IsZero() {
		body["last_saved"] = last
	}
	c.JSON(http.StatusOK, body)
}
