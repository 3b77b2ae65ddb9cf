package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/reload"
)

type SyncHandler struct {
	monitor *reload.Monitor
	// base outlives requests; the monitor loop runs under it.
	base context.Context
}

func NewSyncHandler(base context.Context, monitor *reload.Monitor) *SyncHandler {
	return &SyncHandler{monitor: monitor, base: base}
}

func (h *SyncHandler) Start(c *gin.Context) {
	started := h.monitor.Start(h.base)
	c.JSON(http.StatusOK, gin.H{"started": started, "status": h.monitor.Status()})
}

func (h *SyncHandler) Stop(c *gin.Context) {
	stopped := h.monitor.Stop()
	c.JSON(http.StatusOK, gin.H{"stopped": stopped, "status": h.monitor.Status()})
}

func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Status())
}

// Check runs one tick immediately.
func (h *SyncHandler) Check(c *gin.Context) {
	reloaded, err := h.monitor.CheckNow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloaded": reloaded, "status": h.monitor.Status()})
}
