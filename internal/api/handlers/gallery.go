package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/cooldown"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/matcher"
	"github.com/your-org/facecheck/internal/reload"
	"github.com/your-org/facecheck/pkg/dto"
)

type GalleryHandler struct {
	gallery  *gallery.Gallery
	matcher  *matcher.Matcher
	cooldown *cooldown.Tracker
	enroll   *enroll.Service
	monitor  *reload.Monitor
}

// NewGalleryHandler builds the gallery admin endpoints. monitor may be nil.
func NewGalleryHandler(g *gallery.Gallery, m *matcher.Matcher, cd *cooldown.Tracker, svc *enroll.Service, monitor *reload.Monitor) *GalleryHandler {
	return &GalleryHandler{gallery: g, matcher: m, cooldown: cd, enroll: svc, monitor: monitor}
}

func (h *GalleryHandler) Stats(c *gin.Context) {
	view := h.gallery.View()
	resp := dto.GalleryStatsResponse{
		Identities:      view.Len(),
		Dimension:       h.gallery.Dimension(),
		Threshold:       h.matcher.Threshold(),
		CooldownSeconds: h.cooldown.Window().Seconds(),
		ExtractorLoaded: h.enroll.HasExtractor(),
	}
	if c.Query("ids") == "true" {
		for _, e := range view.Entries() {
			resp.IdentityIDs = append(resp.IdentityIDs, e.IdentityID)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GalleryHandler) SetThreshold(c *gin.Context) {
	var req dto.ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	old := h.matcher.Threshold()
	if err := h.matcher.SetThreshold(*req.Threshold); err != nil {
		respondError(c, err)
		return
	}
	slog.Info("match threshold changed", "from", old, "to", *req.Threshold)
	c.JSON(http.StatusOK, gin.H{"threshold": *req.Threshold, "previous": old})
}

// Refresh rebuilds the gallery from the identity source right away.
func (h *GalleryHandler) Refresh(c *gin.Context) {
	listed, enrolled, err := h.enroll.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if h.monitor != nil {
		h.monitor.SetKnownCount(listed)
	}
	c.JSON(http.StatusOK, dto.RefreshResponse{Listed: listed, Enrolled: enrolled})
}
