package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/matcher"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/recognition"
)

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDimensionMismatch),
		errors.Is(err, models.ErrDegenerateEmbedding),
		errors.Is(err, matcher.ErrThresholdRange):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recognition.ErrNoExtractor),
		errors.Is(err, enroll.ErrExtractorUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, models.ErrTransientStorage),
		errors.Is(err, models.ErrIdentitySourceUnavailable),
		errors.Is(err, models.ErrNotRecorded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if hint := models.Hint(err); hint != "" {
		body["hint"] = hint
	}
	c.JSON(statusOf(err), body)
}
