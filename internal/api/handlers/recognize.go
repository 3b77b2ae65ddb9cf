package handlers

import (
	"encoding/base64"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/recognition"
	"github.com/your-org/facecheck/pkg/dto"
)

// LocalClock renders stored UTC instants in the attendance zone.
type LocalClock interface {
	Local(t time.Time) time.Time
}

type RecognitionHandler struct {
	svc   *recognition.Service
	clock LocalClock
}

func NewRecognitionHandler(svc *recognition.Service, clock LocalClock) *RecognitionHandler {
	return &RecognitionHandler{svc: svc, clock: clock}
}

func (h *RecognitionHandler) Recognize(c *gin.Context) {
	var req dto.RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		res recognition.Result
		err error
	)
	switch {
	case len(req.Embedding) > 0:
		res, err = h.svc.Recognize(c.Request.Context(), req.KioskID, req.Embedding)
	case req.Image != "":
		image, derr := decodeBase64Image(req.Image)
		if derr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base64 image"})
			return
		}
		res, err = h.svc.RecognizeImage(c.Request.Context(), req.KioskID, image)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "embedding or image is required"})
		return
	}

	if err != nil {
		if errors.Is(err, models.ErrNotRecorded) {
			recorded := false
			resp := dto.RecognizeResponse{
				Matched:    true,
				IdentityID: res.Match.IdentityID,
				Similarity: res.Match.Similarity,
				Identity:   summary(res.Match.Metadata.Profile),
				Recorded:   &recorded,
				Error:      err.Error(),
			}
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		if errors.Is(err, models.ErrNoFaceDetected) {
			c.JSON(http.StatusUnprocessableEntity, dto.RecognizeResponse{Error: "no face detected"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.response(res))
}

func (h *RecognitionHandler) response(res recognition.Result) dto.RecognizeResponse {
	if !res.Match.Matched() {
		return dto.RecognizeResponse{Matched: false}
	}
	resp := dto.RecognizeResponse{
		Matched:    true,
		IdentityID: res.Match.IdentityID,
		Similarity: res.Match.Similarity,
		Identity:   summary(res.Match.Metadata.Profile),
	}
	if res.Suppressed {
		resp.Suppressed = true
		resp.RemainingSeconds = math.Round(res.Remaining.Seconds()*100) / 100
		return resp
	}
	if out := res.Attendance; out != nil {
		resp.Attendance = &dto.AttendanceOutcome{
			Existing:  out.Existing,
			Timestamp: h.clock.Local(out.Record.ScannedAt).Format(time.RFC3339),
			Message:   out.Message,
		}
	}
	return resp
}

func summary(p models.Profile) *dto.IdentitySummary {
	return &dto.IdentitySummary{
		Name:     p.DisplayName(),
		Email:    p.Email,
		UserType: p.UserType,
		Company:  p.Company,
		JobTitle: p.JobTitle,
	}
}

// decodeBase64Image accepts raw base64 or a data URL.
func decodeBase64Image(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
