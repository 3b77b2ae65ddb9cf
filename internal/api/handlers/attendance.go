package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/attendance"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/pkg/dto"
)

const timeLayout = "2006-01-02 15:04:05"

type AttendanceHandler struct {
	ledger *attendance.Ledger
}

func NewAttendanceHandler(ledger *attendance.Ledger) *AttendanceHandler {
	return &AttendanceHandler{ledger: ledger}
}

func (h *AttendanceHandler) List(c *gin.Context) {
	filter := models.AttendanceFilter{
		Day:      c.Query("date"),
		UserType: c.Query("user_type"),
		Status:   c.Query("status"),
		Company:  c.Query("company"),
	}
	if filter.Day != "" {
		if _, err := time.Parse(models.DayLayout, filter.Day); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	records, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.list(filter.Day, records))
}

func (h *AttendanceHandler) Today(c *gin.Context) {
	records, err := h.ledger.Today(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.list(h.ledger.CurrentDay(), records))
}

func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AttendanceHandler) Check(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.ledger.HasAttended(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AttendanceCheck{IdentityID: id, Date: h.ledger.CurrentDay(), HasAttended: ok})
}

func (h *AttendanceHandler) list(day string, records []models.AttendanceRecord) dto.AttendanceList {
	out := dto.AttendanceList{Date: day, Records: make([]dto.AttendanceRecord, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, dto.AttendanceRecord{
			ID:         r.ID.String(),
			IdentityID: r.IdentityID,
			Date:       r.Day,
			Time:       h.ledger.Local(r.ScannedAt).Format(timeLayout),
			FirstName:  r.FirstName,
			LastName:   r.LastName,
			Email:      r.Email,
			UserType:   r.UserType,
			Company:    r.Company,
			JobTitle:   r.JobTitle,
			Status:     r.Status,
		})
	}
	out.Total = len(out.Records)
	return out
}
