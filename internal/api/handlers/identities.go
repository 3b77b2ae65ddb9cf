package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/pkg/dto"
)

const maxImageBytes = 10 << 20

type IdentityHandler struct {
	svc     *enroll.Service
	gallery *gallery.Gallery
}

func NewIdentityHandler(svc *enroll.Service, g *gallery.Gallery) *IdentityHandler {
	return &IdentityHandler{svc: svc, gallery: g}
}

// Enroll registers a precomputed embedding. Bad faces are answered with
// accepted=false; infrastructure failures with an error status.
func (h *IdentityHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meta := models.Metadata{
		Profile:       profileFromDTO(req.IdentityID, req.Metadata.Profile),
		SourceImage:   req.Metadata.SourceImage,
		DetectorScore: req.Metadata.DetectorScore,
		Quality:       req.Metadata.Quality,
	}
	err := h.svc.EnrollEmbedding(c.Request.Context(), req.IdentityID, req.Embedding, meta)
	h.respondEnroll(c, err)
}

// EnrollFace enrolls from an uploaded image (multipart field "image").
// Profile fields may be sent as form values; otherwise the enrolled
// profile is kept.
func (h *IdentityHandler) EnrollFace(c *gin.Context) {
	id := c.Param("id")

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}
	if len(data) > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds 10MB"})
		return
	}

	profile := models.Profile{IdentityID: id}
	if existing, ok := h.gallery.Get(id); ok {
		profile = existing.Metadata.Profile
	}
	applyForm(c, &profile)

	contentType := header.Header.Get("Content-Type")
	err = h.svc.EnrollImage(c.Request.Context(), profile, data, header.Filename, contentType)
	h.respondEnroll(c, err)
}

func (h *IdentityHandler) respondEnroll(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, dto.EnrollResponse{Accepted: true})
	case enroll.Rejected(err):
		res := enroll.ResultOf(err)
		c.JSON(http.StatusUnprocessableEntity, dto.EnrollResponse{Accepted: res.Accepted, Reason: res.Reason})
	default:
		body := gin.H{"accepted": false, "reason": err.Error()}
		if hint := models.Hint(err); hint != "" {
			body["hint"] = hint
		}
		c.JSON(statusOf(err), body)
	}
}

func (h *IdentityHandler) Remove(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) List(c *gin.Context) {
	snap := h.gallery.Snapshot()
	resp := make([]dto.IdentityResponse, 0, len(snap))
	for _, ident := range snap {
		resp = append(resp, identityResponse(ident))
	}
	c.JSON(http.StatusOK, gin.H{"identities": resp, "total": len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	ident, ok := h.gallery.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not enrolled"})
		return
	}
	c.JSON(http.StatusOK, identityResponse(ident))
}

func identityResponse(ident models.Identity) dto.IdentityResponse {
	p := ident.Metadata.Profile
	resp := dto.IdentityResponse{
		IdentityID:    ident.IdentityID,
		Name:          p.DisplayName(),
		Profile:       profileToDTO(p),
		SourceImage:   ident.Metadata.SourceImage,
		DetectorScore: ident.Metadata.DetectorScore,
		Quality:       ident.Metadata.Quality,
	}
	if !ident.Metadata.EnrolledAt.IsZero() {
		resp.EnrolledAt = ident.Metadata.EnrolledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func profileFromDTO(id string, p dto.Profile) models.Profile {
	return models.Profile{
		IdentityID:   id,
		FirstName:    p.FirstName,
		MiddleName:   p.MiddleName,
		LastName:     p.LastName,
		Email:        p.Email,
		UserType:     p.UserType,
		Company:      p.Company,
		JobTitle:     p.JobTitle,
		MobileNumber: p.MobileNumber,
		Status:       p.Status,
	}
}

func profileToDTO(p models.Profile) dto.Profile {
	return dto.Profile{
		FirstName:    p.FirstName,
		MiddleName:   p.MiddleName,
		LastName:     p.LastName,
		Email:        p.Email,
		UserType:     p.UserType,
		Company:      p.Company,
		JobTitle:     p.JobTitle,
		MobileNumber: p.MobileNumber,
		Status:       p.Status,
	}
}

func applyForm(c *gin.Context, p *models.Profile) {
	fields := map[string]*string{
		"first_name":    &p.FirstName,
		"middle_name":   &p.MiddleName,
		"last_name":     &p.LastName,
		"email":         &p.Email,
		"user_type":     &p.UserType,
		"company":       &p.Company,
		"job_title":     &p.JobTitle,
		"mobile_number": &p.MobileNumber,
	}
	for name, dst := range fields {
		if v, ok := c.GetPostForm(name); ok {
			*dst = v
		}
	}
}
