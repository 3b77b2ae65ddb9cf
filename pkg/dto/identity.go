package dto

type Profile struct {
	FirstName    string `json:"first_name"`
	MiddleName   string `json:"middle_name,omitempty"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	UserType     string `json:"user_type,omitempty"`
	Company      string `json:"company,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
	Status       string `json:"status,omitempty"`
}

type EnrollMetadata struct {
	Profile
	SourceImage   string  `json:"source_image,omitempty"`
	DetectorScore float32 `json:"detector_score,omitempty"`
	Quality       float32 `json:"quality,omitempty"`
}

type EnrollRequest struct {
	IdentityID string         `json:"identity_id" binding:"required"`
	Embedding  []float32      `json:"embedding" binding:"required"`
	Metadata   EnrollMetadata `json:"metadata"`
}

type EnrollResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type IdentityResponse struct {
	IdentityID    string  `json:"identity_id"`
	Name          string  `json:"name"`
	Profile       Profile `json:"profile"`
	SourceImage   string  `json:"source_image,omitempty"`
	EnrolledAt    string  `json:"enrolled_at,omitempty"`
	DetectorScore float32 `json:"detector_score"`
	Quality       float32 `json:"quality"`
}

type GalleryStatsResponse struct {
	Identities      int      `json:"identities"`
	Dimension       int      `json:"dimension"`
	Threshold       float64  `json:"threshold"`
	CooldownSeconds float64  `json:"cooldown_seconds"`
	ExtractorLoaded bool     `json:"extractor_loaded"`
	IdentityIDs     []string `json:"identity_ids,omitempty"`
}

type ThresholdRequest struct {
	Threshold *float64 `json:"threshold" binding:"required"`
}

type RefreshResponse struct {
	Listed   int `json:"listed"`
	Enrolled int `json:"enrolled"`
}
