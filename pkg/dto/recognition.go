package dto

// RecognizeRequest carries either a precomputed embedding or a base64
// encoded image.
type RecognizeRequest struct {
	Embedding []float32 `json:"embedding,omitempty"`
	Image     string    `json:"image,omitempty"`
	KioskID   string    `json:"kiosk_id,omitempty"`
}

type RecognizeResponse struct {
	Matched          bool               `json:"matched"`
	IdentityID       string             `json:"identity_id,omitempty"`
	Similarity       float64            `json:"similarity,omitempty"`
	Identity         *IdentitySummary   `json:"identity,omitempty"`
	Attendance       *AttendanceOutcome `json:"attendance,omitempty"`
	Suppressed       bool               `json:"suppressed,omitempty"`
	RemainingSeconds float64            `json:"remaining_seconds,omitempty"`
	Recorded         *bool              `json:"recorded,omitempty"`
	Error            string             `json:"error,omitempty"`
}

type IdentitySummary struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	UserType string `json:"user_type,omitempty"`
	Company  string `json:"company,omitempty"`
	JobTitle string `json:"job_title,omitempty"`
}

type AttendanceOutcome struct {
	Existing  bool   `json:"existing"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// WSEvent is pushed to WebSocket clients for every check-in.
type WSEvent struct {
	Type       string  `json:"type"`
	IdentityID string  `json:"identity_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
	Date       string  `json:"date"`
	Timestamp  string  `json:"timestamp"`
	KioskID    string  `json:"kiosk_id,omitempty"`
}
