package models

import (
	"strings"
	"time"
)

// Profile is the person-level data of an identity, as held by the upstream
// identity source. Missing upstream fields are empty strings.
type Profile struct {
	IdentityID   string `json:"identity_id"`
	FirstName    string `json:"first_name"`
	MiddleName   string `json:"middle_name,omitempty"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	UserType     string `json:"user_type"`
	Company      string `json:"company,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
	Status       string `json:"status"`
}

const (
	UserTypeParticipant = "PARTICIPANT"
	UserTypeVisitor     = "VISITOR"

	ProfileStatusActive = "ACTIVE"
)

// DisplayName joins first and last name, falling back to the email.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(strings.Join([]string{p.FirstName, p.LastName}, " "))
	if name == "" {
		return p.Email
	}
	return name
}

// WithDefaults fills the fields the source may leave blank.
func (p Profile) WithDefaults() Profile {
	if p.UserType == "" {
		p.UserType = UserTypeParticipant
	}
	if p.Status == "" {
		p.Status = ProfileStatusActive
	}
	return p
}

// Metadata travels with an enrolled embedding.
type Metadata struct {
	Profile       Profile   `json:"profile"`
	SourceImage   string    `json:"source_image,omitempty"`
	EnrolledAt    time.Time `json:"enrolled_at"`
	DetectorScore float32   `json:"detector_score"`
	Quality       float32   `json:"quality"`
}

// Identity is one enrolled template: at most one per IdentityID.
type Identity struct {
	IdentityID string    `json:"identity_id"`
	Embedding  []float32 `json:"embedding"`
	Metadata   Metadata  `json:"metadata"`
}

// Enrollment is a row of the identity source. Embedding is set when a face
// has already been extracted and stored; otherwise FaceImageKey points at
// the source image that still needs extraction.
type Enrollment struct {
	Profile       Profile
	Embedding     []float32
	DetectorScore float32
	Quality       float32
	FaceImageKey  string
	EnrolledAt    time.Time
}

// HasFace reports whether the enrollment can produce an embedding.
func (e Enrollment) HasFace() bool {
	return len(e.Embedding) > 0 || e.FaceImageKey != ""
}

// Extraction is what the biometric model returns for one image.
type Extraction struct {
	Embedding     []float32
	DetectorScore float32
	Quality       float32
}

// MatchResult is produced per recognition call and never persisted.
type MatchResult struct {
	IdentityID string
	Similarity float64
	Accepted   bool
	Metadata   Metadata
}

// Matched reports whether an identity was accepted.
func (m MatchResult) Matched() bool {
	return m.Accepted && m.IdentityID != ""
}
