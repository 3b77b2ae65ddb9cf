package models

import (
	"time"

	"github.com/google/uuid"
)

const AttendanceStatusPresent = "PRESENT"

// DayLayout is the calendar-day key format of the attendance ledger.
const DayLayout = "2006-01-02"

// AttendanceRecord is keyed by (IdentityID, Day). Profile fields are a
// snapshot taken at check-in time and are never rewritten.
type AttendanceRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IdentityID string    `json:"identity_id" db:"identity_id"`
	Day        string    `json:"scan_date" db:"scan_date"`
	ScannedAt  time.Time `json:"scan_time" db:"scan_time"` // UTC instant
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Email      string    `json:"email" db:"email"`
	UserType   string    `json:"user_type" db:"user_type"`
	Company    string    `json:"company" db:"company"`
	JobTitle   string    `json:"job_title" db:"job_title"`
	Status     string    `json:"status" db:"status"`
}

// AttendanceFilter narrows attendance listings. Empty fields match anything.
type AttendanceFilter struct {
	Day      string
	UserType string
	Status   string
	Company  string
	Limit    int
}

// AttendanceStats summarises one day.
type AttendanceStats struct {
	Day             string  `json:"date"`
	TodayAttendance int     `json:"today_attendance"`
	TotalUsers      int     `json:"total_users"`
	Percentage      float64 `json:"attendance_percentage"`
}

// AttendanceEvent is published on the bus for every accepted recognition
// that reached the ledger.
type AttendanceEvent struct {
	Type       string    `json:"type"` // checked_in, already_checked_in
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Similarity float64   `json:"similarity"`
	Day        string    `json:"scan_date"`
	ScannedAt  time.Time `json:"scan_time"`
	KioskID    string    `json:"kiosk_id,omitempty"`
}

const (
	EventCheckedIn        = "checked_in"
	EventAlreadyCheckedIn = "already_checked_in"
)

// RecognitionTask is the message a kiosk publishes for the worker pool.
// Either Embedding or ImageKey (MinIO object) must be set.
type RecognitionTask struct {
	TaskID     uuid.UUID `json:"task_id"`
	KioskID    string    `json:"kiosk_id"`
	CapturedAt time.Time `json:"captured_at"`
	ImageKey   string    `json:"image_key,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// GalleryChange is broadcast to other replicas after a local enrollment
// mutation so their in-memory galleries converge without a full reload.
type GalleryChange struct {
	Action   string    `json:"action"` // upsert, remove
	Identity *Identity `json:"identity,omitempty"`
	ID       string    `json:"identity_id"`
	Origin   string    `json:"origin"`
}

const (
	GalleryActionUpsert = "upsert"
	GalleryActionRemove = "remove"
)
