package dto

type AttendanceRecord struct {
	ID         string `json:"id"`
	IdentityID string `json:"identity_id"`
	Date       string `json:"scan_date"`
	Time       string `json:"scan_time"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	UserType   string `json:"user_type"`
	Company    string `json:"company,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	Status     string `json:"status"`
}

type AttendanceList struct {
	Date    string             `json:"date,omitempty"`
	Records []AttendanceRecord `json:"records"`
	Total   int                `json:"total"`
}

type AttendanceCheck struct {
	IdentityID  string `json:"identity_id"`
	Date        string `json:"date"`
	HasAttended bool   `json:"has_attended"`
}
