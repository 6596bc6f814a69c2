package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// CountsTowardHours reports whether the status accrues attendance hours.
// ABSENT and EXCUSED rows count toward total records only.
func (s AttendanceStatus) CountsTowardHours() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// Attendance is one record per (enrollment, calendar date). TotalHours is
// derived from the check-in/check-out pair, never supplied by the caller.
type Attendance struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	BatchID      string           `db:"batch_id" json:"batch_id"`
	UserID       string           `db:"user_id" json:"user_id"`
	Date         time.Time        `db:"date" json:"date"`
	TimeIn       *time.Time       `db:"time_in" json:"time_in,omitempty"`
	TimeOut      *time.Time       `db:"time_out" json:"time_out,omitempty"`
	TotalHours   float64          `db:"total_hours" json:"total_hours"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends the attendance row with student metadata.
type AttendanceRecord struct {
	Attendance
	StudentName string `db:"student_name" json:"student_name"`
}

// AttendanceFilter defines query filters for listing attendance rows.
type AttendanceFilter struct {
	EnrollmentID string
	BatchID      string
	UserID       string
	Status       *AttendanceStatus
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// AttendanceSummary aggregates a student's accrued hours against the
// batch's required total.
type AttendanceSummary struct {
	UserID        string  `json:"user_id"`
	BatchID       string  `json:"batch_id,omitempty"`
	TotalHours    float64 `json:"total_hours"`
	RequiredHours float64 `json:"required_hours"`
	Percent       float64 `json:"percent"`
	Present       int     `json:"present"`
	Late          int     `json:"late"`
	Absent        int     `json:"absent"`
	Excused       int     `json:"excused"`
	TotalRecords  int     `json:"total_records"`
}

// AttendanceSummaryRow is the raw aggregate loaded from storage.
type AttendanceSummaryRow struct {
	TotalHours   float64 `db:"total_hours"`
	Present      int     `db:"present"`
	Late         int     `db:"late"`
	Absent       int     `db:"absent"`
	Excused      int     `db:"excused"`
	TotalRecords int     `db:"total_records"`
}

// BatchReportRow joins the full batch roster with recorded attendance so
// students with no rows in range still appear. Status is nil when nothing
// was ever recorded, distinguishing "never recorded" from ABSENT.
type BatchReportRow struct {
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	UserID       string            `db:"user_id" json:"user_id"`
	StudentName  string            `db:"student_name" json:"student_name"`
	Date         *time.Time        `db:"date" json:"date,omitempty"`
	Status       *AttendanceStatus `db:"status" json:"status,omitempty"`
	TotalHours   *float64          `db:"total_hours" json:"total_hours,omitempty"`
	Notes        *string           `db:"notes" json:"notes,omitempty"`
}

// BulkAttendanceFailure captures a single failed item in a bulk roll call.
type BulkAttendanceFailure struct {
	EnrollmentID string `json:"enrollment_id"`
	Reason       string `json:"reason"`
}

// BulkAttendanceResult summarises per-item outcomes of a bulk roll call.
// Items are processed independently; one failure never rolls back the rest.
type BulkAttendanceResult struct {
	Processed []Attendance            `json:"processed"`
	Failed    []BulkAttendanceFailure `json:"failed,omitempty"`
}
