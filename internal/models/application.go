package models

import "time"

// ApplicationStatus represents the review state of a student application.
type ApplicationStatus string

const (
	ApplicationStatusPending     ApplicationStatus = "PENDING"
	ApplicationStatusUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationStatusApproved    ApplicationStatus = "APPROVED"
	ApplicationStatusRejected    ApplicationStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusUnderReview, ApplicationStatusApproved, ApplicationStatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends the application lifecycle.
// A user may hold at most one non-terminal application per course.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusRejected
}

// StudentApplication is a prospective enrollment request for a batch.
// PersonalInfo and Documents are opaque blobs supplied by the applicant;
// the core never inspects their contents.
type StudentApplication struct {
	ID           string            `db:"id" json:"id"`
	UserID       string            `db:"user_id" json:"user_id"`
	CourseID     string            `db:"course_id" json:"course_id"`
	BatchID      string            `db:"batch_id" json:"batch_id"`
	PersonalInfo JSONDocument      `db:"personal_info" json:"personal_info,omitempty"`
	Documents    JSONDocument      `db:"documents" json:"documents,omitempty"`
	Status       ApplicationStatus `db:"status" json:"status"`
	ReviewedBy   *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes  *string           `db:"review_notes" json:"review_notes,omitempty"`
	ReviewedAt   *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationDetail enriches StudentApplication with applicant and course context.
type ApplicationDetail struct {
	StudentApplication
	ApplicantName string  `db:"applicant_name" json:"applicant_name"`
	CourseTitle   string  `db:"course_title" json:"course_title"`
	BatchNumber   int     `db:"batch_number" json:"batch_number"`
	ReviewerName  *string `db:"reviewer_name" json:"reviewer_name,omitempty"`
}

// ApplicationFilter provides filters for listing applications.
type ApplicationFilter struct {
	UserID    string
	CourseID  string
	BatchID   string
	Status    ApplicationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
