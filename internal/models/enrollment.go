package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected  EnrollmentStatus = "REJECTED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusActive, EnrollmentStatusApproved, EnrollmentStatusRejected, EnrollmentStatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransitionEnrollment is the single place enrollment status transitions
// are validated. Transitions are currently permissive to allow administrative
// correction; tightening the state machine is a one-place change here.
func CanTransitionEnrollment(from, to EnrollmentStatus) bool {
	return from.Valid() && to.Valid()
}

// Enrollment is the durable record of a student's membership in a course,
// optionally pinned to a batch. It is the aggregate root for attendance and
// payment records.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	BatchID    *string          `db:"batch_id" json:"batch_id,omitempty"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
	BatchNumber *int   `db:"batch_number" json:"batch_number,omitempty"`
}

// EnrollmentRosterRow identifies a member of a batch roster.
type EnrollmentRosterRow struct {
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	UserID       string           `db:"user_id" json:"user_id"`
	StudentName  string           `db:"student_name" json:"student_name"`
	Email        string           `db:"email" json:"email"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt   time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID    string
	CourseID  string
	BatchID   string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
