package models

import "time"

// BatchStatus represents the lifecycle of a scheduled cohort.
type BatchStatus string

const (
	BatchStatusActive    BatchStatus = "ACTIVE"
	BatchStatusCompleted BatchStatus = "COMPLETED"
)

// Valid returns true when the status is a supported value.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusActive, BatchStatusCompleted:
		return true
	default:
		return false
	}
}

// Batch is a scheduled cohort of a course with fixed seat capacity.
// current_students is a denormalized counter maintained transactionally at
// admission time; 0 <= current_students <= max_students must always hold.
type Batch struct {
	ID              string      `db:"id" json:"id"`
	CourseID        string      `db:"course_id" json:"course_id"`
	BatchNumber     int         `db:"batch_number" json:"batch_number"`
	StartDate       time.Time   `db:"start_date" json:"start_date"`
	EndDate         time.Time   `db:"end_date" json:"end_date"`
	MaxStudents     int         `db:"max_students" json:"max_students"`
	CurrentStudents int         `db:"current_students" json:"current_students"`
	TotalHours      float64     `db:"total_hours" json:"total_hours"`
	Status          BatchStatus `db:"status" json:"status"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// Full reports whether every seat in the batch is taken.
func (b Batch) Full() bool {
	return b.CurrentStudents >= b.MaxStudents
}

// BatchDetail enriches Batch with course context.
type BatchDetail struct {
	Batch
	CourseTitle string `db:"course_title" json:"course_title"`
}

// BatchFilter provides filters for listing batches.
type BatchFilter struct {
	CourseID  string
	Status    BatchStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
