package models

import "time"

// CourseStatus represents the publication state of a course offering.
type CourseStatus string

const (
	CourseStatusActive   CourseStatus = "ACTIVE"
	CourseStatusInactive CourseStatus = "INACTIVE"
)

// Valid returns true when the status is a supported value.
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusActive, CourseStatusInactive:
		return true
	default:
		return false
	}
}

// Course defines an offering students can apply to.
type Course struct {
	ID                string       `db:"id" json:"id"`
	Title             string       `db:"title" json:"title"`
	Description       *string      `db:"description" json:"description,omitempty"`
	Price             float64      `db:"price" json:"price"`
	DurationHours     float64      `db:"duration_hours" json:"duration_hours"`
	RegistrationStart *time.Time   `db:"registration_start" json:"registration_start,omitempty"`
	RegistrationEnd   *time.Time   `db:"registration_end" json:"registration_end,omitempty"`
	Status            CourseStatus `db:"status" json:"status"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// RegistrationOpen reports whether the registration window admits the given instant.
// A course without a configured window is always open while ACTIVE.
func (c Course) RegistrationOpen(at time.Time) bool {
	if c.Status != CourseStatusActive {
		return false
	}
	if c.RegistrationStart != nil && at.Before(*c.RegistrationStart) {
		return false
	}
	if c.RegistrationEnd != nil && at.After(*c.RegistrationEnd) {
		return false
	}
	return true
}

// CourseFilter encapsulates search parameters for listing courses.
type CourseFilter struct {
	Search    string
	Status    CourseStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
