package models

import "time"

// Schedule represents a scheduled session window for a course. Two schedules
// of the same course must never overlap in time.
type Schedule struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Location  *string   `db:"location" json:"location,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the two session windows intersect.
func (s Schedule) Overlaps(other Schedule) bool {
	return s.StartTime.Before(other.EndTime) && s.EndTime.After(other.StartTime)
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	CourseID  string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
