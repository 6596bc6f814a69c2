package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/institute-api/internal/models"
)

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := `FROM attendance a
JOIN enrollments e ON e.id = a.enrollment_id
JOIN users u ON u.id = e.user_id`
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.EnrollmentID != "" {
		where = append(where, fmt.Sprintf("a.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("a.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("a.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"date":       "a.date",
		"status":     "a.status",
		"created_at": "a.created_at",
	}
	sortColumn := allowedSorts[filter.SortBy]
	if sortColumn == "" {
		sortColumn = "a.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.enrollment_id, a.batch_id, a.user_id, a.date, a.time_in, a.time_out, a.total_hours, a.status, a.notes, a.created_at, a.updated_at,
        u.full_name AS student_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// Upsert inserts or overwrites the attendance row for (enrollment_id, date)
// in one atomic statement. Calling it twice for the same day overwrites.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) (*models.Attendance, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance (id, enrollment_id, batch_id, user_id, date, time_in, time_out, total_hours, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (enrollment_id, date)
DO UPDATE SET time_in = EXCLUDED.time_in, time_out = EXCLUDED.time_out, total_hours = EXCLUDED.total_hours,
        status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
RETURNING id, enrollment_id, batch_id, user_id, date, time_in, time_out, total_hours, status, notes, created_at, updated_at`
	var stored models.Attendance
	if err := r.db.GetContext(ctx, &stored, query, record.ID, record.EnrollmentID, record.BatchID, record.UserID, record.Date, record.TimeIn, record.TimeOut, record.TotalHours, record.Status, record.Notes, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// Summary aggregates a student's attendance. Hours accrue only for PRESENT
// and LATE rows; ABSENT and EXCUSED count toward total records alone.
func (r *AttendanceRepository) Summary(ctx context.Context, userID, batchID string) (*models.AttendanceSummaryRow, error) {
	query := `SELECT
        COALESCE(SUM(a.total_hours) FILTER (WHERE a.status IN ($2, $3)), 0) AS total_hours,
        COUNT(*) FILTER (WHERE a.status = $2) AS present,
        COUNT(*) FILTER (WHERE a.status = $3) AS late,
        COUNT(*) FILTER (WHERE a.status = $4) AS absent,
        COUNT(*) FILTER (WHERE a.status = $5) AS excused,
        COUNT(*) AS total_records
        FROM attendance a WHERE a.user_id = $1`
	args := []interface{}{userID, models.AttendanceStatusPresent, models.AttendanceStatusLate, models.AttendanceStatusAbsent, models.AttendanceStatusExcused}
	if batchID != "" {
		query += fmt.Sprintf(" AND a.batch_id = $%d", len(args)+1)
		args = append(args, batchID)
	}
	var row models.AttendanceSummaryRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	return &row, nil
}

// BatchReport joins the full batch roster with attendance rows in range so
// students without records still appear with a nil status.
func (r *AttendanceRepository) BatchReport(ctx context.Context, batchID string, from, to *time.Time) ([]models.BatchReportRow, error) {
	join := []string{"a.enrollment_id = e.id"}
	args := []interface{}{batchID}
	if from != nil {
		join = append(join, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		join = append(join, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT e.id AS enrollment_id, e.user_id, u.full_name AS student_name, a.date, a.status, a.total_hours, a.notes
        FROM enrollments e
        JOIN users u ON u.id = e.user_id
        LEFT JOIN attendance a ON %s
        WHERE e.batch_id = $1
        ORDER BY u.full_name ASC, a.date ASC`, strings.Join(join, " AND "))

	var rows []models.BatchReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("batch attendance report: %w", err)
	}
	return rows, nil
}
