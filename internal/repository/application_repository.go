package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/institute-api/internal/models"
)

// ErrBatchFull is returned when an approval would exceed batch capacity.
var ErrBatchFull = errors.New("batch capacity reached")

// ApplicationRepository handles persistence of student applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	base := `FROM student_applications a
JOIN users u ON u.id = a.user_id
JOIN courses c ON c.id = a.course_id
JOIN batches b ON b.id = a.batch_id
LEFT JOIN users rv ON rv.id = a.reviewed_by`
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("a.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("a.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("a.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"created_at":     "a.created_at",
		"status":         "a.status",
		"applicant_name": "u.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "a.created_at"
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.user_id, a.course_id, a.batch_id, a.personal_info, a.documents, a.status,
        a.reviewed_by, a.review_notes, a.reviewed_at, a.created_at, a.updated_at,
        u.full_name AS applicant_name, c.title AS course_title, b.batch_number, rv.full_name AS reviewer_name
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, orderBy, order, size, offset)

	var applications []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.StudentApplication, error) {
	const query = `SELECT id, user_id, course_id, batch_id, personal_info, documents, status, reviewed_by, review_notes, reviewed_at, created_at, updated_at
        FROM student_applications WHERE id = $1`
	var application models.StudentApplication
	if err := r.db.GetContext(ctx, &application, query, id); err != nil {
		return nil, err
	}
	return &application, nil
}

// FindDetailByID returns an application with applicant and course context.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	const query = `SELECT a.id, a.user_id, a.course_id, a.batch_id, a.personal_info, a.documents, a.status,
        a.reviewed_by, a.review_notes, a.reviewed_at, a.created_at, a.updated_at,
        u.full_name AS applicant_name, c.title AS course_title, b.batch_number, rv.full_name AS reviewer_name
        FROM student_applications a
        JOIN users u ON u.id = a.user_id
        JOIN courses c ON c.id = a.course_id
        JOIN batches b ON b.id = a.batch_id
        LEFT JOIN users rv ON rv.id = a.reviewed_by
        WHERE a.id = $1`
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsNonTerminal checks for an open application for the (user, course) pair.
func (r *ApplicationRepository) ExistsNonTerminal(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM student_applications WHERE user_id = $1 AND course_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID, models.ApplicationStatusRejected); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open application: %w", err)
	}
	return true, nil
}

// Create persists a new application.
func (r *ApplicationRepository) Create(ctx context.Context, application *models.StudentApplication) error {
	now := time.Now().UTC()
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	if application.Status == "" {
		application.Status = models.ApplicationStatusPending
	}
	if application.CreatedAt.IsZero() {
		application.CreatedAt = now
	}
	application.UpdatedAt = now
	const query = `INSERT INTO student_applications (id, user_id, course_id, batch_id, personal_info, documents, status, reviewed_by, review_notes, reviewed_at, created_at, updated_at)
        VALUES (:id, :user_id, :course_id, :batch_id, :personal_info, :documents, :status, :reviewed_by, :review_notes, :reviewed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, application); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// UpdateStatus records a non-approval decision on an application.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string) error {
	const query = `UPDATE student_applications SET status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reviewerID, notes, time.Now().UTC()); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}

// Approve performs the admission transaction as a single atomic unit:
// the application moves to APPROVED, an ACTIVE enrollment is inserted, and
// the batch seat counter is incremented. When enforceCapacity is set the
// increment is guarded by current_students < max_students and the whole
// transaction rolls back with ErrBatchFull on a full batch. Concurrent
// approvals serialize on the batch row via the guarded UPDATE.
func (r *ApplicationRepository) Approve(ctx context.Context, application *models.StudentApplication, reviewerID string, notes *string, enforceCapacity bool) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve application: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const updateApp = `UPDATE student_applications SET status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5, updated_at = $5
        WHERE id = $1 AND status <> $2`
	res, err := tx.ExecContext(ctx, updateApp, application.ID, models.ApplicationStatusApproved, reviewerID, notes, now)
	if err != nil {
		return nil, fmt.Errorf("approve application: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, sql.ErrNoRows
	}

	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		UserID:     application.UserID,
		CourseID:   application.CourseID,
		BatchID:    &application.BatchID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	const insertEnrollment = `INSERT INTO enrollments (id, user_id, course_id, batch_id, status, enrolled_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, insertEnrollment, enrollment.ID, enrollment.UserID, enrollment.CourseID, enrollment.BatchID, enrollment.Status, enrollment.EnrolledAt, enrollment.CreatedAt, enrollment.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEnrollment
		}
		return nil, fmt.Errorf("create enrollment on approval: %w", err)
	}

	incrementSeat := `UPDATE batches SET current_students = current_students + 1, updated_at = $2 WHERE id = $1`
	if enforceCapacity {
		incrementSeat += ` AND current_students < max_students`
	}
	incrementSeat += ` RETURNING current_students`
	var seats int
	if err := tx.QueryRowxContext(ctx, incrementSeat, application.BatchID, now).Scan(&seats); err != nil {
		if err == sql.ErrNoRows && enforceCapacity {
			return nil, ErrBatchFull
		}
		return nil, fmt.Errorf("increment batch seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve application: %w", err)
	}
	committed = true
	return enrollment, nil
}
