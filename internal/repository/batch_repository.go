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
	"github.com/lib/pq"

	"github.com/edustack/institute-api/internal/models"
)

// ErrDuplicateBatchNumber signals a (course_id, batch_number) collision.
var ErrDuplicateBatchNumber = errors.New("batch number already exists for course")

// BatchRepository handles persistence of scheduled cohorts.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns batches filtered by the provided criteria.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error) {
	base := `FROM batches b
JOIN courses c ON c.id = b.course_id`
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("b.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("b.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"batch_number": "b.batch_number",
		"start_date":   "b.start_date",
		"created_at":   "b.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "b.start_date"
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

	query := fmt.Sprintf(`SELECT b.id, b.course_id, b.batch_number, b.start_date, b.end_date, b.max_students, b.current_students, b.total_hours, b.status, b.created_at, b.updated_at,
        c.title AS course_title
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, orderBy, order, size, offset)

	var batches []models.BatchDetail
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// FindByID returns a batch by its ID.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, course_id, batch_number, start_date, end_date, max_students, current_students, total_hours, status, created_at, updated_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// NextBatchNumber returns last batch number + 1 for the course, starting at 1.
// The sequence is monotonic per course and tolerates gaps left by deletions.
func (r *BatchRepository) NextBatchNumber(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COALESCE(MAX(batch_number), 0) + 1 FROM batches WHERE course_id = $1`
	var next int
	if err := r.db.GetContext(ctx, &next, query, courseID); err != nil {
		return 0, fmt.Errorf("next batch number: %w", err)
	}
	return next, nil
}

// Create persists a new batch. The (course_id, batch_number) pair is unique;
// a collision surfaces as ErrDuplicateBatchNumber.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	now := time.Now().UTC()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusActive
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now
	const query = `INSERT INTO batches (id, course_id, batch_number, start_date, end_date, max_students, current_students, total_hours, status, created_at, updated_at)
        VALUES (:id, :course_id, :batch_number, :start_date, :end_date, :max_students, :current_students, :total_hours, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBatchNumber
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Update persists administrative changes to a batch.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batches SET start_date = :start_date, end_date = :end_date, max_students = :max_students,
        total_hours = :total_hours, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// HasEnrollments reports whether any enrollment references the batch.
func (r *BatchRepository) HasEnrollments(ctx context.Context, batchID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE batch_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, batchID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check batch enrollments: %w", err)
	}
	return true, nil
}

// Delete removes a batch. Callers must confirm no enrollment references it.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
