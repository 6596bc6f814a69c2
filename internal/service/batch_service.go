package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	"github.com/edustack/institute-api/internal/repository"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

type batchRepository interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	NextBatchNumber(ctx context.Context, courseID string) (int, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	HasEnrollments(ctx context.Context, batchID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateBatchRequest describes batch creation payload. BatchNumber is
// optional; when omitted the next number in the course sequence is assigned.
type CreateBatchRequest struct {
	CourseID    string    `json:"course_id" validate:"required"`
	BatchNumber *int      `json:"batch_number" validate:"omitempty,gt=0"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
	MaxStudents int       `json:"max_students" validate:"required,gt=0"`
	TotalHours  float64   `json:"total_hours" validate:"required,gt=0"`
}

// UpdateBatchRequest describes administrative batch updates.
type UpdateBatchRequest struct {
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	MaxStudents *int       `json:"max_students" validate:"omitempty,gt=0"`
	TotalHours  *float64   `json:"total_hours" validate:"omitempty,gt=0"`
	Status      *string    `json:"status"`
}

// BatchService manages scheduled cohorts of courses.
type BatchService struct {
	repo      batchRepository
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs BatchService.
func NewBatchService(repo batchRepository, courses courseReader, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns batches with pagination metadata.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return batches, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a batch by ID.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// NextNumber returns the next batch number in the course sequence.
func (s *BatchService) NextNumber(ctx context.Context, courseID string) (int, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	next, err := s.repo.NextBatchNumber(ctx, courseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute batch number")
	}
	return next, nil
}

// Create schedules a new cohort for a course.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch start date must precede end date")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	number := 0
	if req.BatchNumber != nil {
		number = *req.BatchNumber
	} else {
		next, err := s.repo.NextBatchNumber(ctx, req.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute batch number")
		}
		number = next
	}

	batch := &models.Batch{
		CourseID:    req.CourseID,
		BatchNumber: number,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		MaxStudents: req.MaxStudents,
		TotalHours:  req.TotalHours,
		Status:      models.BatchStatusActive,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		if errors.Is(err, repository.ErrDuplicateBatchNumber) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "batch number already exists for course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	return batch, nil
}

// Update applies administrative changes to a batch.
func (s *BatchService) Update(ctx context.Context, id string, req UpdateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if req.StartDate != nil {
		batch.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		batch.EndDate = *req.EndDate
	}
	if req.MaxStudents != nil {
		if *req.MaxStudents < batch.CurrentStudents {
			return nil, appErrors.Clone(appErrors.ErrValidation, "max students below current enrollment count")
		}
		batch.MaxStudents = *req.MaxStudents
	}
	if req.TotalHours != nil {
		batch.TotalHours = *req.TotalHours
	}
	if req.Status != nil {
		status := models.BatchStatus(*req.Status)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid batch status")
		}
		batch.Status = status
	}
	if !batch.StartDate.Before(batch.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch start date must precede end date")
	}
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}
	return batch, nil
}

// Delete removes a batch that no enrollment references.
func (s *BatchService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	hasEnrollments, err := s.repo.HasEnrollments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollments")
	}
	if hasEnrollments {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "batch has enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}
	return nil
}
