package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

type applicationRepository interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentApplication, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	ExistsNonTerminal(ctx context.Context, userID, courseID string) (bool, error)
	Create(ctx context.Context, application *models.StudentApplication) error
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string) error
	Approve(ctx context.Context, application *models.StudentApplication, reviewerID string, notes *string, enforceCapacity bool) (*models.Enrollment, error)
}

type batchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

// SubmitApplicationRequest describes an application submission payload.
// Capacity is deliberately not checked here: a pending applicant does not
// occupy a seat, so the only capacity gate is at approval time.
type SubmitApplicationRequest struct {
	CourseID     string          `json:"course_id" validate:"required"`
	BatchID      string          `json:"batch_id" validate:"required"`
	PersonalInfo models.JSONDocument `json:"personal_info"`
	Documents    models.JSONDocument `json:"documents"`
}

// ApplicationService handles prospective-student intake.
type ApplicationService struct {
	repo      applicationRepository
	courses   courseReader
	batches   batchReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApplicationService constructs ApplicationService.
func NewApplicationService(repo applicationRepository, courses courseReader, batches batchReader, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{repo: repo, courses: courses, batches: batches, validator: validate, logger: logger}
}

// List returns applications with pagination metadata.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	applications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return applications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a detailed application by ID.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return detail, nil
}

// Submit files a new application for a batch. The application starts PENDING.
func (s *ApplicationService) Submit(ctx context.Context, userID string, req SubmitApplicationRequest) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status != models.CourseStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is inactive")
	}
	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if batch.CourseID != req.CourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch does not belong to course")
	}
	if batch.Status != models.BatchStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "batch is not open")
	}

	open, err := s.repo.ExistsNonTerminal(ctx, userID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open applications")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an open application already exists for this course")
	}

	application := &models.StudentApplication{
		UserID:       userID,
		CourseID:     req.CourseID,
		BatchID:      req.BatchID,
		PersonalInfo: req.PersonalInfo,
		Documents:    req.Documents,
		Status:       models.ApplicationStatusPending,
	}
	if err := s.repo.Create(ctx, application); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	detail, err := s.repo.FindDetailByID(ctx, application.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	return detail, nil
}
