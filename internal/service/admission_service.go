package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	"github.com/edustack/institute-api/internal/repository"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

// DecideApplicationRequest carries an admission decision.
type DecideApplicationRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes"`
}

// AdmissionDecision is the outcome of a decision: the reviewed application
// and, for approvals, the enrollment created alongside it.
type AdmissionDecision struct {
	Application *models.ApplicationDetail `json:"application"`
	Enrollment  *models.Enrollment        `json:"enrollment,omitempty"`
}

// AdmissionService converts student applications into enrollments. Approval
// is a single atomic unit: the application flips to APPROVED, an ACTIVE
// enrollment is created, and the batch seat counter is incremented. If any
// step fails, none of it happens.
type AdmissionService struct {
	applications    applicationRepository
	batches         batchReader
	enforceCapacity bool
	validator       *validator.Validate
	logger          *zap.Logger
}

// NewAdmissionService constructs AdmissionService.
func NewAdmissionService(applications applicationRepository, batches batchReader, enforceCapacity bool, validate *validator.Validate, logger *zap.Logger) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{applications: applications, batches: batches, enforceCapacity: enforceCapacity, validator: validate, logger: logger}
}

// Decide records an admission decision on an application.
func (s *AdmissionService) Decide(ctx context.Context, applicationID, reviewerID string, req DecideApplicationRequest) (*AdmissionDecision, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	status := models.ApplicationStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid application status")
	}

	application, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if application.Status == models.ApplicationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application already approved")
	}

	var enrollment *models.Enrollment
	if status == models.ApplicationStatusApproved {
		enrollment, err = s.approve(ctx, application, reviewerID, req.Notes)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.applications.UpdateStatus(ctx, applicationID, status, reviewerID, req.Notes); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
		}
	}

	detail, err := s.applications.FindDetailByID(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	s.logger.Info("admission decision recorded",
		zap.String("application_id", applicationID),
		zap.String("reviewer_id", reviewerID),
		zap.String("status", string(status)),
	)
	return &AdmissionDecision{Application: detail, Enrollment: enrollment}, nil
}

func (s *AdmissionService) approve(ctx context.Context, application *models.StudentApplication, reviewerID string, notes *string) (*models.Enrollment, error) {
	batch, err := s.batches.FindByID(ctx, application.BatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	// Early rejection on a visibly full batch; the transaction's guarded
	// increment remains the authoritative check under concurrency.
	if s.enforceCapacity && batch.Full() {
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "batch has no remaining seats")
	}

	enrollment, err := s.applications.Approve(ctx, application, reviewerID, notes, s.enforceCapacity)
	if err != nil {
		if errors.Is(err, repository.ErrBatchFull) {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "batch has no remaining seats")
		}
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "applicant already enrolled in course")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application already approved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve application")
	}
	return enrollment, nil
}
