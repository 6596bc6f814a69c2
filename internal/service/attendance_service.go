package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	Upsert(ctx context.Context, record *models.Attendance) (*models.Attendance, error)
	Summary(ctx context.Context, userID, batchID string) (*models.AttendanceSummaryRow, error)
	BatchReport(ctx context.Context, batchID string, from, to *time.Time) ([]models.BatchReportRow, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// MarkAttendanceRequest records one student's roll call for one date.
// TotalHours is never accepted from the caller; it is derived from the
// check-in/check-out pair.
type MarkAttendanceRequest struct {
	EnrollmentID string     `json:"enrollment_id" validate:"required"`
	Date         string     `json:"date" validate:"required,datetime=2006-01-02"`
	TimeIn       *time.Time `json:"time_in"`
	TimeOut      *time.Time `json:"time_out"`
	Status       string     `json:"status" validate:"required"`
	Notes        *string    `json:"notes"`
}

// BulkAttendanceRequest marks attendance for many enrollments at once.
type BulkAttendanceRequest struct {
	Items []MarkAttendanceRequest `json:"items" validate:"required,min=1,dive"`
}

// AttendanceService manages roll calls and hour accrual.
type AttendanceService struct {
	repo          attendanceRepository
	enrollments   enrollmentReader
	batches       batchReader
	cache         *CacheService
	fallbackHours float64
	cacheTTL      time.Duration
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewAttendanceService constructs AttendanceService. fallbackHours is the
// required-hours denominator used when a batch carries no total of its own.
func NewAttendanceService(repo attendanceRepository, enrollments enrollmentReader, batches batchReader, cache *CacheService, fallbackHours float64, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallbackHours <= 0 {
		fallbackHours = 150
	}
	return &AttendanceService{
		repo:          repo,
		enrollments:   enrollments,
		batches:       batches,
		cache:         cache,
		fallbackHours: fallbackHours,
		cacheTTL:      cacheTTL,
		validator:     validate,
		logger:        logger,
	}
}

// List returns attendance rows with pagination metadata.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Mark records attendance for one enrollment on one date. Marking the same
// (enrollment, date) pair again overwrites the earlier row.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	record, err := s.buildRecord(ctx, req)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.invalidateSummary(ctx, stored.UserID)
	return stored, nil
}

// BulkMark records attendance for many enrollments. Items are processed
// independently; a failed item is reported and the rest continue.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkAttendanceRequest) (*models.BulkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	result := &models.BulkAttendanceResult{}
	touched := map[string]struct{}{}
	for _, item := range req.Items {
		record, err := s.buildRecord(ctx, item)
		if err != nil {
			result.Failed = append(result.Failed, models.BulkAttendanceFailure{EnrollmentID: item.EnrollmentID, Reason: err.Error()})
			continue
		}
		stored, err := s.repo.Upsert(ctx, record)
		if err != nil {
			s.logger.Warn("bulk attendance item failed",
				zap.String("enrollment_id", item.EnrollmentID),
				zap.Error(err))
			result.Failed = append(result.Failed, models.BulkAttendanceFailure{EnrollmentID: item.EnrollmentID, Reason: "failed to record attendance"})
			continue
		}
		result.Processed = append(result.Processed, *stored)
		touched[stored.UserID] = struct{}{}
	}
	for userID := range touched {
		s.invalidateSummary(ctx, userID)
	}
	return result, nil
}

// Summary aggregates a student's accrued hours against the batch's required
// total, falling back to the configured default when the batch has none.
func (s *AttendanceService) Summary(ctx context.Context, userID, batchID string) (*models.AttendanceSummary, error) {
	key := summaryCacheKey(userID, batchID)
	if s.cache.Enabled() {
		var cached models.AttendanceSummary
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	row, err := s.repo.Summary(ctx, userID, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}

	required := s.fallbackHours
	if batchID != "" {
		batch, err := s.batches.FindByID(ctx, batchID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
		}
		if batch.TotalHours > 0 {
			required = batch.TotalHours
		}
	}

	summary := &models.AttendanceSummary{
		UserID:        userID,
		BatchID:       batchID,
		TotalHours:    row.TotalHours,
		RequiredHours: required,
		Present:       row.Present,
		Late:          row.Late,
		Absent:        row.Absent,
		Excused:       row.Excused,
		TotalRecords:  row.TotalRecords,
	}
	if required > 0 {
		summary.Percent = row.TotalHours / required * 100
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, summary, s.cacheTTL)
	}
	return summary, nil
}

// BatchReport returns the full roster of a batch with attendance in range.
func (s *AttendanceService) BatchReport(ctx context.Context, batchID string, from, to *time.Time) ([]models.BatchReportRow, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	rows, err := s.repo.BatchReport(ctx, batchID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build batch report")
	}
	return rows, nil
}

func (s *AttendanceService) buildRecord(ctx context.Context, req MarkAttendanceRequest) (*models.Attendance, error) {
	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance date")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.BatchID == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not assigned to a batch")
	}

	record := &models.Attendance{
		EnrollmentID: enrollment.ID,
		BatchID:      *enrollment.BatchID,
		UserID:       enrollment.UserID,
		Date:         date,
		Status:       status,
		Notes:        req.Notes,
	}
	if status.CountsTowardHours() {
		record.TimeIn = req.TimeIn
		record.TimeOut = req.TimeOut
		if req.TimeIn != nil && req.TimeOut != nil {
			if !req.TimeOut.After(*req.TimeIn) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "time_out must be after time_in")
			}
			record.TotalHours = req.TimeOut.Sub(*req.TimeIn).Hours()
		}
	}
	return record, nil
}

func (s *AttendanceService) invalidateSummary(ctx context.Context, userID string) {
	if !s.cache.Enabled() {
		return
	}
	_ = s.cache.Invalidate(ctx, fmt.Sprintf("attendance:summary:%s:*", userID))
}

func summaryCacheKey(userID, batchID string) string {
	if batchID == "" {
		batchID = "all"
	}
	return fmt.Sprintf("attendance:summary:%s:%s", userID, batchID)
}
