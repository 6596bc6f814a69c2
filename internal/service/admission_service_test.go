package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	"github.com/edustack/institute-api/internal/repository"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

type mockApplicationRepo struct {
	applications map[string]*models.StudentApplication
	batches      map[string]*models.Batch
	nonTerminal  map[string]bool
	approved     []string
}

func newMockApplicationRepo() *mockApplicationRepo {
	return &mockApplicationRepo{
		applications: map[string]*models.StudentApplication{},
		batches:      map[string]*models.Batch{},
		nonTerminal:  map[string]bool{},
	}
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	return nil, 0, nil
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.StudentApplication, error) {
	application, ok := m.applications[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return application, nil
}

func (m *mockApplicationRepo) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	application, ok := m.applications[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ApplicationDetail{StudentApplication: *application, ApplicantName: "Alice"}, nil
}

func (m *mockApplicationRepo) ExistsNonTerminal(ctx context.Context, userID, courseID string) (bool, error) {
	return m.nonTerminal[userID+":"+courseID], nil
}

func (m *mockApplicationRepo) Create(ctx context.Context, application *models.StudentApplication) error {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	m.applications[application.ID] = application
	return nil
}

func (m *mockApplicationRepo) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string) error {
	application, ok := m.applications[id]
	if !ok {
		return sql.ErrNoRows
	}
	application.Status = status
	application.ReviewedBy = &reviewerID
	application.ReviewNotes = notes
	return nil
}

// Approve mirrors the transactional repository: the guarded seat increment
// fails with ErrBatchFull when enforcement is on and the batch is full.
func (m *mockApplicationRepo) Approve(ctx context.Context, application *models.StudentApplication, reviewerID string, notes *string, enforceCapacity bool) (*models.Enrollment, error) {
	batch := m.batches[application.BatchID]
	if enforceCapacity && batch.CurrentStudents >= batch.MaxStudents {
		return nil, repository.ErrBatchFull
	}
	batch.CurrentStudents++
	application.Status = models.ApplicationStatusApproved
	application.ReviewedBy = &reviewerID
	application.ReviewNotes = notes
	m.approved = append(m.approved, application.ID)
	return &models.Enrollment{
		ID:       uuid.NewString(),
		UserID:   application.UserID,
		CourseID: application.CourseID,
		BatchID:  &application.BatchID,
		Status:   models.EnrollmentStatusActive,
	}, nil
}

func pendingApplication(id, userID, batchID string) *models.StudentApplication {
	return &models.StudentApplication{
		ID:       id,
		UserID:   userID,
		CourseID: "course-1",
		BatchID:  batchID,
		Status:   models.ApplicationStatusPending,
	}
}

func TestAdmissionServiceApprove(t *testing.T) {
	repo := newMockApplicationRepo()
	batch := &models.Batch{ID: "batch-1", CourseID: "course-1", MaxStudents: 2, Status: models.BatchStatusActive}
	repo.batches["batch-1"] = batch
	repo.applications["app-1"] = pendingApplication("app-1", "user-1", "batch-1")
	svc := NewAdmissionService(repo, &mockBatchReader{batches: repo.batches}, true, nil, zap.NewNop())

	decision, err := svc.Decide(context.Background(), "app-1", "admin", DecideApplicationRequest{Status: "APPROVED"})
	require.NoError(t, err)
	require.NotNil(t, decision.Enrollment)
	assert.Equal(t, models.EnrollmentStatusActive, decision.Enrollment.Status)
	assert.Equal(t, models.ApplicationStatusApproved, decision.Application.Status)
	assert.Equal(t, 1, batch.CurrentStudents)
}

func TestAdmissionServiceApproveCapacityExhausted(t *testing.T) {
	repo := newMockApplicationRepo()
	batch := &models.Batch{ID: "batch-1", CourseID: "course-1", MaxStudents: 2, Status: models.BatchStatusActive}
	repo.batches["batch-1"] = batch
	repo.applications["app-1"] = pendingApplication("app-1", "user-1", "batch-1")
	repo.applications["app-2"] = pendingApplication("app-2", "user-2", "batch-1")
	repo.applications["app-3"] = pendingApplication("app-3", "user-3", "batch-1")
	svc := NewAdmissionService(repo, &mockBatchReader{batches: repo.batches}, true, nil, zap.NewNop())

	_, err := svc.Decide(context.Background(), "app-1", "admin", DecideApplicationRequest{Status: "APPROVED"})
	require.NoError(t, err)
	_, err = svc.Decide(context.Background(), "app-2", "admin", DecideApplicationRequest{Status: "APPROVED"})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), "app-3", "admin", DecideApplicationRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 2, batch.CurrentStudents)
}

func TestAdmissionServiceApproveSoftCapacity(t *testing.T) {
	repo := newMockApplicationRepo()
	batch := &models.Batch{ID: "batch-1", CourseID: "course-1", MaxStudents: 1, CurrentStudents: 1, Status: models.BatchStatusActive}
	repo.batches["batch-1"] = batch
	repo.applications["app-1"] = pendingApplication("app-1", "user-1", "batch-1")
	svc := NewAdmissionService(repo, &mockBatchReader{batches: repo.batches}, false, nil, zap.NewNop())

	decision, err := svc.Decide(context.Background(), "app-1", "admin", DecideApplicationRequest{Status: "APPROVED"})
	require.NoError(t, err)
	require.NotNil(t, decision.Enrollment)
	assert.Equal(t, 2, batch.CurrentStudents)
}

func TestAdmissionServiceReject(t *testing.T) {
	repo := newMockApplicationRepo()
	repo.applications["app-1"] = pendingApplication("app-1", "user-1", "batch-1")
	svc := NewAdmissionService(repo, &mockBatchReader{}, true, nil, zap.NewNop())

	notes := "incomplete documents"
	decision, err := svc.Decide(context.Background(), "app-1", "admin", DecideApplicationRequest{Status: "REJECTED", Notes: &notes})
	require.NoError(t, err)
	assert.Nil(t, decision.Enrollment)
	assert.Equal(t, models.ApplicationStatusRejected, decision.Application.Status)
}

func TestAdmissionServiceDecideAlreadyApproved(t *testing.T) {
	repo := newMockApplicationRepo()
	application := pendingApplication("app-1", "user-1", "batch-1")
	application.Status = models.ApplicationStatusApproved
	repo.applications["app-1"] = application
	svc := NewAdmissionService(repo, &mockBatchReader{}, true, nil, zap.NewNop())

	_, err := svc.Decide(context.Background(), "app-1", "admin", DecideApplicationRequest{Status: "REJECTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestAdmissionServiceDecideInvalidStatus(t *testing.T) {
	repo := newMockApplicationRepo()
	repo.applications["app-1"] = pendingApplication("app-1", "user-1", "batch-1")
	svc := NewAdmissionService(repo, &mockBatchReader{}, true, nil, zap.NewNop())

	_, err := svc.Decide(context.Background(), "app-1", "admin", DecideApplicationRequest{Status: "WAITLISTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
