package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]*models.Enrollment
	existing    map[string]bool
	created     *models.Enrollment
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{enrollments: map[string]*models.Enrollment{}, existing: map[string]bool{}}
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return enrollment, nil
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: *enrollment, StudentName: "Alice"}, nil
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	return m.existing[userID+":"+courseID], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	m.created = enrollment
	m.enrollments[enrollment.ID] = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	enrollment, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	enrollment.Status = status
	return nil
}

func (m *mockEnrollmentRepo) Roster(ctx context.Context, batchID string) ([]models.EnrollmentRosterRow, error) {
	return nil, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

type mockBatchReader struct {
	batches map[string]*models.Batch
}

func (m *mockBatchReader) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	batch, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return batch, nil
}

func newEnrollmentServiceForTest(repo *mockEnrollmentRepo, users *mockUserReader, courses *mockCourseReader, batches *mockBatchReader) *EnrollmentService {
	return NewEnrollmentService(repo, users, courses, batches, nil, zap.NewNop())
}

func activeCourse(id string) *models.Course {
	return &models.Course{ID: id, Title: "Welding Fundamentals", Status: models.CourseStatusActive}
}

func TestEnrollmentServiceCreate(t *testing.T) {
	repo := newMockEnrollmentRepo()
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1", Active: true}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{}}
	svc := newEnrollmentServiceForTest(repo, users, courses, batches)

	detail, err := svc.Create(context.Background(), CreateEnrollmentRequest{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, detail.Status)
	require.NotNil(t, repo.created)
	assert.Equal(t, "user-1", repo.created.UserID)
}

func TestEnrollmentServiceCreateInactiveUser(t *testing.T) {
	repo := newMockEnrollmentRepo()
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1", Active: false}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	svc := newEnrollmentServiceForTest(repo, users, courses, &mockBatchReader{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateRegistrationClosed(t *testing.T) {
	end := time.Now().UTC().Add(-time.Hour)
	course := activeCourse("course-1")
	course.RegistrationEnd = &end

	repo := newMockEnrollmentRepo()
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1", Active: true}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": course}}
	svc := newEnrollmentServiceForTest(repo, users, courses, &mockBatchReader{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRegistrationClosed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateBatchCourseMismatch(t *testing.T) {
	repo := newMockEnrollmentRepo()
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1", Active: true}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"batch-1": {ID: "batch-1", CourseID: "course-other"}}}
	svc := newEnrollmentServiceForTest(repo, users, courses, batches)

	batchID := "batch-1"
	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{UserID: "user-1", CourseID: "course-1", BatchID: &batchID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateDuplicate(t *testing.T) {
	repo := newMockEnrollmentRepo()
	repo.existing["user-1:course-1"] = true
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1", Active: true}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	svc := newEnrollmentServiceForTest(repo, users, courses, &mockBatchReader{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceUpdateStatus(t *testing.T) {
	repo := newMockEnrollmentRepo()
	repo.enrollments["enr-1"] = &models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusPending}
	svc := newEnrollmentServiceForTest(repo, &mockUserReader{}, &mockCourseReader{}, &mockBatchReader{})

	detail, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "APPROVED"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, detail.Status)
}

func TestEnrollmentServiceUpdateStatusInvalid(t *testing.T) {
	repo := newMockEnrollmentRepo()
	repo.enrollments["enr-1"] = &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusPending}
	svc := newEnrollmentServiceForTest(repo, &mockUserReader{}, &mockCourseReader{}, &mockBatchReader{})

	_, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "SUSPENDED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
