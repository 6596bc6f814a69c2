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
	"github.com/edustack/institute-api/internal/repository"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

type mockBatchRepo struct {
	batches     map[string]*models.Batch
	enrollments map[string]bool
}

func (m *mockBatchRepo) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error) {
	return nil, 0, nil
}

func (m *mockBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	batch, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return batch, nil
}

func (m *mockBatchRepo) NextBatchNumber(ctx context.Context, courseID string) (int, error) {
	max := 0
	for _, batch := range m.batches {
		if batch.CourseID == courseID && batch.BatchNumber > max {
			max = batch.BatchNumber
		}
	}
	return max + 1, nil
}

func (m *mockBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	for _, existing := range m.batches {
		if existing.CourseID == batch.CourseID && existing.BatchNumber == batch.BatchNumber {
			return repository.ErrDuplicateBatchNumber
		}
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	m.batches[batch.ID] = batch
	return nil
}

func (m *mockBatchRepo) Update(ctx context.Context, batch *models.Batch) error {
	m.batches[batch.ID] = batch
	return nil
}

func (m *mockBatchRepo) HasEnrollments(ctx context.Context, batchID string) (bool, error) {
	return m.enrollments[batchID], nil
}

func (m *mockBatchRepo) Delete(ctx context.Context, id string) error {
	delete(m.batches, id)
	return nil
}

func newBatchServiceForTest(repo *mockBatchRepo, courses *mockCourseReader) *BatchService {
	return NewBatchService(repo, courses, nil, zap.NewNop())
}

func batchWindow() (time.Time, time.Time) {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
}

func TestBatchServiceCreateAssignsNextNumber(t *testing.T) {
	repo := &mockBatchRepo{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-1", BatchNumber: 3},
	}, enrollments: map[string]bool{}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	svc := newBatchServiceForTest(repo, courses)

	start, end := batchWindow()
	batch, err := svc.Create(context.Background(), CreateBatchRequest{
		CourseID:    "course-1",
		StartDate:   start,
		EndDate:     end,
		MaxStudents: 30,
		TotalHours:  150,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, batch.BatchNumber)
	assert.Equal(t, models.BatchStatusActive, batch.Status)
}

func TestBatchServiceCreateDuplicateNumber(t *testing.T) {
	repo := &mockBatchRepo{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-1", BatchNumber: 2},
	}, enrollments: map[string]bool{}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	svc := newBatchServiceForTest(repo, courses)

	start, end := batchWindow()
	two := 2
	_, err := svc.Create(context.Background(), CreateBatchRequest{
		CourseID:    "course-1",
		BatchNumber: &two,
		StartDate:   start,
		EndDate:     end,
		MaxStudents: 30,
		TotalHours:  150,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceUpdateRejectsShrinkBelowEnrollment(t *testing.T) {
	repo := &mockBatchRepo{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-1", BatchNumber: 1,
			StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
			MaxStudents: 30, CurrentStudents: 12, Status: models.BatchStatusActive},
	}, enrollments: map[string]bool{}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	svc := newBatchServiceForTest(repo, courses)

	ten := 10
	_, err := svc.Update(context.Background(), "batch-1", UpdateBatchRequest{MaxStudents: &ten})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceDeleteWithEnrollments(t *testing.T) {
	repo := &mockBatchRepo{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-1", BatchNumber: 1},
	}, enrollments: map[string]bool{"batch-1": true}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	svc := newBatchServiceForTest(repo, courses)

	err := svc.Delete(context.Background(), "batch-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}
