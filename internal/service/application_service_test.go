package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

func newApplicationServiceForTest(repo *mockApplicationRepo, courses *mockCourseReader, batches *mockBatchReader) *ApplicationService {
	return NewApplicationService(repo, courses, batches, nil, zap.NewNop())
}

func TestApplicationServiceSubmit(t *testing.T) {
	repo := newMockApplicationRepo()
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-1", MaxStudents: 20, Status: models.BatchStatusActive},
	}}
	svc := newApplicationServiceForTest(repo, courses, batches)

	detail, err := svc.Submit(context.Background(), "user-1", SubmitApplicationRequest{CourseID: "course-1", BatchID: "batch-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, detail.Status)
	assert.Equal(t, "user-1", detail.UserID)
}

func TestApplicationServiceSubmitFullBatchAccepted(t *testing.T) {
	repo := newMockApplicationRepo()
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-1", MaxStudents: 1, CurrentStudents: 1, Status: models.BatchStatusActive},
	}}
	svc := newApplicationServiceForTest(repo, courses, batches)

	detail, err := svc.Submit(context.Background(), "user-1", SubmitApplicationRequest{CourseID: "course-1", BatchID: "batch-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, detail.Status)
}

func TestApplicationServiceSubmitInactiveCourse(t *testing.T) {
	course := activeCourse("course-1")
	course.Status = models.CourseStatusInactive
	repo := newMockApplicationRepo()
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": course}}
	svc := newApplicationServiceForTest(repo, courses, &mockBatchReader{})

	_, err := svc.Submit(context.Background(), "user-1", SubmitApplicationRequest{CourseID: "course-1", BatchID: "batch-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSubmitBatchMismatch(t *testing.T) {
	repo := newMockApplicationRepo()
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-other", Status: models.BatchStatusActive},
	}}
	svc := newApplicationServiceForTest(repo, courses, batches)

	_, err := svc.Submit(context.Background(), "user-1", SubmitApplicationRequest{CourseID: "course-1", BatchID: "batch-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSubmitDuplicateOpenApplication(t *testing.T) {
	repo := newMockApplicationRepo()
	repo.nonTerminal["user-1:course-1"] = true
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{
		"batch-1": {ID: "batch-1", CourseID: "course-1", MaxStudents: 20, Status: models.BatchStatusActive},
	}}
	svc := newApplicationServiceForTest(repo, courses, batches)

	_, err := svc.Submit(context.Background(), "user-1", SubmitApplicationRequest{CourseID: "course-1", BatchID: "batch-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSubmitUnknownBatch(t *testing.T) {
	repo := newMockApplicationRepo()
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": activeCourse("course-1")}}
	svc := newApplicationServiceForTest(repo, courses, &mockBatchReader{batches: map[string]*models.Batch{}})

	_, err := svc.Submit(context.Background(), "user-1", SubmitApplicationRequest{CourseID: "course-1", BatchID: "batch-missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
