package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/edustack/institute-api/internal/models"
)

func approvalFixture() *models.StudentApplication {
	return &models.StudentApplication{
		ID:       "app-1",
		UserID:   "user-1",
		CourseID: "course-1",
		BatchID:  "batch-1",
		Status:   models.ApplicationStatusPending,
	}
}

func TestApplicationRepositoryApprove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE student_applications SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE batches SET current_students = current_students + 1, updated_at = $2 WHERE id = $1 AND current_students < max_students RETURNING current_students")).
		WillReturnRows(sqlmock.NewRows([]string{"current_students"}).AddRow(12))
	mock.ExpectCommit()

	enrollment, err := repo.Approve(context.Background(), approvalFixture(), "admin-1", nil, true)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Equal(t, "user-1", enrollment.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryApproveBatchFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE student_applications SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE batches SET current_students").
		WillReturnRows(sqlmock.NewRows([]string{"current_students"}))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), approvalFixture(), "admin-1", nil, true)
	require.ErrorIs(t, err, ErrBatchFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryApproveAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE student_applications SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), approvalFixture(), "admin-1", nil, true)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryFindByIDWithoutDocuments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "batch_id", "personal_info", "documents", "status", "reviewed_by", "review_notes", "reviewed_at", "created_at", "updated_at"}).
		AddRow("app-1", "user-1", "course-1", "batch-1", []byte(`{"phone":"555-0101"}`), nil, models.ApplicationStatusPending, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, user_id, course_id, batch_id, personal_info, documents").
		WithArgs("app-1").
		WillReturnRows(rows)

	application, err := repo.FindByID(context.Background(), "app-1")
	require.NoError(t, err)
	require.Equal(t, models.JSONDocument(`{"phone":"555-0101"}`), application.PersonalInfo)
	require.Empty(t, application.Documents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryExistsNonTerminal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_applications WHERE user_id = $1 AND course_id = $2 AND status <> $3 LIMIT 1")).
		WithArgs("user-1", "course-1", models.ApplicationStatusRejected).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	open, err := repo.ExistsNonTerminal(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.False(t, open)
	require.NoError(t, mock.ExpectationsWereMet())
}
