package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/edustack/institute-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	batchID := "batch-1"
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "batch_id", "status", "enrolled_at", "created_at", "updated_at"}).
		AddRow("enr-1", "user-1", "course-1", &batchID, models.EnrollmentStatusActive, time.Now(), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, course_id, batch_id, status, enrolled_at, created_at, updated_at FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByID(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Enrollment{
		UserID:   "user-1",
		CourseID: "course-1",
	})
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"enrollment_id", "user_id", "student_name", "email", "status", "enrolled_at"}).
		AddRow("enr-1", "user-1", "Alice", "alice@example.com", models.EnrollmentStatusActive, time.Now()).
		AddRow("enr-2", "user-2", "Bob", "bob@example.com", models.EnrollmentStatusActive, time.Now())
	mock.ExpectQuery("SELECT e.id AS enrollment_id, e.user_id, u.full_name AS student_name").
		WithArgs("batch-1").
		WillReturnRows(rows)

	roster, err := repo.Roster(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "Alice", roster[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}
