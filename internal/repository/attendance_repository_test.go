package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/edustack/institute-api/internal/models"
)

func TestAttendanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	timeIn := day.Add(9 * time.Hour)
	timeOut := day.Add(16*time.Hour + 45*time.Minute)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "batch_id", "user_id", "date", "time_in", "time_out", "total_hours", "status", "notes", "created_at", "updated_at"}).
		AddRow("att-1", "enr-1", "batch-1", "user-1", day, &timeIn, &timeOut, 7.75, models.AttendanceStatusPresent, nil, time.Now(), time.Now())
	mock.ExpectQuery("INSERT INTO attendance .+ ON CONFLICT \\(enrollment_id, date\\)").
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), &models.Attendance{
		EnrollmentID: "enr-1",
		BatchID:      "batch-1",
		UserID:       "user-1",
		Date:         day,
		TimeIn:       &timeIn,
		TimeOut:      &timeOut,
		TotalHours:   7.75,
		Status:       models.AttendanceStatusPresent,
	})
	require.NoError(t, err)
	require.Equal(t, "att-1", stored.ID)
	require.InDelta(t, 7.75, stored.TotalHours, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySummaryScopedToBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"total_hours", "present", "late", "absent", "excused", "total_records"}).
		AddRow(75.5, 9, 2, 1, 1, 13)
	mock.ExpectQuery("SELECT\\s+COALESCE\\(SUM\\(a.total_hours\\) FILTER").
		WithArgs("user-1", models.AttendanceStatusPresent, models.AttendanceStatusLate, models.AttendanceStatusAbsent, models.AttendanceStatusExcused, "batch-1").
		WillReturnRows(rows)

	summary, err := repo.Summary(context.Background(), "user-1", "batch-1")
	require.NoError(t, err)
	require.InDelta(t, 75.5, summary.TotalHours, 0.001)
	require.Equal(t, 13, summary.TotalRecords)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBatchReportKeepsUnrecordedStudents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	present := models.AttendanceStatusPresent
	rows := sqlmock.NewRows([]string{"enrollment_id", "user_id", "student_name", "date", "status", "total_hours", "notes"}).
		AddRow("enr-1", "user-1", "Alice", &day, &present, 7.75, nil).
		AddRow("enr-2", "user-2", "Bob", nil, nil, nil, nil)
	mock.ExpectQuery("LEFT JOIN attendance a ON").
		WithArgs("batch-1").
		WillReturnRows(rows)

	report, err := repo.BatchReport(context.Background(), "batch-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, report, 2)
	require.Nil(t, report[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
