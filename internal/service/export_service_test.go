package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	"github.com/edustack/institute-api/pkg/storage"
)

type attendanceSourceStub struct {
	rows []models.BatchReportRow
}

func (s attendanceSourceStub) BatchReport(ctx context.Context, batchID string, from, to *time.Time) ([]models.BatchReportRow, error) {
	return s.rows, nil
}

type rosterSourceStub struct {
	rows []models.EnrollmentRosterRow
}

func (s rosterSourceStub) Roster(ctx context.Context, batchID string) ([]models.EnrollmentRosterRow, error) {
	return s.rows, nil
}

type paymentSourceStub struct {
	rows []models.BatchPaymentRow
}

func (s paymentSourceStub) ListByBatch(ctx context.Context, batchID string) ([]models.BatchPaymentRow, error) {
	return s.rows, nil
}

func newTestExportService(t *testing.T, attendance attendanceSourceStub, roster rosterSourceStub, payments paymentSourceStub) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(attendance, roster, payments, store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), nil, nil)
}

func TestExportServiceGenerateAttendanceCSV(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	present := models.AttendanceStatusPresent
	hours := 7.75
	svc := newTestExportService(t, attendanceSourceStub{rows: []models.BatchReportRow{
		{EnrollmentID: "enr-1", UserID: "user-1", StudentName: "Alice", Date: &date, Status: &present, TotalHours: &hours},
		{EnrollmentID: "enr-2", UserID: "user-2", StudentName: "Bob"},
	}}, rosterSourceStub{}, paymentSourceStub{})

	job := &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeAttendance,
		Params: models.ReportJobParams{BatchID: "batch-1", Format: models.ReportFormatCSV},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	content := string(payload)
	require.Contains(t, content, "Alice")
	require.Contains(t, content, "7.75")
	require.Contains(t, content, "NOT RECORDED")
}

func TestExportServiceGenerateRosterPDF(t *testing.T) {
	svc := newTestExportService(t, attendanceSourceStub{}, rosterSourceStub{rows: []models.EnrollmentRosterRow{
		{EnrollmentID: "enr-1", UserID: "user-1", StudentName: "Alice", Email: "alice@example.com", Status: models.EnrollmentStatusApproved, EnrolledAt: time.Now()},
	}}, paymentSourceStub{})

	job := &models.ReportJob{
		ID:     "job-2",
		Type:   models.ReportTypeRoster,
		Params: models.ReportJobParams{BatchID: "batch-1", Format: models.ReportFormatPDF},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))

	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	require.Equal(t, "job-2", jobID)
	require.Equal(t, result.RelativePath, relPath)
}

func TestExportServiceGeneratePaymentsCSV(t *testing.T) {
	installment := 2
	transfer := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestExportService(t, attendanceSourceStub{}, rosterSourceStub{}, paymentSourceStub{rows: []models.BatchPaymentRow{
		{EnrollmentID: "enr-1", StudentName: "Alice", Amount: 3000, PaymentType: models.PaymentTypeInstallment, InstallmentNumber: &installment, Status: models.PaymentStatusCompleted, TransferDate: &transfer},
	}})

	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportTypePayments,
		Params: models.ReportJobParams{BatchID: "batch-1", Format: models.ReportFormatCSV},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Contains(t, string(payload), "Alice")
}

func TestExportServiceRejectsUnknownType(t *testing.T) {
	svc := newTestExportService(t, attendanceSourceStub{}, rosterSourceStub{}, paymentSourceStub{})
	_, err := svc.Generate(context.Background(), &models.ReportJob{
		ID:     "job-4",
		Type:   models.ReportType("unknown"),
		Params: models.ReportJobParams{BatchID: "batch-1", Format: models.ReportFormatCSV},
	})
	require.Error(t, err)
}
