package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	"github.com/edustack/institute-api/pkg/export"
	"github.com/edustack/institute-api/pkg/storage"
)

type exportAttendanceSource interface {
	BatchReport(ctx context.Context, batchID string, from, to *time.Time) ([]models.BatchReportRow, error)
}

type exportRosterSource interface {
	Roster(ctx context.Context, batchID string) ([]models.EnrollmentRosterRow, error)
}

type exportPaymentSource interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.BatchPaymentRow, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	attendance exportAttendanceSource
	roster     exportRosterSource
	payments   exportPaymentSource
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(attendance exportAttendanceSource, roster exportRosterSource, payments exportPaymentSource, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		attendance: attendance,
		roster:     roster,
		payments:   payments,
		storage:    storage,
		csv:        csv,
		pdf:        pdf,
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	batchPart := sanitizeFilename(job.Params.BatchID)
	name := fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), batchPart, timestamp, job.Params.Format)
	return name
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	case models.ReportTypeRoster:
		return s.buildRosterDataset(ctx, job.Params)
	case models.ReportTypePayments:
		return s.buildPaymentDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.attendance.BatchReport(ctx, params.BatchID, params.DateFrom, params.DateTo)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		status := "NOT RECORDED"
		if row.Status != nil {
			status = string(*row.Status)
		}
		hours := ""
		if row.TotalHours != nil {
			hours = fmt.Sprintf("%.2f", *row.TotalHours)
		}
		dataRows = append(dataRows, map[string]string{
			"Student":  row.StudentName,
			"Date":     formatReportDate(row.Date),
			"Status":   status,
			"Hours":    hours,
			"Notes":    deref(row.Notes),
			"Batch ID": params.BatchID,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Date", "Status", "Hours", "Notes", "Batch ID"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Attendance Report %s", params.BatchID)
	return dataset, title, nil
}

func (s *ExportService) buildRosterDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.roster.Roster(ctx, params.BatchID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Student":     row.StudentName,
			"Email":       row.Email,
			"Status":      string(row.Status),
			"Enrolled At": row.EnrolledAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Email", "Status", "Enrolled At"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Batch Roster %s", params.BatchID)
	return dataset, title, nil
}

func (s *ExportService) buildPaymentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.payments.ListByBatch(ctx, params.BatchID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		installment := ""
		if row.InstallmentNumber != nil {
			installment = fmt.Sprintf("%d", *row.InstallmentNumber)
		}
		dataRows = append(dataRows, map[string]string{
			"Student":       row.StudentName,
			"Amount":        fmt.Sprintf("%.2f", row.Amount),
			"Type":          string(row.PaymentType),
			"Installment":   installment,
			"Status":        string(row.Status),
			"Transfer Date": formatReportDate(row.TransferDate),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Amount", "Type", "Installment", "Status", "Transfer Date"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Payment Report %s", params.BatchID)
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatReportDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
