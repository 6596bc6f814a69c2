package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/institute-api/internal/models"
	"github.com/edustack/institute-api/internal/repository"
	appErrors "github.com/edustack/institute-api/pkg/errors"
)

type paymentPlanRepository interface {
	FindByID(ctx context.Context, id string) (*models.PaymentPlan, error)
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.PaymentPlan, error)
	Create(ctx context.Context, plan *models.PaymentPlan) error
	HasPayments(ctx context.Context, planID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	InstallmentExists(ctx context.Context, planID string, installmentNumber int) (bool, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatusAndReconcile(ctx context.Context, paymentID string, status models.PaymentStatus) (*models.Payment, *models.PaymentPlan, error)
	Delete(ctx context.Context, id string) error
}

// CreatePaymentPlanRequest opens an installment plan for an enrollment.
type CreatePaymentPlanRequest struct {
	EnrollmentID string    `json:"enrollment_id" validate:"required"`
	Amount       float64   `json:"amount" validate:"required,gt=0"`
	Installments int       `json:"installments" validate:"required,min=1"`
	DueDate      time.Time `json:"due_date" validate:"required"`
}

// RecordPaymentRequest books a payment event against a plan. New payments
// always start PENDING.
type RecordPaymentRequest struct {
	EnrollmentID      string          `json:"enrollment_id" validate:"required"`
	PlanID            string          `json:"plan_id" validate:"required"`
	Amount            float64         `json:"amount" validate:"required,gt=0"`
	PaymentType       string          `json:"payment_type" validate:"required"`
	InstallmentNumber *int            `json:"installment_number"`
	SlipURLs          models.JSONDocument `json:"slip_urls"`
	TransferDate      *time.Time      `json:"transfer_date"`
}

// UpdatePaymentStatusRequest moves a payment out of PENDING.
type UpdatePaymentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// PaymentUpdateResult carries the payment together with its reconciled plan.
type PaymentUpdateResult struct {
	Payment *models.Payment     `json:"payment"`
	Plan    *models.PaymentPlan `json:"plan"`
}

// PaymentService manages installment plans and their payment ledger.
type PaymentService struct {
	plans       paymentPlanRepository
	payments    paymentRepository
	enrollments enrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(plans paymentPlanRepository, payments paymentRepository, enrollments enrollmentReader, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{plans: plans, payments: payments, enrollments: enrollments, validator: validate, logger: logger}
}

// CreatePlan opens a plan for an APPROVED enrollment. An enrollment owns at
// most one plan.
func (s *PaymentService) CreatePlan(ctx context.Context, req CreatePaymentPlanRequest) (*models.PaymentPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment plan payload")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not approved")
	}

	plan := &models.PaymentPlan{
		EnrollmentID: req.EnrollmentID,
		Amount:       req.Amount,
		Installments: req.Installments,
		DueDate:      req.DueDate,
		Status:       models.PaymentPlanStatusPending,
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentPlan) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment already has a payment plan")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment plan")
	}
	s.logger.Info("payment plan created",
		zap.String("plan_id", plan.ID),
		zap.String("enrollment_id", plan.EnrollmentID),
		zap.Float64("amount", plan.Amount),
		zap.Int("installments", plan.Installments))
	return plan, nil
}

// GetPlan returns a plan by ID.
func (s *PaymentService) GetPlan(ctx context.Context, id string) (*models.PaymentPlan, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment plan")
	}
	return plan, nil
}

// GetPlanByEnrollment returns the plan owned by an enrollment.
func (s *PaymentService) GetPlanByEnrollment(ctx context.Context, enrollmentID string) (*models.PaymentPlan, error) {
	plan, err := s.plans.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment plan")
	}
	return plan, nil
}

// DeletePlan removes a plan that has no payments under it.
func (s *PaymentService) DeletePlan(ctx context.Context, id string) error {
	if _, err := s.GetPlan(ctx, id); err != nil {
		return err
	}
	hasPayments, err := s.plans.HasPayments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check plan payments")
	}
	if hasPayments {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "payment plan has payments and cannot be deleted")
	}
	if err := s.plans.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment plan")
	}
	return nil
}

// ListPayments returns payments with pagination metadata.
func (s *PaymentService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetPayment returns a payment by ID.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// RecordPayment books a new PENDING payment event. INSTALLMENT payments must
// name a free slot in [1, plan.installments].
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	paymentType := models.PaymentType(req.PaymentType)
	if !paymentType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment type")
	}
	plan, err := s.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.EnrollmentID != req.EnrollmentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment plan does not belong to enrollment")
	}
	if plan.Status == models.PaymentPlanStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment plan is already settled")
	}

	if paymentType == models.PaymentTypeInstallment {
		if req.InstallmentNumber == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "installment_number is required for installment payments")
		}
		n := *req.InstallmentNumber
		if n < 1 || n > plan.Installments {
			return nil, appErrors.Clone(appErrors.ErrValidation, "installment_number is out of range")
		}
		taken, err := s.payments.InstallmentExists(ctx, plan.ID, n)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check installment slot")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "installment slot already booked")
		}
	} else {
		req.InstallmentNumber = nil
	}

	payment := &models.Payment{
		PlanID:            plan.ID,
		EnrollmentID:      req.EnrollmentID,
		Amount:            req.Amount,
		PaymentType:       paymentType,
		InstallmentNumber: req.InstallmentNumber,
		SlipURLs:          req.SlipURLs,
		TransferDate:      req.TransferDate,
		Status:            models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicateInstallment) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "installment slot already booked")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	return payment, nil
}

// UpdatePaymentStatus moves a PENDING payment to COMPLETED or REJECTED and
// reconciles the owning plan in the same transaction.
func (s *PaymentService) UpdatePaymentStatus(ctx context.Context, id string, req UpdatePaymentStatusRequest) (*PaymentUpdateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	status := models.PaymentStatus(req.Status)
	if status != models.PaymentStatusCompleted && status != models.PaymentStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment status must be COMPLETED or REJECTED")
	}
	payment, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment is no longer pending")
	}

	updated, plan, err := s.payments.UpdateStatusAndReconcile(ctx, id, status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}
	s.logger.Info("payment reconciled",
		zap.String("payment_id", updated.ID),
		zap.String("plan_id", plan.ID),
		zap.String("payment_status", string(updated.Status)),
		zap.Float64("paid_amount", plan.PaidAmount),
		zap.String("plan_status", string(plan.Status)))
	return &PaymentUpdateResult{Payment: updated, Plan: plan}, nil
}

// DeletePayment removes a payment event. COMPLETED payments are immutable.
func (s *PaymentService) DeletePayment(ctx context.Context, id string) error {
	payment, err := s.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "completed payments cannot be deleted")
	}
	if err := s.payments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}
	return nil
}
