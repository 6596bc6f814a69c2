package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/institute-api/internal/models"
)

// ErrDuplicatePaymentPlan signals that the enrollment already owns a plan.
var ErrDuplicatePaymentPlan = errors.New("payment plan already exists for enrollment")

// PaymentPlanRepository handles persistence of installment plans.
type PaymentPlanRepository struct {
	db *sqlx.DB
}

// NewPaymentPlanRepository constructs the repository.
func NewPaymentPlanRepository(db *sqlx.DB) *PaymentPlanRepository {
	return &PaymentPlanRepository{db: db}
}

// FindByID returns a plan by its ID.
func (r *PaymentPlanRepository) FindByID(ctx context.Context, id string) (*models.PaymentPlan, error) {
	const query = `SELECT id, enrollment_id, amount, installments, paid_amount, due_date, paid_date, status, created_at, updated_at FROM payment_plans WHERE id = $1`
	var plan models.PaymentPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByEnrollment returns the plan owned by an enrollment, if any.
func (r *PaymentPlanRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.PaymentPlan, error) {
	const query = `SELECT id, enrollment_id, amount, installments, paid_amount, due_date, paid_date, status, created_at, updated_at FROM payment_plans WHERE enrollment_id = $1`
	var plan models.PaymentPlan
	if err := r.db.GetContext(ctx, &plan, query, enrollmentID); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Create persists a new installment plan. An enrollment owns at most one
// plan; a second insert surfaces as ErrDuplicatePaymentPlan.
func (r *PaymentPlanRepository) Create(ctx context.Context, plan *models.PaymentPlan) error {
	now := time.Now().UTC()
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Status == "" {
		plan.Status = models.PaymentPlanStatusPending
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	const query = `INSERT INTO payment_plans (id, enrollment_id, amount, installments, paid_amount, due_date, paid_date, status, created_at, updated_at)
        VALUES (:id, :enrollment_id, :amount, :installments, :paid_amount, :due_date, :paid_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePaymentPlan
		}
		return fmt.Errorf("create payment plan: %w", err)
	}
	return nil
}

// HasPayments reports whether any payment references the plan.
func (r *PaymentPlanRepository) HasPayments(ctx context.Context, planID string) (bool, error) {
	const query = `SELECT 1 FROM payments WHERE plan_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, planID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check plan payments: %w", err)
	}
	return true, nil
}

// Delete removes a plan. Callers must confirm no payment references it.
func (r *PaymentPlanRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payment_plans WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete payment plan: %w", err)
	}
	return nil
}
