package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/institute-api/internal/models"
)

// ErrDuplicateInstallment signals a (plan_id, installment_number) collision.
var ErrDuplicateInstallment = errors.New("installment slot already booked")

// PaymentRepository handles persistence of payment events.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// List returns payments filtered by the provided criteria.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := "FROM payments p"
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.PlanID != "" {
		where = append(where, fmt.Sprintf("p.plan_id = $%d", len(args)+1))
		args = append(args, filter.PlanID)
	}
	if filter.EnrollmentID != "" {
		where = append(where, fmt.Sprintf("p.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"created_at":         "p.created_at",
		"amount":             "p.amount",
		"installment_number": "p.installment_number",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "p.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT p.id, p.plan_id, p.enrollment_id, p.amount, p.payment_type, p.installment_number, p.slip_urls, p.transfer_date, p.status, p.created_at, p.updated_at
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, orderBy, order, size, offset)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	const query = `SELECT id, plan_id, enrollment_id, amount, payment_type, installment_number, slip_urls, transfer_date, status, created_at, updated_at FROM payments WHERE id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// InstallmentExists checks whether the installment slot is already booked.
func (r *PaymentRepository) InstallmentExists(ctx context.Context, planID string, installmentNumber int) (bool, error) {
	const query = `SELECT 1 FROM payments WHERE plan_id = $1 AND installment_number = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, planID, installmentNumber, models.PaymentStatusRejected); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check installment slot: %w", err)
	}
	return true, nil
}

// Create persists a new payment event in PENDING status.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	now := time.Now().UTC()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, plan_id, enrollment_id, amount, payment_type, installment_number, slip_urls, transfer_date, status, created_at, updated_at)
        VALUES (:id, :plan_id, :enrollment_id, :amount, :payment_type, :installment_number, :slip_urls, :transfer_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInstallment
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// UpdateStatusAndReconcile moves a payment to the given status and, inside
// the same transaction, reconciles the owning plan: paid_amount is recomputed
// as the sum over COMPLETED payments (never an incremental add, so a
// rejected-then-recreated payment cannot desynchronize the total), and the
// plan closes with paid_date set exactly when paid_amount >= amount. The plan
// row is locked first so two concurrent completions cannot read a stale sum.
func (r *PaymentRepository) UpdateStatusAndReconcile(ctx context.Context, paymentID string, status models.PaymentStatus) (*models.Payment, *models.PaymentPlan, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin payment reconcile: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	var payment models.Payment
	const loadPayment = `SELECT id, plan_id, enrollment_id, amount, payment_type, installment_number, slip_urls, transfer_date, status, created_at, updated_at
        FROM payments WHERE id = $1`
	if err := tx.GetContext(ctx, &payment, loadPayment, paymentID); err != nil {
		return nil, nil, err
	}

	var plan models.PaymentPlan
	const lockPlan = `SELECT id, enrollment_id, amount, installments, paid_amount, due_date, paid_date, status, created_at, updated_at
        FROM payment_plans WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &plan, lockPlan, payment.PlanID); err != nil {
		return nil, nil, fmt.Errorf("lock payment plan: %w", err)
	}

	const updatePayment = `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updatePayment, paymentID, status, now); err != nil {
		return nil, nil, fmt.Errorf("update payment status: %w", err)
	}
	payment.Status = status
	payment.UpdatedAt = now

	var paid float64
	const sumCompleted = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE plan_id = $1 AND status = $2`
	if err := tx.GetContext(ctx, &paid, sumCompleted, plan.ID, models.PaymentStatusCompleted); err != nil {
		return nil, nil, fmt.Errorf("sum completed payments: %w", err)
	}

	plan.PaidAmount = paid
	if paid >= plan.Amount {
		plan.Status = models.PaymentPlanStatusCompleted
		if plan.PaidDate == nil {
			plan.PaidDate = &now
		}
	} else {
		plan.Status = models.PaymentPlanStatusActive
		plan.PaidDate = nil
	}
	plan.UpdatedAt = now

	const updatePlan = `UPDATE payment_plans SET paid_amount = $2, status = $3, paid_date = $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updatePlan, plan.ID, plan.PaidAmount, plan.Status, plan.PaidDate, plan.UpdatedAt); err != nil {
		return nil, nil, fmt.Errorf("reconcile payment plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit payment reconcile: %w", err)
	}
	committed = true
	return &payment, &plan, nil
}

// ListByBatch returns the payment events of all enrollments in a batch,
// ordered by student name then booking time.
func (r *PaymentRepository) ListByBatch(ctx context.Context, batchID string) ([]models.BatchPaymentRow, error) {
	const query = `SELECT p.enrollment_id, u.full_name AS student_name, p.amount, p.payment_type, p.installment_number, p.status, p.transfer_date, p.created_at
        FROM payments p
        JOIN enrollments e ON e.id = p.enrollment_id
        JOIN users u ON u.id = e.user_id
        WHERE e.batch_id = $1
        ORDER BY u.full_name ASC, p.created_at ASC`
	var rows []models.BatchPaymentRow
	if err := r.db.SelectContext(ctx, &rows, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch payments: %w", err)
	}
	return rows, nil
}

// Delete removes a payment. COMPLETED payments are immutable; callers must
// check status before deleting.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}
