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

type mockPlanRepo struct {
	plans    map[string]*models.PaymentPlan
	payments *mockPaymentRepo
}

func (m *mockPlanRepo) FindByID(ctx context.Context, id string) (*models.PaymentPlan, error) {
	plan, ok := m.plans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return plan, nil
}

func (m *mockPlanRepo) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.PaymentPlan, error) {
	for _, plan := range m.plans {
		if plan.EnrollmentID == enrollmentID {
			return plan, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPlanRepo) Create(ctx context.Context, plan *models.PaymentPlan) error {
	for _, existing := range m.plans {
		if existing.EnrollmentID == plan.EnrollmentID {
			return repository.ErrDuplicatePaymentPlan
		}
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	m.plans[plan.ID] = plan
	return nil
}

func (m *mockPlanRepo) HasPayments(ctx context.Context, planID string) (bool, error) {
	for _, payment := range m.payments.store {
		if payment.PlanID == planID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPlanRepo) Delete(ctx context.Context, id string) error {
	delete(m.plans, id)
	return nil
}

type mockPaymentRepo struct {
	store map[string]*models.Payment
	plans *mockPlanRepo
}

func (m *mockPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	return nil, 0, nil
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	payment, ok := m.store[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return payment, nil
}

func (m *mockPaymentRepo) InstallmentExists(ctx context.Context, planID string, installmentNumber int) (bool, error) {
	for _, payment := range m.store {
		if payment.PlanID == planID && payment.InstallmentNumber != nil && *payment.InstallmentNumber == installmentNumber {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	m.store[payment.ID] = payment
	return nil
}

// UpdateStatusAndReconcile mirrors the SQL transaction: the plan's paid
// amount is recomputed from COMPLETED payments and the plan flips to
// COMPLETED with a paid date once the target amount is covered.
func (m *mockPaymentRepo) UpdateStatusAndReconcile(ctx context.Context, paymentID string, status models.PaymentStatus) (*models.Payment, *models.PaymentPlan, error) {
	payment, ok := m.store[paymentID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	payment.Status = status
	plan := m.plans.plans[payment.PlanID]
	var paid float64
	for _, p := range m.store {
		if p.PlanID == plan.ID && p.Status == models.PaymentStatusCompleted {
			paid += p.Amount
		}
	}
	plan.PaidAmount = paid
	if paid >= plan.Amount {
		plan.Status = models.PaymentPlanStatusCompleted
		now := time.Now().UTC()
		plan.PaidDate = &now
	} else if paid > 0 {
		plan.Status = models.PaymentPlanStatusActive
	}
	return payment, plan, nil
}

func (m *mockPaymentRepo) Delete(ctx context.Context, id string) error {
	delete(m.store, id)
	return nil
}

func newPaymentFixture() (*mockPlanRepo, *mockPaymentRepo, *mockEnrollmentReader) {
	plans := &mockPlanRepo{plans: map[string]*models.PaymentPlan{}}
	payments := &mockPaymentRepo{store: map[string]*models.Payment{}}
	plans.payments = payments
	payments.plans = plans
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusApproved},
	}}
	return plans, payments, enrollments
}

func newPaymentServiceForTest(plans *mockPlanRepo, payments *mockPaymentRepo, enrollments *mockEnrollmentReader) *PaymentService {
	return NewPaymentService(plans, payments, enrollments, nil, zap.NewNop())
}

func TestPaymentServiceCreatePlan(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1",
		Amount:       9000,
		Installments: 3,
		DueDate:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPlanStatusPending, plan.Status)
	assert.Equal(t, 3, plan.Installments)
}

func TestPaymentServiceCreatePlanUnapprovedEnrollment(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	enrollments.enrollments["enr-1"].Status = models.EnrollmentStatusPending
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	_, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1",
		Amount:       9000,
		Installments: 3,
		DueDate:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceCreatePlanDuplicate(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	req := CreatePaymentPlanRequest{
		EnrollmentID: "enr-1",
		Amount:       9000,
		Installments: 3,
		DueDate:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := svc.CreatePlan(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.CreatePlan(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceInstallmentLifecycle(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1",
		Amount:       9000,
		Installments: 3,
		DueDate:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	for n := 1; n <= 3; n++ {
		number := n
		payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
			EnrollmentID:      "enr-1",
			PlanID:            plan.ID,
			Amount:            3000,
			PaymentType:       "INSTALLMENT",
			InstallmentNumber: &number,
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPending, payment.Status)

		result, err := svc.UpdatePaymentStatus(context.Background(), payment.ID, UpdatePaymentStatusRequest{Status: "COMPLETED"})
		require.NoError(t, err)
		assert.InDelta(t, float64(n)*3000, result.Plan.PaidAmount, 0.001)
	}

	assert.Equal(t, models.PaymentPlanStatusCompleted, plan.Status)
	require.NotNil(t, plan.PaidDate)
}

func TestPaymentServiceInstallmentSlotConflict(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1", Amount: 9000, Installments: 3, DueDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	one := 1
	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 3000, PaymentType: "INSTALLMENT", InstallmentNumber: &one,
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 3000, PaymentType: "INSTALLMENT", InstallmentNumber: &one,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceInstallmentNumberOutOfRange(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1", Amount: 9000, Installments: 3, DueDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	four := 4
	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 3000, PaymentType: "INSTALLMENT", InstallmentNumber: &four,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceFullPaymentClearsInstallmentNumber(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1", Amount: 9000, Installments: 1, DueDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	stray := 5
	payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 9000, PaymentType: "FULL", InstallmentNumber: &stray,
	})
	require.NoError(t, err)
	assert.Nil(t, payment.InstallmentNumber)
}

func TestPaymentServiceRecordOnSettledPlan(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1", Amount: 9000, Installments: 1, DueDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 9000, PaymentType: "FULL",
	})
	require.NoError(t, err)
	_, err = svc.UpdatePaymentStatus(context.Background(), payment.ID, UpdatePaymentStatusRequest{Status: "COMPLETED"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 1000, PaymentType: "FULL",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceUpdateStatusRequiresPending(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1", Amount: 9000, Installments: 1, DueDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 9000, PaymentType: "FULL",
	})
	require.NoError(t, err)

	_, err = svc.UpdatePaymentStatus(context.Background(), payment.ID, UpdatePaymentStatusRequest{Status: "COMPLETED"})
	require.NoError(t, err)
	_, err = svc.UpdatePaymentStatus(context.Background(), payment.ID, UpdatePaymentStatusRequest{Status: "REJECTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceDeleteGuards(t *testing.T) {
	plans, payments, enrollments := newPaymentFixture()
	svc := newPaymentServiceForTest(plans, payments, enrollments)

	plan, err := svc.CreatePlan(context.Background(), CreatePaymentPlanRequest{
		EnrollmentID: "enr-1", Amount: 9000, Installments: 1, DueDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		EnrollmentID: "enr-1", PlanID: plan.ID, Amount: 9000, PaymentType: "FULL",
	})
	require.NoError(t, err)

	err = svc.DeletePlan(context.Background(), plan.ID)
	require.Error(t, err, "plan with payments is protected")

	_, err = svc.UpdatePaymentStatus(context.Background(), payment.ID, UpdatePaymentStatusRequest{Status: "COMPLETED"})
	require.NoError(t, err)
	err = svc.DeletePayment(context.Background(), payment.ID)
	require.Error(t, err, "completed payment is immutable")
}
