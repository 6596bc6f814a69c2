package models

import "time"

// PaymentPlanStatus represents the settlement state of an installment plan.
type PaymentPlanStatus string

const (
	PaymentPlanStatusPending   PaymentPlanStatus = "PENDING"
	PaymentPlanStatusActive    PaymentPlanStatus = "ACTIVE"
	PaymentPlanStatusCompleted PaymentPlanStatus = "COMPLETED"
)

// Valid returns true when the status is a supported value.
func (s PaymentPlanStatus) Valid() bool {
	switch s {
	case PaymentPlanStatusPending, PaymentPlanStatusActive, PaymentPlanStatusCompleted:
		return true
	default:
		return false
	}
}

// PaymentStatus represents the state of a single payment event.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusRejected:
		return true
	default:
		return false
	}
}

// PaymentType distinguishes a one-off settlement from an installment.
type PaymentType string

const (
	PaymentTypeFull        PaymentType = "FULL"
	PaymentTypeInstallment PaymentType = "INSTALLMENT"
)

// Valid returns true when the type is a supported value.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeFull, PaymentTypeInstallment:
		return true
	default:
		return false
	}
}

// PaymentPlan is an installment schedule tied to one enrollment. PaidAmount
// always equals the sum of the plan's COMPLETED payments; it is recomputed
// from source on every completion rather than incremented.
type PaymentPlan struct {
	ID           string            `db:"id" json:"id"`
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	Amount       float64           `db:"amount" json:"amount"`
	Installments int               `db:"installments" json:"installments"`
	PaidAmount   float64           `db:"paid_amount" json:"paid_amount"`
	DueDate      time.Time         `db:"due_date" json:"due_date"`
	PaidDate     *time.Time        `db:"paid_date" json:"paid_date,omitempty"`
	Status       PaymentPlanStatus `db:"status" json:"status"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// Payment is a single payment event against a plan. InstallmentNumber is
// 1-based and unique per plan for INSTALLMENT payments. SlipURLs holds
// opaque document references; the core never opens them.
type Payment struct {
	ID                string          `db:"id" json:"id"`
	PlanID            string          `db:"plan_id" json:"plan_id"`
	EnrollmentID      string          `db:"enrollment_id" json:"enrollment_id"`
	Amount            float64         `db:"amount" json:"amount"`
	PaymentType       PaymentType     `db:"payment_type" json:"payment_type"`
	InstallmentNumber *int            `db:"installment_number" json:"installment_number,omitempty"`
	SlipURLs          JSONDocument  `db:"slip_urls" json:"slip_urls,omitempty"`
	TransferDate      *time.Time      `db:"transfer_date" json:"transfer_date,omitempty"`
	Status            PaymentStatus   `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentDetail inlines the plan and enrollment the payment belongs to.
type PaymentDetail struct {
	Payment
	Plan       PaymentPlan `json:"plan"`
	Enrollment Enrollment  `json:"enrollment"`
}

// BatchPaymentRow is one payment event of a batch member, used by exports.
type BatchPaymentRow struct {
	EnrollmentID      string        `db:"enrollment_id" json:"enrollment_id"`
	StudentName       string        `db:"student_name" json:"student_name"`
	Amount            float64       `db:"amount" json:"amount"`
	PaymentType       PaymentType   `db:"payment_type" json:"payment_type"`
	InstallmentNumber *int          `db:"installment_number" json:"installment_number,omitempty"`
	Status            PaymentStatus `db:"status" json:"status"`
	TransferDate      *time.Time    `db:"transfer_date" json:"transfer_date,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// PaymentFilter provides filters for listing payments.
type PaymentFilter struct {
	PlanID       string
	EnrollmentID string
	Status       PaymentStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
