/*
Package employer manages the employers and employees an advance is drawn
against: onboarding, risk assessments, payroll uploads and review runs.

KEY CONCEPTS:
  - Employer: A company enrolled in the programme, carrying its current
    composite risk score and the fee percentage derived from it
  - Employee: A worker identified within the employer by an employee code
  - RiskAssessment: One scored review of an employer (history is kept)
  - PayrollRecord: One month's upload; it produces an EmployeeAccrual per
    employee, which is what advance eligibility is checked against
  - ReviewRun: A pass of the scheduler that flags stale risk assessments

SEE ALSO:
  - service.go: Business operations
  - payroll.go: Upload evaluation
  - risk package: Scoring model
  - earnedwage package: Accrual arithmetic
*/
package employer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
)

// =============================================================================
// EMPLOYER
// =============================================================================

type Status string

const (
	StatusActive    Status = "active"
	StatusReviewDue Status = "review_due"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusReviewDue, StatusSuspended:
		return true
	}
	return false
}

type PayrollCycle string

const (
	CycleWeekly   PayrollCycle = "weekly"
	CycleBiWeekly PayrollCycle = "bi-weekly"
	CycleMonthly  PayrollCycle = "monthly"
)

func (c PayrollCycle) Valid() bool {
	switch c {
	case CycleWeekly, CycleBiWeekly, CycleMonthly:
		return true
	}
	return false
}

type Employer struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	RegistrationNumber   string           `json:"registration_number,omitempty"`
	Industry             string           `json:"industry"`
	Country              string           `json:"country"`
	Currency             generic.Currency `json:"currency"`
	PayrollCycle         PayrollCycle     `json:"payroll_cycle"`
	MaxAdvancePercentage decimal.Decimal  `json:"max_advance_percentage"`
	Status               Status           `json:"status"`

	// Set by the latest risk assessment; nil until the first one.
	RiskScore      *decimal.Decimal `json:"risk_score,omitempty"`
	RiskRating     risk.Letter      `json:"risk_rating,omitempty"`
	FeePercentage  *decimal.Decimal `json:"fee_percentage,omitempty"`
	LastAssessedAt *time.Time       `json:"last_assessed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID           string           `json:"id"`
	EmployerID   string           `json:"employer_id"`
	EmployeeCode string           `json:"employee_code"`
	Name         string           `json:"name"`
	Phone        string           `json:"phone,omitempty"`
	Email        string           `json:"email,omitempty"`
	Active       bool             `json:"active"`

	// Set by the latest employee assessment, or seeded at registration.
	RiskScore      *decimal.Decimal `json:"risk_score,omitempty"`
	RiskRating     risk.Letter      `json:"risk_rating,omitempty"`
	LastAssessedAt *time.Time       `json:"last_assessed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// RISK HISTORY
// =============================================================================

// RiskAssessment is one scored review. EmployeeID is set for employee
// assessments and empty for employer ones.
type RiskAssessment struct {
	ID         string                              `json:"id"`
	EmployerID string                              `json:"employer_id"`
	EmployeeID string                              `json:"employee_id,omitempty"`
	ModelName  string                              `json:"model"`
	Factors    map[risk.Category]risk.FactorScores `json:"factors"`
	Result     risk.Assessment                     `json:"result"`
	AssessedBy string                              `json:"assessed_by"`
	AssessedAt time.Time                           `json:"assessed_at"`
}

// =============================================================================
// PAYROLL
// =============================================================================

type PayrollRecord struct {
	ID            string          `json:"id"`
	EmployerID    string          `json:"employer_id"`
	CycleID       generic.CycleID `json:"month"`
	EmployeeCount int             `json:"employee_count"`
	TotalGross    decimal.Decimal `json:"total_gross"`
	TotalEarned   decimal.Decimal `json:"total_earned"`
	UploadedBy    string          `json:"uploaded_by"`
	UploadedAt    time.Time       `json:"uploaded_at"`
}

// EmployeeAccrual is an employee's accrual state for one cycle. The most
// recent cycle supersedes earlier ones.
type EmployeeAccrual struct {
	EmployeeID      string          `json:"employee_id"`
	EmployerID      string          `json:"employer_id"`
	CycleID         generic.CycleID `json:"month"`
	PayrollRecordID string          `json:"payroll_record_id"`
	GrossSalary     decimal.Decimal `json:"gross_salary"`
	DaysWorked      int             `json:"days_worked"`
	Deductions      decimal.Decimal `json:"deductions"`
	NetSalary       decimal.Decimal `json:"net_salary"`
	EarnedWages     decimal.Decimal `json:"earned_wages"`
	AdvanceLimit    decimal.Decimal `json:"advance_limit"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// =============================================================================
// REVIEW RUNS
// =============================================================================

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type ReviewRun struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Checked     int        `json:"checked"`
	MarkedDue   int        `json:"marked_due"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository persists employers and everything hanging off them.
// Getters return (nil, nil) when the record does not exist.
type Repository interface {
	CreateEmployer(ctx context.Context, e *Employer) error
	GetEmployer(ctx context.Context, id string) (*Employer, error)
	ListEmployers(ctx context.Context) ([]Employer, error)
	SetEmployerStatus(ctx context.Context, id string, status Status, at time.Time) error

	// MarkReviewDue moves an active employer assessed before staleBefore (or
	// never) to review_due in a single conditional write, reporting whether
	// it did.
	MarkReviewDue(ctx context.Context, id string, staleBefore, at time.Time) (bool, error)

	CreateEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context, employerID string) ([]Employee, error)
	SetEmployeeActive(ctx context.Context, id string, active bool) error

	// SaveAssessment records the assessment and moves the subject's current
	// score to it in one transaction, touching only the score columns.
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	LatestAssessment(ctx context.Context, employerID string) (*RiskAssessment, error)
	LatestEmployeeAssessment(ctx context.Context, employeeID string) (*RiskAssessment, error)

	// SavePayroll records the upload and upserts every accrual atomically.
	SavePayroll(ctx context.Context, rec *PayrollRecord, accruals []EmployeeAccrual) error
	ListPayroll(ctx context.Context, employerID string) ([]PayrollRecord, error)
	LatestAccrual(ctx context.Context, employeeID string) (*EmployeeAccrual, error)

	SaveReviewRun(ctx context.Context, run *ReviewRun) error
	ListReviewRuns(ctx context.Context, limit int) ([]ReviewRun, error)
}
