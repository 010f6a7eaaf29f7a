/*
Package advance runs the wage advance lifecycle on top of the money ledger.

STATE MACHINE:

	pending ──approve──► approved ──disburse──► disbursed ──repay──► repaid
	   │
	   └──reject──► rejected

LEDGER EFFECTS:
  request   TxHold       +amount  (reserves the limit)
  reject    TxReversal   -amount
  repay     TxRepayment  -amount  (limit released for the cycle)

  available = advance limit - drawn
  An advance must also fit within the earned wages not yet drawn.

PRICING:
  The fee percentage comes from risk.FeeFromScore, applied to the employer
  CRS or to the blend of employer and employee CRS (FeeBasis). Fee and net
  amounts come from earnedwage.Quote.
*/
package advance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/generic"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDisbursed Status = "disbursed"
	StatusRepaid    Status = "repaid"
	StatusRejected  Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusDisbursed},
	StatusDisbursed: {StatusRepaid},
}

// CanTransition reports whether an advance may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

type DisbursementMethod string

const (
	MethodMobileMoney  DisbursementMethod = "mobile_money"
	MethodBankTransfer DisbursementMethod = "bank_transfer"
)

func (m DisbursementMethod) Valid() bool {
	return m == MethodMobileMoney || m == MethodBankTransfer
}

type FeeBasis string

const (
	// FeeBasisEmployer prices on the employer CRS alone.
	FeeBasisEmployer FeeBasis = "employer"
	// FeeBasisBlended prices on the mean of employer and employee CRS.
	FeeBasisBlended FeeBasis = "blended"
)

func (b FeeBasis) Valid() bool {
	return b == FeeBasisEmployer || b == FeeBasisBlended
}

// =============================================================================
// ADVANCE
// =============================================================================

type Advance struct {
	ID            string             `json:"id"`
	EmployeeID    string             `json:"employee_id"`
	EmployerID    string             `json:"employer_id"`
	CycleID       generic.CycleID    `json:"month"`
	Currency      generic.Currency   `json:"currency"`
	Amount        decimal.Decimal    `json:"amount"`
	RiskScore     decimal.Decimal    `json:"risk_score"`
	FeePercentage decimal.Decimal    `json:"fee_percentage"`
	FeeAmount     decimal.Decimal    `json:"fee_amount"`
	NetAmount     decimal.Decimal    `json:"net_amount"`
	Method        DisbursementMethod `json:"disbursement_method"`
	Reason        string             `json:"reason,omitempty"`
	Status        Status             `json:"status"`

	DecidedBy       string     `json:"decided_by,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	DisbursementRef string     `json:"disbursement_reference,omitempty"`
	DisbursedAt     *time.Time `json:"disbursed_at,omitempty"`
	RepaidAt        *time.Time `json:"repaid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligibility is the employee state an advance is checked against.
type Eligibility struct {
	EmployeeID     string
	EmployerID     string
	EmployerActive bool
	EmployeeActive bool
	CycleID        generic.CycleID
	Currency       generic.Currency
	EarnedWages    decimal.Decimal
	AdvanceLimit   decimal.Decimal
	EmployerScore  *decimal.Decimal
	EmployeeScore  *decimal.Decimal
}

// Balance is an employee's advance position for the current cycle.
type Balance struct {
	EmployeeID    string           `json:"employee_id"`
	CycleID       generic.CycleID  `json:"month"`
	Currency      generic.Currency `json:"currency"`
	EarnedWages   decimal.Decimal  `json:"earned_wages"`
	AdvanceLimit  decimal.Decimal  `json:"advance_limit"`
	Drawn         decimal.Decimal  `json:"drawn"`
	Available     decimal.Decimal  `json:"available"`
	RiskScore     decimal.Decimal  `json:"risk_score"`
	FeePercentage decimal.Decimal  `json:"fee_percentage"`
}

// Quote is a priced advance plus the balance it was checked against.
type Quote struct {
	earnedwage.AdvanceQuote
	Balance Balance `json:"balance"`
}

// RequestInput is an employee's advance request.
type RequestInput struct {
	EmployeeID     string
	Amount         decimal.Decimal
	Method         DisbursementMethod
	Reason         string
	IdempotencyKey string
	RequestedBy    string
}

type Filter struct {
	EmployeeID string
	EmployerID string
	Status     Status
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// EligibilitySource resolves the accrual and scores for an employee.
type EligibilitySource interface {
	Eligibility(ctx context.Context, employeeID string) (*Eligibility, error)
}

// Repository persists advances. Getters return (nil, nil) when absent.
type Repository interface {
	GetAdvance(ctx context.Context, id string) (*Advance, error)
	ListAdvances(ctx context.Context, f Filter) ([]Advance, error)

	// RunInTx runs fn with advance rows and ledger writes sharing one
	// database transaction. fn must not call back into the Repository.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transaction-scoped view handed to RunInTx.
type Tx interface {
	GetAdvance(ctx context.Context, id string) (*Advance, error)
	SaveAdvance(ctx context.Context, a *Advance) error
	// AdvanceByRequestKey returns the advance whose hold carries the given
	// ledger idempotency key, or (nil, nil).
	AdvanceByRequestKey(ctx context.Context, key string) (*Advance, error)
	Ledger() generic.Store
}
