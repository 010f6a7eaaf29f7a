/*
Package earnedwage turns payroll attendance into an advanceable balance.

PURPOSE:
  An employee accrues wages day by day. Given the monthly gross salary and
  the days worked so far this cycle, we derive:

    earned wages   = gross / 30 x daysWorked
    advance limit  = earned wages x maxAdvancePercentage / 100
    fee amount     = advance x feePercentage / 100
    net amount     = advance - fee amount

  The divisor is a flat 30 regardless of the calendar month, so 31 days
  worked earns slightly more than the monthly gross. CheckCalendarDays is
  available for deployments that want to reject that.

  Every function is pure and validates its inputs instead of clamping them.
  Values keep full decimal precision; round only when presenting.

SEE ALSO:
  - payroll.go: PayrollEntry, the per-employee row of an upload
  - risk package: where feePercentage comes from
*/
package earnedwage

import (
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	// DaysPerMonth is the flat divisor used to derive a daily rate.
	DaysPerMonth = 30

	// MaxDaysWorked is the largest daysWorked accepted in one cycle.
	MaxDaysWorked = 31
)

var (
	// DefaultMaxAdvancePercentage is used when an employer has not configured one.
	DefaultMaxAdvancePercentage = decimal.NewFromInt(50)

	daysPerMonth = decimal.NewFromInt(DaysPerMonth)
	hundred      = decimal.NewFromInt(100)
)

// =============================================================================
// ACCRUAL
// =============================================================================

// EarnedWages returns gross / 30 x daysWorked.
func EarnedWages(grossSalary decimal.Decimal, daysWorked int) (decimal.Decimal, error) {
	if grossSalary.IsNegative() {
		return decimal.Zero, invalid("gross_salary", grossSalary, "must not be negative")
	}
	if daysWorked < 0 || daysWorked > MaxDaysWorked {
		return decimal.Zero, &InvalidPayrollInputError{Field: "days_worked", Value: strconv.Itoa(daysWorked), Reason: "must be within [0,31]"}
	}
	// multiply first so whole-shilling salaries stay exact
	return grossSalary.Mul(decimal.NewFromInt(int64(daysWorked))).Div(daysPerMonth), nil
}

// NetSalary returns gross - deductions. Deductions above gross are rejected.
func NetSalary(grossSalary, deductions decimal.Decimal) (decimal.Decimal, error) {
	if grossSalary.IsNegative() {
		return decimal.Zero, invalid("gross_salary", grossSalary, "must not be negative")
	}
	if deductions.IsNegative() {
		return decimal.Zero, invalid("deductions", deductions, "must not be negative")
	}
	if deductions.GreaterThan(grossSalary) {
		return decimal.Zero, invalid("deductions", deductions, "exceed gross salary "+grossSalary.String())
	}
	return grossSalary.Sub(deductions), nil
}

// AdvanceLimit returns earnedWages x maxAdvancePercentage / 100.
func AdvanceLimit(earnedWages, maxAdvancePercentage decimal.Decimal) (decimal.Decimal, error) {
	if earnedWages.IsNegative() {
		return decimal.Zero, invalid("earned_wages", earnedWages, "must not be negative")
	}
	if maxAdvancePercentage.IsNegative() || maxAdvancePercentage.GreaterThan(hundred) {
		return decimal.Zero, invalid("max_advance_percentage", maxAdvancePercentage, "must be within [0,100]")
	}
	return earnedWages.Mul(maxAdvancePercentage).Div(hundred), nil
}

// =============================================================================
// FEES
// =============================================================================

// FeeAmount returns advanceAmount x feePercentage / 100.
func FeeAmount(advanceAmount, feePercentage decimal.Decimal) (decimal.Decimal, error) {
	if advanceAmount.IsNegative() {
		return decimal.Zero, invalid("advance_amount", advanceAmount, "must not be negative")
	}
	if feePercentage.IsNegative() {
		return decimal.Zero, invalid("fee_percentage", feePercentage, "must not be negative")
	}
	return advanceAmount.Mul(feePercentage).Div(hundred), nil
}

// NetAmount returns what the employee receives: advanceAmount - FeeAmount.
func NetAmount(advanceAmount, feePercentage decimal.Decimal) (decimal.Decimal, error) {
	fee, err := FeeAmount(advanceAmount, feePercentage)
	if err != nil {
		return decimal.Zero, err
	}
	return advanceAmount.Sub(fee), nil
}

// AdvanceQuote is the priced breakdown of a requested advance.
type AdvanceQuote struct {
	Amount        decimal.Decimal `json:"amount"`
	FeePercentage decimal.Decimal `json:"fee_percentage"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	NetAmount     decimal.Decimal `json:"net_amount"`
}

// Quote prices an advance. NetAmount is derived from the unrounded fee.
func Quote(advanceAmount, feePercentage decimal.Decimal) (AdvanceQuote, error) {
	fee, err := FeeAmount(advanceAmount, feePercentage)
	if err != nil {
		return AdvanceQuote{}, err
	}
	return AdvanceQuote{
		Amount:        advanceAmount,
		FeePercentage: feePercentage,
		FeeAmount:     fee,
		NetAmount:     advanceAmount.Sub(fee),
	}, nil
}
