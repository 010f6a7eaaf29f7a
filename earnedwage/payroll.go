package earnedwage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/advance-engine/generic"
)

// PayrollEntry is one employee's row in a payroll upload.
type PayrollEntry struct {
	EmployeeCode string          `json:"employee_code"`
	GrossSalary  decimal.Decimal `json:"gross_salary"`
	DaysWorked   int             `json:"days_worked"`
	Deductions   decimal.Decimal `json:"deductions"`
}

// Accrual is what a payroll entry yields for the cycle.
type Accrual struct {
	EmployeeCode string          `json:"employee_code"`
	GrossSalary  decimal.Decimal `json:"gross_salary"`
	DaysWorked   int             `json:"days_worked"`
	Deductions   decimal.Decimal `json:"deductions"`
	NetSalary    decimal.Decimal `json:"net_salary"`
	EarnedWages  decimal.Decimal `json:"earned_wages"`
	AdvanceLimit decimal.Decimal `json:"advance_limit"`
}

// Validate checks the entry without computing anything.
func (e PayrollEntry) Validate() error {
	_, err := e.Evaluate(DefaultMaxAdvancePercentage)
	return err
}

// Evaluate chains gross and days worked into earned wages and the advance
// limit. The employee code is trimmed in the result.
func (e PayrollEntry) Evaluate(maxAdvancePercentage decimal.Decimal) (Accrual, error) {
	code := strings.TrimSpace(e.EmployeeCode)
	if code == "" {
		return Accrual{}, &InvalidPayrollInputError{Field: "employee_code", Reason: "is required"}
	}

	earned, err := EarnedWages(e.GrossSalary, e.DaysWorked)
	if err != nil {
		return Accrual{}, err
	}
	limit, err := AdvanceLimit(earned, maxAdvancePercentage)
	if err != nil {
		return Accrual{}, err
	}
	net, err := NetSalary(e.GrossSalary, e.Deductions)
	if err != nil {
		return Accrual{}, err
	}

	return Accrual{
		EmployeeCode: code,
		GrossSalary:  e.GrossSalary,
		DaysWorked:   e.DaysWorked,
		Deductions:   e.Deductions,
		NetSalary:    net,
		EarnedWages:  earned,
		AdvanceLimit: limit,
	}, nil
}

// CheckCalendarDays rejects an entry claiming more days than the cycle has.
func CheckCalendarDays(e PayrollEntry, cycle generic.Cycle) error {
	if e.DaysWorked > cycle.Days() {
		return &InvalidPayrollInputError{
			Field:  "days_worked",
			Value:  strconv.Itoa(e.DaysWorked),
			Reason: fmt.Sprintf("exceeds the %d days in %s", cycle.Days(), cycle),
		}
	}
	return nil
}
