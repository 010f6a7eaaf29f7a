package earnedwage

import (
	"errors"
	"fmt"
)

// ErrInvalidPayrollInput is returned for any input outside the calculator's contract.
var ErrInvalidPayrollInput = errors.New("invalid payroll input")

// InvalidPayrollInputError names the offending field and why it was rejected.
type InvalidPayrollInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidPayrollInputError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidPayrollInputError) Unwrap() error {
	return ErrInvalidPayrollInput
}

func invalid(field string, value fmt.Stringer, reason string) error {
	return &InvalidPayrollInputError{Field: field, Value: value.String(), Reason: reason}
}
