package employer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/generic"
)

// =============================================================================
// PAYROLL UPLOAD
// =============================================================================

// Upload is one employer's payroll for a month ("YYYY-MM").
type Upload struct {
	Month     string                    `json:"month"`
	Employees []earnedwage.PayrollEntry `json:"employees"`
}

// UploadResult summarises an accepted upload.
type UploadResult struct {
	Record   PayrollRecord     `json:"record"`
	Accruals []EmployeeAccrual `json:"accruals"`
	Skipped  []string          `json:"skipped,omitempty"` // unknown employee codes
}

// RowError is a rejected upload row.
type RowError struct {
	Row          int    `json:"row"`
	EmployeeCode string `json:"employee_code"`
	Message      string `json:"error"`
	Err          error  `json:"-"`
}

// UploadError rejects the whole upload and lists every bad row.
type UploadError struct {
	Rows []RowError
}

func (e *UploadError) Error() string {
	msgs := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		msgs = append(msgs, fmt.Sprintf("row %d (%s): %s", r.Row, r.EmployeeCode, r.Message))
	}
	return "payroll upload rejected: " + strings.Join(msgs, "; ")
}

func (e *UploadError) Unwrap() error {
	return generic.ErrValidation
}

// EvaluateOptions controls how upload rows are checked.
type EvaluateOptions struct {
	MaxAdvancePercentage decimal.Decimal
	Cycle                generic.Cycle
	StrictCalendarDays   bool
	Workers              int
}

// EvaluateEntries validates and evaluates every row concurrently. Results are
// returned in input order. Any invalid row yields an *UploadError.
func EvaluateEntries(ctx context.Context, entries []earnedwage.PayrollEntry, opts EvaluateOptions) ([]earnedwage.Accrual, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	accruals := make([]earnedwage.Accrual, len(entries))
	rowErrs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if opts.StrictCalendarDays {
				if err := earnedwage.CheckCalendarDays(entry, opts.Cycle); err != nil {
					rowErrs[i] = err
					return nil
				}
			}
			acc, err := entry.Evaluate(opts.MaxAdvancePercentage)
			accruals[i], rowErrs[i] = acc, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(entries))
	var bad []RowError
	for i, err := range rowErrs {
		code := strings.TrimSpace(entries[i].EmployeeCode)
		if err == nil {
			if first, dup := seen[code]; dup {
				err = fmt.Errorf("%w: employee code repeats row %d", generic.ErrValidation, first+1)
			} else {
				seen[code] = i
			}
		}
		if err != nil {
			bad = append(bad, RowError{Row: i + 1, EmployeeCode: code, Message: err.Error(), Err: err})
		}
	}
	if len(bad) > 0 {
		return nil, &UploadError{Rows: bad}
	}
	return accruals, nil
}
