package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PAYROLL CYCLE - One calendar month, keyed "YYYY-MM"
// =============================================================================

const cycleLayout = "2006-01"

// Cycle is a monthly payroll period. Start is the first day, End the last.
type Cycle struct {
	ID    CycleID
	Start time.Time
	End   time.Time
}

// ParseCycle parses a "YYYY-MM" payroll month.
func ParseCycle(s string) (Cycle, error) {
	t, err := time.Parse(cycleLayout, s)
	if err != nil {
		return Cycle{}, fmt.Errorf("%w: %q", ErrInvalidCycle, s)
	}
	return CycleFor(t), nil
}

// CycleFor returns the payroll cycle containing t.
func CycleFor(t time.Time) Cycle {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Cycle{
		ID:    CycleID(start.Format(cycleLayout)),
		Start: start,
		End:   end,
	}
}

// Days returns the number of calendar days in the cycle (28-31).
func (c Cycle) Days() int {
	return c.End.Day()
}

// Contains reports whether t falls on a day inside the cycle.
func (c Cycle) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(c.Start) && !day.After(c.End)
}

// Next returns the following month's cycle.
func (c Cycle) Next() Cycle {
	return CycleFor(c.Start.AddDate(0, 1, 0))
}

func (c Cycle) String() string { return string(c.ID) }
