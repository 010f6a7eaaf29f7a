/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario registers employers, scores them, adds
	employees, uploads the current month's payroll and optionally walks
	advances through their lifecycle.

AVAILABLE SCENARIOS:

	low-risk-employer:  Strong telecom employer, fees near the 3.5% floor
	high-risk-employer: Weak construction employer, fees near the 6.5% cap
	advance-lifecycle:  One employee with advances in every status
	suspended-employer: Employer paused by an admin; requests are refused

HOW SCENARIOS WORK:
 1. Optionally reset database (clear all data)
 2. Register employer and assess it with a uniform factor sheet
 3. Add employees
 4. Upload payroll for the current month
 5. Optionally request and transition advances

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "advance-lifecycle", "reset": true}

USAGE VIA CLI:

	advance-engine seed advance-lifecycle

NOTE:

	Resetting deletes everything. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/employer"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
	"github.com/eaziwage/advance-engine/session"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []Scenario{
	{
		ID:          "low-risk-employer",
		Name:        "Low-Risk Employer",
		Description: "Telecom employer scoring 4.5 across the board, three employees on payroll",
	},
	{
		ID:          "high-risk-employer",
		Name:        "High-Risk Employer",
		Description: "Construction employer scoring 1.5, two employees on payroll",
	},
	{
		ID:          "advance-lifecycle",
		Name:        "Advance Lifecycle",
		Description: "Pending, approved, disbursed, repaid and rejected advances for one employee",
	},
	{
		ID:          "suspended-employer",
		Name:        "Suspended Employer",
		Description: "Employer suspended after assessment; its employees cannot draw advances",
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}

// ScenarioResult lists what a scenario created.
type ScenarioResult struct {
	Scenario  string   `json:"scenario"`
	Employers []string `json:"employer_ids"`
	Employees []string `json:"employee_ids"`
	Advances  []string `json:"advance_ids,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Reset      bool   `json:"reset"`
}

// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	ctx := r.Context()
	if req.Reset {
		if err := h.Store.Reset(ctx); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	res, err := LoadScenario(ctx, h.Employers, h.Advances, req.ScenarioID, session.FromContext(ctx).Subject())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// LoadScenario creates the named scenario's data through the services.
func LoadScenario(ctx context.Context, employers *employer.Service, advances *advance.Service, id, actor string) (*ScenarioResult, error) {
	if actor == "" {
		actor = "seed"
	}
	l := &loader{employers: employers, advances: advances, actor: actor, res: &ScenarioResult{Scenario: id}}

	var err error
	switch id {
	case "low-risk-employer":
		_, err = l.onboard(ctx, "Savanna Telecom", "telecommunications", decimal.RequireFromString("4.5"), lowRiskStaff)
	case "high-risk-employer":
		_, err = l.onboard(ctx, "Rift Builders", "construction", decimal.RequireFromString("1.5"), highRiskStaff)
	case "advance-lifecycle":
		err = l.lifecycle(ctx)
	case "suspended-employer":
		err = l.suspended(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown scenario %q", generic.ErrValidation, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", id, err)
	}
	return l.res, nil
}

type staffMember struct {
	code       string
	name       string
	gross      int64
	days       int
	deductions int64
}

var lowRiskStaff = []staffMember{
	{"TEL-001", "Amina Wanjiru", 90000, 20, 10000},
	{"TEL-002", "Brian Otieno", 60000, 15, 5000},
	{"TEL-003", "Cynthia Mwangi", 45000, 12, 3000},
}

var highRiskStaff = []staffMember{
	{"RB-001", "David Kiprop", 30000, 18, 2000},
	{"RB-002", "Esther Njeri", 24000, 10, 1500},
}

type loader struct {
	employers *employer.Service
	advances  *advance.Service
	actor     string
	res       *ScenarioResult
}

// onboard registers, assesses and staffs one employer, then uploads this
// month's payroll. It returns the created employee ids in staff order.
func (l *loader) onboard(ctx context.Context, name, industry string, score decimal.Decimal, staff []staffMember) ([]string, error) {
	e, err := l.employers.RegisterEmployer(ctx, employer.NewEmployer{
		Name:         name,
		Industry:     industry,
		Country:      "KE",
		PayrollCycle: employer.CycleMonthly,
	})
	if err != nil {
		return nil, err
	}
	l.res.Employers = append(l.res.Employers, e.ID)

	if _, err := l.employers.AssessRisk(ctx, e.ID, uniformFactors(l.employers.Model, score), l.actor); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(staff))
	entries := make([]earnedwage.PayrollEntry, 0, len(staff))
	for _, s := range staff {
		emp, err := l.employers.AddEmployee(ctx, employer.NewEmployee{
			EmployerID:   e.ID,
			EmployeeCode: s.code,
			Name:         s.name,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, emp.ID)
		entries = append(entries, earnedwage.PayrollEntry{
			EmployeeCode: s.code,
			GrossSalary:  decimal.NewFromInt(s.gross),
			DaysWorked:   s.days,
			Deductions:   decimal.NewFromInt(s.deductions),
		})
	}
	l.res.Employees = append(l.res.Employees, ids...)

	month := generic.CycleFor(time.Now().UTC()).String()
	if _, err := l.employers.UploadPayroll(ctx, e.ID, employer.Upload{Month: month, Employees: entries}, l.actor); err != nil {
		return nil, err
	}
	return ids, nil
}

func (l *loader) lifecycle(ctx context.Context) error {
	ids, err := l.onboard(ctx, "Savanna Telecom", "telecommunications", decimal.RequireFromString("4.5"), lowRiskStaff[:1])
	if err != nil {
		return err
	}
	employee := ids[0]

	steps := []struct {
		amount int64
		moves  []advance.Status
	}{
		{5000, []advance.Status{advance.StatusApproved, advance.StatusDisbursed, advance.StatusRepaid}},
		{4000, []advance.Status{advance.StatusApproved, advance.StatusDisbursed}},
		{3000, []advance.Status{advance.StatusApproved}},
		{2500, nil},
		{2000, []advance.Status{advance.StatusRejected}},
	}

	for i, step := range steps {
		adv, err := l.advances.Request(ctx, advance.RequestInput{
			EmployeeID:     employee,
			Amount:         decimal.NewFromInt(step.amount),
			Method:         advance.MethodMobileMoney,
			Reason:         "demo",
			IdempotencyKey: fmt.Sprintf("scenario-%s-%d", employee, i),
			RequestedBy:    employee,
		})
		if err != nil {
			return err
		}
		for _, to := range step.moves {
			switch to {
			case advance.StatusApproved:
				_, err = l.advances.Approve(ctx, adv.ID, l.actor)
			case advance.StatusDisbursed:
				_, err = l.advances.Disburse(ctx, adv.ID, l.actor, fmt.Sprintf("MPESA-DEMO-%d", i))
			case advance.StatusRepaid:
				_, err = l.advances.Repay(ctx, adv.ID, l.actor)
			case advance.StatusRejected:
				_, err = l.advances.Reject(ctx, adv.ID, l.actor, "exceeds monthly request count")
			}
			if err != nil {
				return err
			}
		}
		l.res.Advances = append(l.res.Advances, adv.ID)
	}
	return nil
}

func (l *loader) suspended(ctx context.Context) error {
	if _, err := l.onboard(ctx, "Lakeside Traders", "retail", decimal.NewFromInt(3), highRiskStaff); err != nil {
		return err
	}
	_, err := l.employers.SetStatus(ctx, l.res.Employers[0], employer.StatusSuspended)
	return err
}

// uniformFactors scores every catalogued factor at score, leaving
// industry_risk to be filled from the employer's industry.
func uniformFactors(m *risk.Model, score decimal.Decimal) map[risk.Category]risk.FactorScores {
	factors := m.DefaultFactors()
	for _, fs := range factors {
		for k := range fs {
			fs[k] = score
		}
	}
	if fs := factors[risk.SectorExposure]; fs != nil {
		delete(fs, "industry_risk")
	}
	return factors
}
