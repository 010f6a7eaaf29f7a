package employer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
)

// Options carries the configuration the service needs.
type Options struct {
	DefaultMaxAdvancePercentage decimal.Decimal
	StrictCalendarDays          bool
	PayrollWorkers              int
	ReviewInterval              time.Duration
}

func DefaultOptions() Options {
	return Options{
		DefaultMaxAdvancePercentage: earnedwage.DefaultMaxAdvancePercentage,
		PayrollWorkers:              4,
		ReviewInterval:              365 * 24 * time.Hour,
	}
}

type Service struct {
	Repo          Repository
	Model         *risk.Model
	EmployeeModel *risk.Model
	Opts          Options
	Now           func() time.Time
}

func NewService(repo Repository, model *risk.Model, opts Options) *Service {
	if model == nil {
		model = risk.DefaultModel()
	}
	return &Service{
		Repo:          repo,
		Model:         model,
		EmployeeModel: risk.DefaultEmployeeModel(),
		Opts:          opts,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", generic.ErrValidation, fmt.Sprintf(format, args...))
}

// =============================================================================
// EMPLOYERS
// =============================================================================

type NewEmployer struct {
	Name                 string           `json:"name"`
	RegistrationNumber   string           `json:"registration_number"`
	Industry             string           `json:"industry"`
	Country              string           `json:"country"`
	PayrollCycle         PayrollCycle     `json:"payroll_cycle"`
	MaxAdvancePercentage *decimal.Decimal `json:"max_advance_percentage"`
}

func (s *Service) RegisterEmployer(ctx context.Context, in NewEmployer) (*Employer, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validation("employer name is required")
	}
	if in.PayrollCycle == "" {
		in.PayrollCycle = CycleMonthly
	}
	if !in.PayrollCycle.Valid() {
		return nil, validation("unknown payroll cycle %q", in.PayrollCycle)
	}
	if in.Industry == "" {
		in.Industry = "other"
	}
	if in.Country == "" {
		in.Country = "KE"
	}

	maxPct := s.Opts.DefaultMaxAdvancePercentage
	if in.MaxAdvancePercentage != nil {
		maxPct = *in.MaxAdvancePercentage
	}
	// reuse the calculator's range check
	if _, err := earnedwage.AdvanceLimit(decimal.Zero, maxPct); err != nil {
		return nil, validation("%v", err)
	}

	now := s.Now()
	e := &Employer{
		ID:                   uuid.NewString(),
		Name:                 strings.TrimSpace(in.Name),
		RegistrationNumber:   in.RegistrationNumber,
		Industry:             in.Industry,
		Country:              strings.ToUpper(in.Country),
		Currency:             generic.CurrencyForCountry(strings.ToUpper(in.Country)),
		PayrollCycle:         in.PayrollCycle,
		MaxAdvancePercentage: maxPct,
		Status:               StatusReviewDue,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.Repo.CreateEmployer(ctx, e); err != nil {
		return nil, err
	}
	zap.L().Info("employer registered", zap.String("employer_id", e.ID), zap.String("industry", e.Industry))
	return e, nil
}

func (s *Service) GetEmployer(ctx context.Context, id string) (*Employer, error) {
	e, err := s.Repo.GetEmployer(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &generic.NotFoundError{Kind: "employer", ID: id}
	}
	return e, nil
}

func (s *Service) ListEmployers(ctx context.Context) ([]Employer, error) {
	return s.Repo.ListEmployers(ctx)
}

// SetStatus suspends or reinstates an employer.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Employer, error) {
	if !status.Valid() {
		return nil, validation("unknown employer status %q", status)
	}
	if err := s.Repo.SetEmployerStatus(ctx, id, status, s.Now()); err != nil {
		return nil, err
	}
	return s.GetEmployer(ctx, id)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type NewEmployee struct {
	EmployerID   string           `json:"employer_id"`
	EmployeeCode string           `json:"employee_code"`
	Name         string           `json:"name"`
	Phone        string           `json:"phone"`
	Email        string           `json:"email"`
	RiskScore    *decimal.Decimal `json:"risk_score"`
}

func (s *Service) AddEmployee(ctx context.Context, in NewEmployee) (*Employee, error) {
	if strings.TrimSpace(in.EmployeeCode) == "" {
		return nil, validation("employee code is required")
	}
	if in.RiskScore != nil {
		if in.RiskScore.LessThan(risk.MinScore) || in.RiskScore.GreaterThan(risk.MaxScore) {
			return nil, validation("employee risk score %s outside [0,5]", in.RiskScore)
		}
	}
	if _, err := s.GetEmployer(ctx, in.EmployerID); err != nil {
		return nil, err
	}

	e := &Employee{
		ID:           uuid.NewString(),
		EmployerID:   in.EmployerID,
		EmployeeCode: strings.TrimSpace(in.EmployeeCode),
		Name:         in.Name,
		Phone:        in.Phone,
		Email:        in.Email,
		Active:       true,
		RiskScore:    in.RiskScore,
		CreatedAt:    s.Now(),
	}
	if err := s.Repo.CreateEmployee(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	e, err := s.Repo.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &generic.NotFoundError{Kind: "employee", ID: id}
	}
	return e, nil
}

func (s *Service) ListEmployees(ctx context.Context, employerID string) ([]Employee, error) {
	return s.Repo.ListEmployees(ctx, employerID)
}

// SetEmployeeActive suspends or reinstates an employee. Inactive employees
// cannot request advances.
func (s *Service) SetEmployeeActive(ctx context.Context, id string, active bool) (*Employee, error) {
	if err := s.Repo.SetEmployeeActive(ctx, id, active); err != nil {
		return nil, err
	}
	zap.L().Info("employee status changed", zap.String("employee_id", id), zap.Bool("active", active))
	return s.GetEmployee(ctx, id)
}

// =============================================================================
// RISK ASSESSMENT
// =============================================================================

func copyFactors(factors map[risk.Category]risk.FactorScores) map[risk.Category]risk.FactorScores {
	out := make(map[risk.Category]risk.FactorScores, len(factors)+1)
	for c, fs := range factors {
		cp := make(risk.FactorScores, len(fs))
		for k, v := range fs {
			cp[k] = v
		}
		out[c] = cp
	}
	return out
}

// AssessRisk scores the employer, records the assessment and updates the
// employer's current CRS, rating and fee. The industry_risk factor is
// pre-filled from the employer's industry when the reviewer leaves it out.
func (s *Service) AssessRisk(ctx context.Context, employerID string, factors map[risk.Category]risk.FactorScores, assessedBy string) (*RiskAssessment, error) {
	e, err := s.GetEmployer(ctx, employerID)
	if err != nil {
		return nil, err
	}

	scored := copyFactors(factors)
	risk.PrefillSector(scored, e.Industry)

	result, err := s.Model.Assess(scored)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	a := &RiskAssessment{
		ID:         uuid.NewString(),
		EmployerID: employerID,
		ModelName:  s.Model.Name,
		Factors:    scored,
		Result:     result,
		AssessedBy: assessedBy,
		AssessedAt: now,
	}

	if err := s.Repo.SaveAssessment(ctx, a); err != nil {
		return nil, err
	}

	zap.L().Info("employer assessed",
		zap.String("employer_id", employerID),
		zap.String("crs", result.CompositeScore.StringFixed(2)),
		zap.String("rating", string(result.Rating.Letter)),
		zap.String("assessed_by", assessedBy),
	)
	return a, nil
}

func (s *Service) LatestAssessment(ctx context.Context, employerID string) (*RiskAssessment, error) {
	if _, err := s.GetEmployer(ctx, employerID); err != nil {
		return nil, err
	}
	a, err := s.Repo.LatestAssessment(ctx, employerID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &generic.NotFoundError{Kind: "risk assessment", ID: employerID}
	}
	return a, nil
}

// AssessEmployee scores an employee under the employee model, records the
// assessment and updates the employee's current CRS and rating. The blended
// fee basis prices on that CRS.
func (s *Service) AssessEmployee(ctx context.Context, employeeID string, factors map[risk.Category]risk.FactorScores, assessedBy string) (*RiskAssessment, error) {
	emp, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	scored := copyFactors(factors)
	result, err := s.EmployeeModel.Assess(scored)
	if err != nil {
		return nil, err
	}

	a := &RiskAssessment{
		ID:         uuid.NewString(),
		EmployerID: emp.EmployerID,
		EmployeeID: emp.ID,
		ModelName:  s.EmployeeModel.Name,
		Factors:    scored,
		Result:     result,
		AssessedBy: assessedBy,
		AssessedAt: s.Now(),
	}
	if err := s.Repo.SaveAssessment(ctx, a); err != nil {
		return nil, err
	}

	zap.L().Info("employee assessed",
		zap.String("employee_id", emp.ID),
		zap.String("crs", result.CompositeScore.StringFixed(2)),
		zap.String("rating", string(result.Rating.Letter)),
		zap.String("assessed_by", assessedBy),
	)
	return a, nil
}

func (s *Service) LatestEmployeeAssessment(ctx context.Context, employeeID string) (*RiskAssessment, error) {
	if _, err := s.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	a, err := s.Repo.LatestEmployeeAssessment(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &generic.NotFoundError{Kind: "risk assessment", ID: employeeID}
	}
	return a, nil
}

// =============================================================================
// PAYROLL
// =============================================================================

// UploadPayroll evaluates and stores a month of payroll. Rows for employee
// codes the employer has not registered are skipped and reported.
func (s *Service) UploadPayroll(ctx context.Context, employerID string, up Upload, uploadedBy string) (*UploadResult, error) {
	e, err := s.GetEmployer(ctx, employerID)
	if err != nil {
		return nil, err
	}
	cycle, err := generic.ParseCycle(up.Month)
	if err != nil {
		return nil, err
	}
	if len(up.Employees) == 0 {
		return nil, validation("payroll upload has no employees")
	}

	evaluated, err := EvaluateEntries(ctx, up.Employees, EvaluateOptions{
		MaxAdvancePercentage: e.MaxAdvancePercentage,
		Cycle:                cycle,
		StrictCalendarDays:   s.Opts.StrictCalendarDays,
		Workers:              s.Opts.PayrollWorkers,
	})
	if err != nil {
		return nil, err
	}

	staff, err := s.Repo.ListEmployees(ctx, employerID)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]Employee, len(staff))
	for _, st := range staff {
		byCode[st.EmployeeCode] = st
	}

	now := s.Now()
	rec := PayrollRecord{
		ID:          uuid.NewString(),
		EmployerID:  employerID,
		CycleID:     cycle.ID,
		TotalGross:  decimal.Zero,
		TotalEarned: decimal.Zero,
		UploadedBy:  uploadedBy,
		UploadedAt:  now,
	}
	res := &UploadResult{}
	for _, acc := range evaluated {
		emp, ok := byCode[acc.EmployeeCode]
		if !ok {
			res.Skipped = append(res.Skipped, acc.EmployeeCode)
			continue
		}
		res.Accruals = append(res.Accruals, EmployeeAccrual{
			EmployeeID:      emp.ID,
			EmployerID:      employerID,
			CycleID:         cycle.ID,
			PayrollRecordID: rec.ID,
			GrossSalary:     acc.GrossSalary,
			DaysWorked:      acc.DaysWorked,
			Deductions:      acc.Deductions,
			NetSalary:       acc.NetSalary,
			EarnedWages:     acc.EarnedWages,
			AdvanceLimit:    acc.AdvanceLimit,
			UpdatedAt:       now,
		})
		rec.TotalGross = rec.TotalGross.Add(acc.GrossSalary)
		rec.TotalEarned = rec.TotalEarned.Add(acc.EarnedWages)
	}
	rec.EmployeeCount = len(res.Accruals)

	if err := s.Repo.SavePayroll(ctx, &rec, res.Accruals); err != nil {
		return nil, err
	}
	res.Record = rec

	zap.L().Info("payroll uploaded",
		zap.String("employer_id", employerID),
		zap.String("month", string(cycle.ID)),
		zap.Int("employees", rec.EmployeeCount),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

func (s *Service) PayrollHistory(ctx context.Context, employerID string) ([]PayrollRecord, error) {
	if _, err := s.GetEmployer(ctx, employerID); err != nil {
		return nil, err
	}
	return s.Repo.ListPayroll(ctx, employerID)
}

// Eligibility implements advance.EligibilitySource. It returns (nil, nil)
// when the employee has no payroll on file yet.
func (s *Service) Eligibility(ctx context.Context, employeeID string) (*advance.Eligibility, error) {
	emp, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	acc, err := s.Repo.LatestAccrual(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	er, err := s.GetEmployer(ctx, emp.EmployerID)
	if err != nil {
		return nil, err
	}

	return &advance.Eligibility{
		EmployeeID:     emp.ID,
		EmployerID:     er.ID,
		EmployerActive: er.Status != StatusSuspended,
		EmployeeActive: emp.Active,
		CycleID:        acc.CycleID,
		Currency:       er.Currency,
		EarnedWages:    acc.EarnedWages,
		AdvanceLimit:   acc.AdvanceLimit,
		EmployerScore:  er.RiskScore,
		EmployeeScore:  emp.RiskScore,
	}, nil
}

// =============================================================================
// PERIODIC REVIEW
// =============================================================================

// MarkReviewsDue flags every active employer whose latest assessment is
// older than the review interval, and records the run. The staleness check
// is repeated in the write, so a concurrent assessment wins.
func (s *Service) MarkReviewsDue(ctx context.Context) (*ReviewRun, error) {
	started := s.Now()
	run := &ReviewRun{ID: uuid.NewString(), StartedAt: started}

	err := s.markReviewsDue(ctx, run, started)
	completed := s.Now()
	run.CompletedAt = &completed
	run.Status = RunCompleted
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	}

	if saveErr := s.Repo.SaveReviewRun(ctx, run); saveErr != nil {
		return nil, saveErr
	}
	return run, err
}

func (s *Service) markReviewsDue(ctx context.Context, run *ReviewRun, now time.Time) error {
	employers, err := s.Repo.ListEmployers(ctx)
	if err != nil {
		return err
	}
	cutoff := now.Add(-s.Opts.ReviewInterval)
	for _, e := range employers {
		run.Checked++
		if e.Status != StatusActive {
			continue
		}
		if e.LastAssessedAt != nil && !e.LastAssessedAt.Before(cutoff) {
			continue
		}
		marked, err := s.Repo.MarkReviewDue(ctx, e.ID, cutoff, now)
		if err != nil {
			return err
		}
		if marked {
			run.MarkedDue++
		}
	}
	return nil
}

func (s *Service) ReviewRuns(ctx context.Context, limit int) ([]ReviewRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Repo.ListReviewRuns(ctx, limit)
}
