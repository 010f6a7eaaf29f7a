package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/eaziwage/advance-engine/employer"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
)

// =============================================================================
// EMPLOYERS (employer.Repository)
// =============================================================================

const employerColumns = `id, name, registration_number, industry, country, currency, payroll_cycle,
	max_advance_percentage, status, risk_score, risk_rating, fee_percentage, last_assessed_at,
	created_at, updated_at`

func (s *Store) CreateEmployer(ctx context.Context, e *employer.Employer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO employers (` + employerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, nullString(e.RegistrationNumber), e.Industry, e.Country, e.Currency,
		e.PayrollCycle, e.MaxAdvancePercentage.String(), e.Status,
		nullDecimal(e.RiskScore), nullString(string(e.RiskRating)), nullDecimal(e.FeePercentage),
		nullTime(e.LastAssessedAt), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrAlreadyExists
		}
		return eris.Wrap(err, "failed to create employer")
	}
	return nil
}

// SetEmployerStatus changes only the status column.
func (s *Store) SetEmployerStatus(ctx context.Context, id string, status employer.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE employers SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(at), id,
	)
	if err != nil {
		return eris.Wrapf(err, "failed to set status of employer %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "employer", ID: id}
	}
	return nil
}

// MarkReviewDue flags an active employer whose latest assessment predates
// staleBefore. The condition is re-checked in the UPDATE, so an assessment
// committed after the caller listed employers is never overwritten.
func (s *Store) MarkReviewDue(ctx context.Context, id string, staleBefore, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE employers SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
		  AND (last_assessed_at IS NULL OR last_assessed_at < ?)`,
		employer.StatusReviewDue, formatTime(at), id, employer.StatusActive, formatTime(staleBefore),
	)
	if err != nil {
		return false, eris.Wrapf(err, "failed to mark employer %s review due", id)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) GetEmployer(ctx context.Context, id string) (*employer.Employer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+employerColumns+` FROM employers WHERE id = ?`, id)
	e, err := scanEmployer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to get employer %s", id)
	}
	return e, nil
}

func (s *Store) ListEmployers(ctx context.Context) ([]employer.Employer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+employerColumns+` FROM employers ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list employers")
	}
	defer rows.Close()

	var out []employer.Employer
	for rows.Next() {
		e, err := scanEmployer(rows)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan employer")
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployer(sc scanner) (*employer.Employer, error) {
	var (
		e                  employer.Employer
		registrationNumber sql.NullString
		maxPct             string
		riskScore          sql.NullString
		riskRating         sql.NullString
		feePct             sql.NullString
		lastAssessed       sql.NullString
		createdAt          string
		updatedAt          string
	)
	err := sc.Scan(
		&e.ID, &e.Name, &registrationNumber, &e.Industry, &e.Country, &e.Currency, &e.PayrollCycle,
		&maxPct, &e.Status, &riskScore, &riskRating, &feePct, &lastAssessed,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.RegistrationNumber = registrationNumber.String
	e.MaxAdvancePercentage = parseDecimal(maxPct)
	e.RiskScore = parseNullDecimal(riskScore)
	e.RiskRating = risk.Letter(riskRating.String)
	e.FeePercentage = parseNullDecimal(feePct)
	e.LastAssessedAt = parseNullTime(lastAssessed)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, employer_id, employee_code, name, phone, email, active, risk_score,
	risk_rating, last_assessed_at, created_at`

func (s *Store) CreateEmployee(ctx context.Context, e *employer.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO employees (` + employeeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.EmployerID, e.EmployeeCode, nullString(e.Name), nullString(e.Phone), nullString(e.Email),
		e.Active, nullDecimal(e.RiskScore), nullString(string(e.RiskRating)), nullTime(e.LastAssessedAt),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: employee code %s", generic.ErrAlreadyExists, e.EmployeeCode)
		}
		return eris.Wrap(err, "failed to create employee")
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*employer.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to get employee %s", id)
	}
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context, employerID string) ([]employer.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE employer_id = ? ORDER BY employee_code`, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list employees")
	}
	defer rows.Close()

	var out []employer.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan employee")
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// SetEmployeeActive changes only the active flag.
func (s *Store) SetEmployeeActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE employees SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return eris.Wrapf(err, "failed to set employee %s active", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "employee", ID: id}
	}
	return nil
}

func scanEmployee(sc scanner) (*employer.Employee, error) {
	var (
		e            employer.Employee
		name         sql.NullString
		phone        sql.NullString
		email        sql.NullString
		riskScore    sql.NullString
		riskRating   sql.NullString
		lastAssessed sql.NullString
		createdAt    string
	)
	err := sc.Scan(&e.ID, &e.EmployerID, &e.EmployeeCode, &name, &phone, &email, &e.Active,
		&riskScore, &riskRating, &lastAssessed, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Name = name.String
	e.Phone = phone.String
	e.Email = email.String
	e.RiskScore = parseNullDecimal(riskScore)
	e.RiskRating = risk.Letter(riskRating.String)
	e.LastAssessedAt = parseNullTime(lastAssessed)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

// =============================================================================
// RISK ASSESSMENTS
// =============================================================================

// SaveAssessment records the assessment and moves its subject's current
// score to it. An employer in review_due becomes active again. A row already
// carrying a later assessment keeps its score.
func (s *Store) SaveAssessment(ctx context.Context, a *employer.RiskAssessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return eris.Wrap(err, "failed to encode factors")
	}
	resultJSON, err := json.Marshal(a.Result)
	if err != nil {
		return eris.Wrap(err, "failed to encode assessment")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO risk_assessments
			(id, employer_id, employee_id, model_name, factors_json, result_json, composite_score, rating, assessed_by, assessed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.EmployerID, nullString(a.EmployeeID), a.ModelName, string(factorsJSON), string(resultJSON),
			a.Result.CompositeScore.String(), a.Result.Rating.Letter, nullString(a.AssessedBy), formatTime(a.AssessedAt),
		)
		if err != nil {
			return eris.Wrap(err, "failed to insert risk assessment")
		}

		at := formatTime(a.AssessedAt)
		if a.EmployeeID != "" {
			_, err = tx.ExecContext(ctx, `
				UPDATE employees SET risk_score = ?, risk_rating = ?, last_assessed_at = ?
				WHERE id = ? AND (last_assessed_at IS NULL OR last_assessed_at <= ?)`,
				a.Result.CompositeScore.String(), a.Result.Rating.Letter, at, a.EmployeeID, at,
			)
			if err != nil {
				return eris.Wrapf(err, "failed to update employee %s score", a.EmployeeID)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE employers SET
				risk_score = ?, risk_rating = ?, fee_percentage = ?, last_assessed_at = ?,
				status = CASE WHEN status = ? THEN ? ELSE status END,
				updated_at = ?
			WHERE id = ? AND (last_assessed_at IS NULL OR last_assessed_at <= ?)`,
			a.Result.CompositeScore.String(), a.Result.Rating.Letter, a.Result.FeePercentage.String(), at,
			employer.StatusReviewDue, employer.StatusActive,
			at, a.EmployerID, at,
		)
		if err != nil {
			return eris.Wrapf(err, "failed to update employer %s score", a.EmployerID)
		}
		return nil
	})
}

const assessmentColumns = `id, employer_id, employee_id, model_name, factors_json, result_json, assessed_by, assessed_at`

// LatestAssessment returns the employer's most recent assessment.
func (s *Store) LatestAssessment(ctx context.Context, employerID string) (*employer.RiskAssessment, error) {
	return s.latestAssessment(ctx, `employer_id = ? AND employee_id IS NULL`, employerID)
}

// LatestEmployeeAssessment returns the employee's most recent assessment.
func (s *Store) LatestEmployeeAssessment(ctx context.Context, employeeID string) (*employer.RiskAssessment, error) {
	return s.latestAssessment(ctx, `employee_id = ?`, employeeID)
}

func (s *Store) latestAssessment(ctx context.Context, where, id string) (*employer.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a           employer.RiskAssessment
		employeeID  sql.NullString
		factorsJSON string
		resultJSON  string
		assessedBy  sql.NullString
		assessedAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM risk_assessments
		WHERE `+where+`
		ORDER BY assessed_at DESC
		LIMIT 1`, id,
	).Scan(&a.ID, &a.EmployerID, &employeeID, &a.ModelName, &factorsJSON, &resultJSON, &assessedBy, &assessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load assessment for %s", id)
	}

	if err := json.Unmarshal([]byte(factorsJSON), &a.Factors); err != nil {
		return nil, eris.Wrap(err, "failed to decode factors")
	}
	if err := json.Unmarshal([]byte(resultJSON), &a.Result); err != nil {
		return nil, eris.Wrap(err, "failed to decode assessment")
	}
	a.EmployeeID = employeeID.String
	a.AssessedBy = assessedBy.String
	a.AssessedAt = parseTime(assessedAt)
	return &a, nil
}

// =============================================================================
// PAYROLL
// =============================================================================

func (s *Store) SavePayroll(ctx context.Context, rec *employer.PayrollRecord, accruals []employer.EmployeeAccrual) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payroll_records
			(id, employer_id, cycle_id, employee_count, total_gross, total_earned, uploaded_by, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.EmployerID, rec.CycleID, rec.EmployeeCount,
			rec.TotalGross.String(), rec.TotalEarned.String(), nullString(rec.UploadedBy), formatTime(rec.UploadedAt),
		)
		if err != nil {
			return eris.Wrap(err, "failed to insert payroll record")
		}

		query := `
			INSERT INTO employee_accruals
			(employee_id, employer_id, cycle_id, payroll_record_id, gross_salary, days_worked,
			 deductions, net_salary, earned_wages, advance_limit, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(employee_id, cycle_id) DO UPDATE SET
				payroll_record_id = excluded.payroll_record_id,
				gross_salary = excluded.gross_salary,
				days_worked = excluded.days_worked,
				deductions = excluded.deductions,
				net_salary = excluded.net_salary,
				earned_wages = excluded.earned_wages,
				advance_limit = excluded.advance_limit,
				updated_at = excluded.updated_at
		`
		for _, a := range accruals {
			_, err := tx.ExecContext(ctx, query,
				a.EmployeeID, a.EmployerID, a.CycleID, a.PayrollRecordID,
				a.GrossSalary.String(), a.DaysWorked, a.Deductions.String(), a.NetSalary.String(),
				a.EarnedWages.String(), a.AdvanceLimit.String(), formatTime(a.UpdatedAt),
			)
			if err != nil {
				return eris.Wrapf(err, "failed to upsert accrual for %s", a.EmployeeID)
			}
		}
		return nil
	})
}

func (s *Store) ListPayroll(ctx context.Context, employerID string) ([]employer.PayrollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employer_id, cycle_id, employee_count, total_gross, total_earned, uploaded_by, uploaded_at
		FROM payroll_records
		WHERE employer_id = ?
		ORDER BY uploaded_at DESC`, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list payroll")
	}
	defer rows.Close()

	var out []employer.PayrollRecord
	for rows.Next() {
		var (
			r          employer.PayrollRecord
			gross      string
			earned     string
			uploadedBy sql.NullString
			uploadedAt string
		)
		if err := rows.Scan(&r.ID, &r.EmployerID, &r.CycleID, &r.EmployeeCount, &gross, &earned, &uploadedBy, &uploadedAt); err != nil {
			return nil, eris.Wrap(err, "failed to scan payroll record")
		}
		r.TotalGross = parseDecimal(gross)
		r.TotalEarned = parseDecimal(earned)
		r.UploadedBy = uploadedBy.String
		r.UploadedAt = parseTime(uploadedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestAccrual returns the employee's accrual for the most recent cycle.
func (s *Store) LatestAccrual(ctx context.Context, employeeID string) (*employer.EmployeeAccrual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a                                           employer.EmployeeAccrual
		gross, deductions, net, earned, limit, upAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT employee_id, employer_id, cycle_id, payroll_record_id, gross_salary, days_worked,
		       deductions, net_salary, earned_wages, advance_limit, updated_at
		FROM employee_accruals
		WHERE employee_id = ?
		ORDER BY cycle_id DESC
		LIMIT 1`, employeeID,
	).Scan(&a.EmployeeID, &a.EmployerID, &a.CycleID, &a.PayrollRecordID, &gross, &a.DaysWorked,
		&deductions, &net, &earned, &limit, &upAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load accrual for %s", employeeID)
	}
	a.GrossSalary = parseDecimal(gross)
	a.Deductions = parseDecimal(deductions)
	a.NetSalary = parseDecimal(net)
	a.EarnedWages = parseDecimal(earned)
	a.AdvanceLimit = parseDecimal(limit)
	a.UpdatedAt = parseTime(upAt)
	return &a, nil
}

// =============================================================================
// REVIEW RUNS
// =============================================================================

func (s *Store) SaveReviewRun(ctx context.Context, r *employer.ReviewRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_runs (id, status, checked, marked_due, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			checked = excluded.checked,
			marked_due = excluded.marked_due,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		r.ID, r.Status, r.Checked, r.MarkedDue, nullString(r.Error), formatTime(r.StartedAt), nullTime(r.CompletedAt),
	)
	if err != nil {
		return eris.Wrap(err, "failed to save review run")
	}
	return nil
}

func (s *Store) ListReviewRuns(ctx context.Context, limit int) ([]employer.ReviewRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, checked, marked_due, error, started_at, completed_at
		FROM review_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list review runs")
	}
	defer rows.Close()

	var out []employer.ReviewRun
	for rows.Next() {
		var (
			r           employer.ReviewRun
			errText     sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Status, &r.Checked, &r.MarkedDue, &errText, &startedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "failed to scan review run")
		}
		r.Error = errText.String
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseNullTime(completedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ employer.Repository = (*Store)(nil)
