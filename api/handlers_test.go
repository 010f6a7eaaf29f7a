/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Authentication and role scoping
- Employer onboarding and risk assessment
- Payroll upload, balance, quote and the advance lifecycle
- Error mapping (validation, insufficient balance, conflicts)
- Session tracking, demo scenarios and review runs
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/employer"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
	"github.com/eaziwage/advance-engine/session"
	"github.com/eaziwage/advance-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	admin   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	employers := employer.NewService(store, risk.DefaultModel(), employer.DefaultOptions())
	advances := advance.NewService(store, employers, advance.FeeBasisEmployer)
	tokens, err := session.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	h := NewHandler(store, employers, advances, tokens)
	t.Cleanup(func() {
		h.Close()
		store.Close()
	})

	ts := &testServer{t: t, handler: h, router: NewRouter(h, []string{"*"})}
	ts.admin = ts.token(session.User{ID: "admin-1", Role: session.RoleAdmin})
	return ts
}

func (ts *testServer) token(u session.User) string {
	ts.t.Helper()
	tok, _, err := ts.handler.Tokens.Issue(u)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// factorSheet scores every factor, industry_risk included, at score.
func factorSheet(score string) map[risk.Category]risk.FactorScores {
	d := decimal.RequireFromString(score)
	factors := uniformFactors(risk.DefaultModel(), d)
	factors[risk.SectorExposure]["industry_risk"] = d
	return factors
}

// onboard registers an employer assessed at CRS 4 (fee 4.1%) and returns it.
func (ts *testServer) onboard(name string) employer.Employer {
	ts.t.Helper()

	rec := ts.do(http.MethodPost, "/api/employers", ts.admin, employer.NewEmployer{Name: name, Industry: "retail", Country: "KE"})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	e := decodeBody[employer.Employer](ts.t, rec)

	rec = ts.do(http.MethodPost, "/api/employers/"+e.ID+"/risk", ts.admin, AssessRequest{Factors: factorSheet("4")})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return e
}

var thisMonth = generic.CycleFor(time.Now().UTC()).String()

// =============================================================================
// AUTH
// =============================================================================

func TestHealth_Public(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Status)
}

func TestAuth_RolesAndTokens(t *testing.T) {
	ts := newTestServer(t)
	employee := ts.token(session.User{ID: "ee-1", Role: session.RoleEmployee, EmployerID: "er-1"})

	tests := []struct {
		name     string
		token    string
		header   string
		wantCode int
		wantKind string
	}{
		{"anonymous", "", "", http.StatusUnauthorized, "unauthorized"},
		{"wrong role", employee, "", http.StatusForbidden, "forbidden"},
		{"garbage token", "nope", "", http.StatusUnauthorized, "unauthorized"},
		{"malformed header", "", "Token abc", http.StatusUnauthorized, "unauthorized"},
		{"admin", ts.admin, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/employers", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decodeBody[ErrorResponse](t, rec).Code)
			}
		})
	}
}

func TestCurrentSession(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(session.User{ID: "ee-9", Name: "Jane", Role: session.RoleEmployee, EmployerID: "er-1"})

	rec := ts.do(http.MethodGet, "/api/auth/session", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "ee-9", got.User.ID)
	assert.Equal(t, "Jane", got.User.Name)
	assert.False(t, got.ExpiresAt.IsZero())
}

// =============================================================================
// EMPLOYERS & RISK
// =============================================================================

func TestEmployer_OnboardAndAssess(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: a newly registered employer
	rec := ts.do(http.MethodPost, "/api/employers", ts.admin, employer.NewEmployer{Name: "Acme Retail", Industry: "retail"})
	require.Equal(t, http.StatusCreated, rec.Code)
	e := decodeBody[employer.Employer](t, rec)
	assert.Equal(t, employer.StatusReviewDue, e.Status)
	assert.Equal(t, generic.CurrencyKES, e.Currency)

	// WHEN: an admin assesses it at 4 across the board
	rec = ts.do(http.MethodPost, "/api/employers/"+e.ID+"/risk", ts.admin, AssessRequest{Factors: factorSheet("4")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeBody[employer.RiskAssessment](t, rec)

	// THEN: CRS 4 rates A at a 4.1% fee and the employer becomes active
	assertDecimal(t, "4", a.Result.CompositeScore)
	assert.Equal(t, risk.Letter("A"), a.Result.Rating.Letter)
	assertDecimal(t, "4.1", a.Result.FeePercentage)

	rec = ts.do(http.MethodGet, "/api/employers/"+e.ID, ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[EmployerDetailResponse](t, rec)
	assert.Equal(t, employer.StatusActive, detail.Status)
	require.NotNil(t, detail.FeePercentage)
	assertDecimal(t, "4.1", *detail.FeePercentage)
	assert.Empty(t, detail.Employees)

	rec = ts.do(http.MethodGet, "/api/employers/"+e.ID+"/risk", ts.admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmployer_ScopedToOwnUsers(t *testing.T) {
	ts := newTestServer(t)
	mine := ts.onboard("Mine")
	other := ts.onboard("Other")
	tok := ts.token(session.User{ID: "hr-1", Role: session.RoleEmployer, EmployerID: mine.ID})

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/employers/"+mine.ID, tok, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/employers/"+other.ID, tok, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/employers/"+mine.ID+"/risk", tok, AssessRequest{}).Code)
}

func TestEmployer_SetStatus(t *testing.T) {
	ts := newTestServer(t)
	e := ts.onboard("Acme")

	rec := ts.do(http.MethodPatch, "/api/employers/"+e.ID+"/status", ts.admin, SetStatusRequest{Status: employer.StatusSuspended})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, employer.StatusSuspended, decodeBody[employer.Employer](t, rec).Status)

	rec = ts.do(http.MethodPatch, "/api/employers/"+e.ID+"/status", ts.admin, SetStatusRequest{Status: "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPatch, "/api/employers/missing/status", ts.admin, SetStatusRequest{Status: employer.StatusActive})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRisk_StatelessScoring(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/risk/model", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	model := decodeBody[RiskModelResponse](t, rec)
	assert.Len(t, model.Model.Categories, 5)
	assert.NotEmpty(t, model.Industries)

	rec = ts.do(http.MethodPost, "/api/risk/assess", ts.admin, AssessRequest{Factors: factorSheet("5")})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[risk.Assessment](t, rec)
	assertDecimal(t, "5", result.CompositeScore)
	assertDecimal(t, "3.5", result.FeePercentage)

	rec = ts.do(http.MethodPost, "/api/risk/assess", ts.admin, AssessRequest{Factors: factorSheet("6")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[ErrorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/risk/assess", ts.admin, map[string]any{"factors": map[string]any{"weather": map[string]string{"rain": "3"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// industry pre-fills sector exposure when unscored
	rec = ts.do(http.MethodPost, "/api/risk/assess", ts.admin, AssessRequest{Industry: "mining"})
	require.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// PAYROLL & ADVANCES
// =============================================================================

func TestAdvance_EndToEnd(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: a CRS 4 employer whose HR user adds an employee and uploads payroll
	e := ts.onboard("Acme")
	hr := ts.token(session.User{ID: "hr-1", Role: session.RoleEmployer, EmployerID: e.ID})

	rec := ts.do(http.MethodPost, "/api/employees", hr, employer.NewEmployee{EmployeeCode: "E1", Name: "Jane"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decodeBody[employer.Employee](t, rec)
	assert.Equal(t, e.ID, emp.EmployerID)

	rec = ts.do(http.MethodPost, "/api/payroll/upload", hr, employer.Upload{
		Month: thisMonth,
		Employees: []earnedwage.PayrollEntry{{
			EmployeeCode: "E1",
			GrossSalary:  decimal.NewFromInt(60000),
			DaysWorked:   15,
			Deductions:   decimal.NewFromInt(5000),
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	upload := decodeBody[employer.UploadResult](t, rec)
	require.Len(t, upload.Accruals, 1)
	assertDecimal(t, "30000", upload.Accruals[0].EarnedWages)
	assertDecimal(t, "15000", upload.Accruals[0].AdvanceLimit)

	worker := ts.token(session.User{ID: emp.ID, Role: session.RoleEmployee, EmployerID: e.ID})

	// WHEN: the employee checks their balance and a quote
	rec = ts.do(http.MethodGet, "/api/employees/"+emp.ID+"/balance", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bal := decodeBody[advance.Balance](t, rec)
	assertDecimal(t, "15000", bal.Available)
	assertDecimal(t, "4.1", bal.FeePercentage)

	rec = ts.do(http.MethodGet, "/api/advances/quote?amount=5000", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decodeBody[advance.Quote](t, rec)
	assertDecimal(t, "205", q.FeeAmount)
	assertDecimal(t, "4795", q.NetAmount)

	// AND: requests 5000
	rec = ts.do(http.MethodPost, "/api/advances", worker, CreateAdvanceRequest{
		Amount: decimal.NewFromInt(5000), Method: advance.MethodMobileMoney, IdempotencyKey: "k1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adv := decodeBody[advance.Advance](t, rec)
	assert.Equal(t, advance.StatusPending, adv.Status)
	assertDecimal(t, "4795", adv.NetAmount)

	// THEN: replaying the key returns the same advance and overdrawing is refused
	rec = ts.do(http.MethodPost, "/api/advances", worker, CreateAdvanceRequest{Amount: decimal.NewFromInt(5000), IdempotencyKey: "k1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, adv.ID, decodeBody[advance.Advance](t, rec).ID)

	rec = ts.do(http.MethodPost, "/api/advances", worker, CreateAdvanceRequest{Amount: decimal.NewFromInt(4000), IdempotencyKey: "k1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/advances", worker, CreateAdvanceRequest{Amount: decimal.NewFromInt(10001)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_balance", errResp.Code)

	// AND: only admins move the advance through its lifecycle
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/advances/"+adv.ID+"/approve", worker, nil).Code)

	rec = ts.do(http.MethodPost, "/api/advances/"+adv.ID+"/approve", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, advance.StatusApproved, decodeBody[advance.Advance](t, rec).Status)

	rec = ts.do(http.MethodPost, "/api/advances/"+adv.ID+"/approve", ts.admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/advances/"+adv.ID+"/disburse", ts.admin, DisburseRequest{Reference: "MPESA-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MPESA-1", decodeBody[advance.Advance](t, rec).DisbursementRef)

	rec = ts.do(http.MethodPost, "/api/advances/"+adv.ID+"/repay", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, advance.StatusRepaid, decodeBody[advance.Advance](t, rec).Status)

	rec = ts.do(http.MethodGet, "/api/employees/"+emp.ID+"/balance", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assertDecimal(t, "15000", decodeBody[advance.Balance](t, rec).Available)

	rec = ts.do(http.MethodGet, "/api/advances", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]advance.Advance](t, rec), 1)

	rec = ts.do(http.MethodGet, "/api/payroll/history", hr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]employer.PayrollRecord](t, rec), 1)
}

func TestAdvance_EmployeeCannotActForOthers(t *testing.T) {
	ts := newTestServer(t)
	e := ts.onboard("Acme")

	rec := ts.do(http.MethodPost, "/api/employees", ts.admin, employer.NewEmployee{EmployerID: e.ID, EmployeeCode: "E1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	emp := decodeBody[employer.Employee](t, rec)

	intruder := ts.token(session.User{ID: "ee-other", Role: session.RoleEmployee, EmployerID: e.ID})

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/employees/"+emp.ID, intruder, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/employees/"+emp.ID+"/balance", intruder, nil).Code)

	rec = ts.do(http.MethodPost, "/api/advances", intruder, CreateAdvanceRequest{EmployeeID: emp.ID, Amount: decimal.NewFromInt(100)})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdvance_NoPayrollIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	e := ts.onboard("Acme")

	rec := ts.do(http.MethodPost, "/api/employees", ts.admin, employer.NewEmployee{EmployerID: e.ID, EmployeeCode: "E1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	emp := decodeBody[employer.Employee](t, rec)

	rec = ts.do(http.MethodGet, "/api/advances/quote?amount=100&employee_id="+emp.ID, ts.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/advances/quote?amount=lots&employee_id="+emp.ID, ts.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayroll_InvalidRowsRejectUpload(t *testing.T) {
	ts := newTestServer(t)
	e := ts.onboard("Acme")
	hr := ts.token(session.User{ID: "hr-1", Role: session.RoleEmployer, EmployerID: e.ID})

	rec := ts.do(http.MethodPost, "/api/employees", hr, employer.NewEmployee{EmployeeCode: "E1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodPost, "/api/payroll/upload", hr, employer.Upload{
		Month: thisMonth,
		Employees: []earnedwage.PayrollEntry{{
			EmployeeCode: "E1",
			GrossSalary:  decimal.NewFromInt(60000),
			DaysWorked:   40,
		}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Code)
	rows, ok := resp.Details.([]any)
	require.True(t, ok, "details lists the bad rows")
	assert.Len(t, rows, 1)

	// admins must say which employer they mean
	rec = ts.do(http.MethodGet, "/api/payroll/history", ts.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/employers", ts.admin, map[string]string{"name": "Acme", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SESSIONS, SCENARIOS, REVIEWS
// =============================================================================

func TestSessions_TrackedUntilLogout(t *testing.T) {
	ts := newTestServer(t)
	worker := ts.token(session.User{ID: "ee-1", Role: session.RoleEmployee, EmployerID: "er-1"})

	// GIVEN: an employee makes an authenticated request
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/auth/session", worker, nil).Code)

	active := func() map[string]bool {
		seen := map[string]bool{}
		for _, a := range ts.handler.Tracker.Active() {
			seen[a.User.ID] = true
		}
		return seen
	}

	// THEN: the tracker lists them
	assert.Eventually(t, func() bool { return active()["ee-1"] }, time.Second, 10*time.Millisecond)

	rec := ts.do(http.MethodGet, "/api/sessions", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: they log out
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodPost, "/api/auth/logout", worker, nil).Code)

	// THEN: they drop off
	assert.Eventually(t, func() bool { return !active()["ee-1"] }, time.Second, 10*time.Millisecond)
}

func TestScenarios_LoadLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/scenarios", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]Scenario](t, rec), len(scenarios))

	rec = ts.do(http.MethodPost, "/api/scenarios/load", ts.admin, LoadScenarioRequest{ScenarioID: "advance-lifecycle", Reset: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[ScenarioResult](t, rec)
	require.Len(t, res.Employees, 1)
	assert.Len(t, res.Advances, 5)

	rec = ts.do(http.MethodGet, "/api/advances?employee_id="+res.Employees[0], ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := map[advance.Status]int{}
	for _, a := range decodeBody[[]advance.Advance](t, rec) {
		statuses[a.Status]++
	}
	assert.Equal(t, map[advance.Status]int{
		advance.StatusRepaid:    1,
		advance.StatusDisbursed: 1,
		advance.StatusApproved:  1,
		advance.StatusPending:   1,
		advance.StatusRejected:  1,
	}, statuses)

	// 4000 + 3000 + 2500 still held against a 30000 limit
	rec = ts.do(http.MethodGet, "/api/employees/"+res.Employees[0]+"/balance", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decodeBody[advance.Balance](t, rec)
	assertDecimal(t, "9500", bal.Drawn)
	assertDecimal(t, "20500", bal.Available)

	rec = ts.do(http.MethodPost, "/api/scenarios/load", ts.admin, LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_SuspendedEmployerRefusesAdvances(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/scenarios/load", ts.admin, LoadScenarioRequest{ScenarioID: "suspended-employer"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[ScenarioResult](t, rec)

	rec = ts.do(http.MethodPost, "/api/advances", ts.admin, CreateAdvanceRequest{EmployeeID: res.Employees[0], Amount: decimal.NewFromInt(100)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviews_RunAndList(t *testing.T) {
	ts := newTestServer(t)
	ts.onboard("Acme")

	rec := ts.do(http.MethodPost, "/api/reviews/run", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[employer.ReviewRun](t, rec)
	assert.Equal(t, employer.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Checked)
	assert.Equal(t, 0, run.MarkedDue, "a fresh assessment is not stale")

	rec = ts.do(http.MethodGet, "/api/reviews/runs?limit=5", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]employer.ReviewRun](t, rec), 1)

	rec = ts.do(http.MethodGet, "/api/reviews/runs?limit=-1", ts.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployee_RiskAndStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.handler.Advances.FeeBasis = advance.FeeBasisBlended

	// GIVEN: an employee of a CRS 4 employer with payroll on file
	e := ts.onboard("Acme")
	hr := ts.token(session.User{ID: "hr-1", Role: session.RoleEmployer, EmployerID: e.ID})
	rec := ts.do(http.MethodPost, "/api/employees", hr, employer.NewEmployee{EmployeeCode: "E1", Name: "Jane"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decodeBody[employer.Employee](t, rec)
	rec = ts.do(http.MethodPost, "/api/payroll/upload", hr, employer.Upload{
		Month: thisMonth,
		Employees: []earnedwage.PayrollEntry{{
			EmployeeCode: "E1", GrossSalary: decimal.NewFromInt(60000), DaysWorked: 15, Deductions: decimal.NewFromInt(5000),
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	worker := ts.token(session.User{ID: emp.ID, Role: session.RoleEmployee, EmployerID: e.ID})

	// WHEN: an admin scores the employee at 2 on every factor
	sheet := uniformFactors(risk.DefaultEmployeeModel(), decimal.NewFromInt(2))
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/employees/"+emp.ID+"/risk", hr, AssessRequest{Factors: sheet}).Code)
	rec = ts.do(http.MethodPost, "/api/employees/"+emp.ID+"/risk", ts.admin, AssessRequest{Factors: sheet})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeBody[employer.RiskAssessment](t, rec)
	assert.Equal(t, emp.ID, a.EmployeeID)
	assertDecimal(t, "2", a.Result.CompositeScore)

	// THEN: the employee sees it and the blended price uses it: (4+2)/2 = 3, fee 4.7%
	rec = ts.do(http.MethodGet, "/api/employees/"+emp.ID+"/risk", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, a.ID, decodeBody[employer.RiskAssessment](t, rec).ID)

	rec = ts.do(http.MethodGet, "/api/employees/"+emp.ID+"/balance", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bal := decodeBody[advance.Balance](t, rec)
	assertDecimal(t, "3", bal.RiskScore)
	assertDecimal(t, "4.7", bal.FeePercentage)

	// WHEN: HR suspends the employee
	active := false
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPatch, "/api/employees/"+emp.ID+"/status", worker, SetEmployeeStatusRequest{Active: &active}).Code)
	other := ts.token(session.User{ID: "hr-2", Role: session.RoleEmployer, EmployerID: "someone-else"})
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPatch, "/api/employees/"+emp.ID+"/status", other, SetEmployeeStatusRequest{Active: &active}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPatch, "/api/employees/"+emp.ID+"/status", hr, SetEmployeeStatusRequest{}).Code)

	rec = ts.do(http.MethodPatch, "/api/employees/"+emp.ID+"/status", hr, SetEmployeeStatusRequest{Active: &active})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[employer.Employee](t, rec).Active)

	// THEN: advances are refused until reinstated
	rec = ts.do(http.MethodPost, "/api/advances", worker, CreateAdvanceRequest{Amount: decimal.NewFromInt(1000)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	active = true
	rec = ts.do(http.MethodPatch, "/api/employees/"+emp.ID+"/status", hr, SetEmployeeStatusRequest{Active: &active})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/api/advances", worker, CreateAdvanceRequest{Amount: decimal.NewFromInt(1000)})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRiskModel_IncludesEmployeeModel(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/risk/model", ts.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[RiskModelResponse](t, rec)
	require.NotNil(t, resp.EmployeeModel)
	assert.Equal(t, "employee", resp.EmployeeModel.Name)
}
