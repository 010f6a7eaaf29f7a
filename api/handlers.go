/*
handlers.go - HTTP API handlers for the wage advance platform

PURPOSE:
  Exposes the employer, risk, payroll and advance services via REST API.
  Handles HTTP request/response, JSON serialization, access scoping, and
  delegates to the domain services.

ACCESS:
  - admin:    everything
  - employer: its own employer record, employees, payroll and advances
  - employee: its own profile, balance and advances

REQUEST FLOW:
  1. Parse HTTP request
  2. Scope the request to what the session may see
  3. Call the domain service
  4. Serialize response
  5. Map errors to status codes (writeServiceError)

ERROR HANDLING:
  Errors are returned as JSON {"error", "code", "details"}:
  - 400: Validation errors, invalid input, insufficient balance
  - 401: Missing or invalid token
  - 403: Authenticated but out of scope
  - 404: Resource not found
  - 409: Conflict (idempotency, duplicate, illegal state change)
  - 500: Internal errors

SEE ALSO:
  - advances.go: Advance handlers
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/employer"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
	"github.com/eaziwage/advance-engine/session"
	"github.com/eaziwage/advance-engine/store/sqlite"
)

var errForbidden = errors.New("forbidden")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Employers *employer.Service
	Advances  *advance.Service
	Model     *risk.Model
	Tokens    *session.TokenIssuer

	Sessions *session.Broker
	Tracker  *SessionTracker

	// Reviews runs on-demand review passes; nil falls back to the service.
	Reviews *ReviewScheduler
}

// NewHandler creates a handler and starts tracking sessions.
func NewHandler(store *sqlite.Store, employers *employer.Service, advances *advance.Service, tokens *session.TokenIssuer) *Handler {
	broker := session.NewBroker()
	return &Handler{
		Store:     store,
		Employers: employers,
		Advances:  advances,
		Model:     employers.Model,
		Tokens:    tokens,
		Sessions:  broker,
		Tracker:   NewSessionTracker(broker),
	}
}

// Close stops session tracking.
func (h *Handler) Close() {
	h.Tracker.Stop()
	h.Sessions.Close()
}

// =============================================================================
// HEALTH & SESSIONS
// =============================================================================

// Health reports whether the database is reachable.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Database unreachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: time.Now().UTC()})
}

// GET /api/auth/session
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	u, _ := s.User()
	writeJSON(w, http.StatusOK, SessionResponse{User: u, ExpiresAt: s.ExpiresAt()})
}

// Logout ends the session for the tracker. Tokens are stateless and stay
// valid until they expire.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Dispatch(session.FromContext(r.Context()), session.LoggedOut{})
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Tracker.Active())
}

// =============================================================================
// RISK
// =============================================================================

// GetRiskModel returns the categories, weights and factors reviewers score.
// GET /api/risk/model
func (h *Handler) GetRiskModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RiskModelResponse{
		Model:          h.Model,
		DefaultFactors: h.Model.DefaultFactors(),
		EmployeeModel:  h.Employers.EmployeeModel,
		Industries:     risk.Industries(),
	})
}

// ScoreFactors scores a factor sheet without saving anything.
// POST /api/risk/assess
func (h *Handler) ScoreFactors(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Factors == nil {
		req.Factors = make(map[risk.Category]risk.FactorScores)
	}
	if req.Industry != "" {
		risk.PrefillSector(req.Factors, req.Industry)
	}

	result, err := h.Model.Assess(req.Factors)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// EMPLOYER HANDLERS
// =============================================================================

// GET /api/employers
func (h *Handler) ListEmployers(w http.ResponseWriter, r *http.Request) {
	employers, err := h.Employers.ListEmployers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if employers == nil {
		employers = []employer.Employer{}
	}
	writeJSON(w, http.StatusOK, employers)
}

// POST /api/employers
func (h *Handler) CreateEmployer(w http.ResponseWriter, r *http.Request) {
	var req employer.NewEmployer
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	e, err := h.Employers.RegisterEmployer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GET /api/employers/{id}
func (h *Handler) GetEmployer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := authorizeEmployer(r, id); err != nil {
		writeServiceError(w, err)
		return
	}

	e, err := h.Employers.GetEmployer(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	employees, err := h.Employers.ListEmployees(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if employees == nil {
		employees = []employer.Employee{}
	}
	writeJSON(w, http.StatusOK, EmployerDetailResponse{Employer: *e, Employees: employees})
}

// PATCH /api/employers/{id}/status
func (h *Handler) SetEmployerStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	e, err := h.Employers.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GET /api/employers/{id}/risk
func (h *Handler) GetLatestAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := authorizeEmployer(r, id); err != nil {
		writeServiceError(w, err)
		return
	}
	a, err := h.Employers.LatestAssessment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AssessEmployer scores the employer and stores the assessment.
// POST /api/employers/{id}/risk
func (h *Handler) AssessEmployer(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	s := session.FromContext(r.Context())
	a, err := h.Employers.AssessRisk(r.Context(), chi.URLParam(r, "id"), req.Factors, s.Subject())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// CreateEmployee registers an employee. Employers may only add to themselves.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req employer.NewEmployee
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	s := session.FromContext(r.Context())
	if s.Role() == session.RoleEmployer {
		u, _ := s.User()
		if req.EmployerID == "" {
			req.EmployerID = u.EmployerID
		}
	}
	if err := authorizeEmployer(r, req.EmployerID); err != nil {
		writeServiceError(w, err)
		return
	}

	e, err := h.Employers.AddEmployee(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.employeeInScope(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetBalance returns the employee's limit, drawn amount and fee for the cycle.
// GET /api/employees/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	e, err := h.employeeInScope(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	bal, err := h.Advances.Balance(r.Context(), e.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// SetEmployeeStatus suspends or reinstates an employee.
// PATCH /api/employees/{id}/status
func (h *Handler) SetEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	var req SetEmployeeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Active == nil {
		writeServiceError(w, fmt.Errorf("%w: active is required", generic.ErrValidation))
		return
	}
	e, err := h.employeeInScope(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	e, err = h.Employers.SetEmployeeActive(r.Context(), e.ID, *req.Active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GET /api/employees/{id}/risk
func (h *Handler) GetEmployeeAssessment(w http.ResponseWriter, r *http.Request) {
	e, err := h.employeeInScope(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a, err := h.Employers.LatestEmployeeAssessment(r.Context(), e.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AssessEmployee scores the employee under the employee model.
// POST /api/employees/{id}/risk
func (h *Handler) AssessEmployee(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	s := session.FromContext(r.Context())
	a, err := h.Employers.AssessEmployee(r.Context(), chi.URLParam(r, "id"), req.Factors, s.Subject())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// UploadPayroll evaluates a month of payroll for the caller's employer.
// Admins name the employer with ?employer_id=.
// POST /api/payroll/upload
func (h *Handler) UploadPayroll(w http.ResponseWriter, r *http.Request) {
	employerID, err := employerScope(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req employer.Upload
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := h.Employers.UploadPayroll(r.Context(), employerID, req, session.FromContext(r.Context()).Subject())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GET /api/payroll/history
func (h *Handler) PayrollHistory(w http.ResponseWriter, r *http.Request) {
	employerID, err := employerScope(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	records, err := h.Employers.PayrollHistory(r.Context(), employerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []employer.PayrollRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// =============================================================================
// REVIEW HANDLERS
// =============================================================================

// GET /api/reviews/runs?limit=20
func (h *Handler) ListReviewRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "validation", "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	runs, err := h.Employers.ReviewRuns(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []employer.ReviewRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// RunReview flags stale assessments immediately.
// POST /api/reviews/run
func (h *Handler) RunReview(w http.ResponseWriter, r *http.Request) {
	var (
		run *employer.ReviewRun
		err error
	)
	if h.Reviews != nil {
		run, err = h.Reviews.RunNow(r.Context())
	} else {
		run, err = h.Employers.MarkReviewsDue(r.Context())
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// SCOPING
// =============================================================================

// authorizeEmployer allows admins and the employer's own users.
func authorizeEmployer(r *http.Request, employerID string) error {
	s := session.FromContext(r.Context())
	switch s.Role() {
	case session.RoleAdmin:
		return nil
	case session.RoleEmployer:
		if u, _ := s.User(); u.EmployerID != "" && u.EmployerID == employerID {
			return nil
		}
	}
	return errForbidden
}

// employerScope resolves which employer a staff request is about.
func employerScope(r *http.Request) (string, error) {
	s := session.FromContext(r.Context())
	if s.Role() == session.RoleEmployer {
		u, _ := s.User()
		return u.EmployerID, nil
	}
	id := r.URL.Query().Get("employer_id")
	if id == "" {
		return "", fmt.Errorf("%w: employer_id is required", generic.ErrValidation)
	}
	return id, nil
}

// employeeInScope loads an employee the session may see: admins see all,
// employers their own staff, employees themselves.
func (h *Handler) employeeInScope(r *http.Request, id string) (*employer.Employee, error) {
	s := session.FromContext(r.Context())
	if s.Role() == session.RoleEmployee && s.Subject() != id {
		return nil, errForbidden
	}
	e, err := h.Employers.GetEmployee(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if s.Role() == session.RoleEmployer {
		if err := authorizeEmployer(r, e.EmployerID); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", generic.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeServiceError maps a domain error to its status code.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		upload   *employer.UploadError
		shortage *generic.InsufficientBalanceError
	)
	switch {
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Insufficient permissions", nil)
	case errors.As(err, &upload):
		writeError(w, http.StatusBadRequest, "validation", "Payroll upload rejected", upload.Rows)
	case errors.As(err, &shortage):
		writeError(w, http.StatusBadRequest, "insufficient_balance", err.Error(), map[string]string{
			"available": shortage.Available.Value.StringFixed(2),
			"requested": shortage.Requested.Value.StringFixed(2),
			"shortfall": shortage.Shortfall.Value.StringFixed(2),
		})
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case generic.IsClientError(err),
		risk.IsInputError(err),
		errors.Is(err, risk.ErrMissingCategory),
		errors.Is(err, risk.ErrUnknownCategory),
		errors.Is(err, earnedwage.ErrInvalidPayrollInput):
		writeError(w, http.StatusBadRequest, "validation", err.Error(), nil)
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", nil)
	}
}
