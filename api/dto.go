/*
dto.go - Request and response bodies for the HTTP API

PURPOSE:
  Domain types already carry JSON tags and are returned as-is. This file
  holds the shapes that exist only at the API boundary: request bodies,
  wrappers that combine several domain values, and the error envelope.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Validation is done in the domain services. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/employer"
	"github.com/eaziwage/advance-engine/risk"
	"github.com/eaziwage/advance-engine/session"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// =============================================================================
// RISK
// =============================================================================

// AssessRequest carries factor scores per category, e.g.
// {"factors": {"employer": {"tax_compliance": "4", ...}, ...}}.
type AssessRequest struct {
	Industry string                              `json:"industry,omitempty"`
	Factors  map[risk.Category]risk.FactorScores `json:"factors"`
}

type RiskModelResponse struct {
	Model          *risk.Model                         `json:"model"`
	DefaultFactors map[risk.Category]risk.FactorScores `json:"default_factors"`
	EmployeeModel  *risk.Model                         `json:"employee_model"`
	Industries     []string                            `json:"industries"`
}

// =============================================================================
// EMPLOYERS
// =============================================================================

type SetStatusRequest struct {
	Status employer.Status `json:"status"`
}

type SetEmployeeStatusRequest struct {
	Active *bool `json:"active"`
}

// EmployerDetailResponse is an employer with its employees.
type EmployerDetailResponse struct {
	employer.Employer
	Employees []employer.Employee `json:"employees"`
}

// =============================================================================
// ADVANCES
// =============================================================================

// CreateAdvanceRequest is the body of POST /api/advances. Employees omit
// employee_id; it comes from their session.
type CreateAdvanceRequest struct {
	EmployeeID     string                     `json:"employee_id,omitempty"`
	Amount         decimal.Decimal            `json:"amount"`
	Method         advance.DisbursementMethod `json:"disbursement_method"`
	Reason         string                     `json:"reason,omitempty"`
	IdempotencyKey string                     `json:"idempotency_key,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type DisburseRequest struct {
	Reference string `json:"reference"`
}

// =============================================================================
// SESSIONS
// =============================================================================

type SessionResponse struct {
	User      session.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}
