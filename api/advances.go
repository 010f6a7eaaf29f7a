package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/session"
)

// =============================================================================
// ADVANCE HANDLERS
// =============================================================================

// CreateAdvance requests an advance. The Idempotency-Key header is used when
// the body carries no key.
// POST /api/advances
func (h *Handler) CreateAdvance(w http.ResponseWriter, r *http.Request) {
	var req CreateAdvanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	employeeID, err := h.advanceSubject(r, req.EmployeeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	adv, err := h.Advances.Request(r.Context(), advance.RequestInput{
		EmployeeID:     employeeID,
		Amount:         req.Amount,
		Method:         req.Method,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		RequestedBy:    session.FromContext(r.Context()).Subject(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, adv)
}

// QuoteAdvance prices an amount without reserving it.
// GET /api/advances/quote?amount=5000[&employee_id=]
func (h *Handler) QuoteAdvance(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeServiceError(w, fmt.Errorf("%w: amount must be a number", generic.ErrValidation))
		return
	}
	employeeID, err := h.advanceSubject(r, r.URL.Query().Get("employee_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	q, err := h.Advances.Quote(r.Context(), employeeID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListAdvances lists advances visible to the caller. Admins may filter by
// employee_id, employer_id and status.
// GET /api/advances
func (h *Handler) ListAdvances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := advance.Filter{
		EmployeeID: q.Get("employee_id"),
		EmployerID: q.Get("employer_id"),
		Status:     advance.Status(q.Get("status")),
	}

	s := session.FromContext(r.Context())
	u, _ := s.User()
	switch s.Role() {
	case session.RoleEmployer:
		f.EmployerID = u.EmployerID
	case session.RoleEmployee:
		f.EmployeeID = u.ID
		f.EmployerID = ""
	}

	advances, err := h.Advances.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if advances == nil {
		advances = []advance.Advance{}
	}
	writeJSON(w, http.StatusOK, advances)
}

// GET /api/advances/{id}
func (h *Handler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	adv, err := h.Advances.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s := session.FromContext(r.Context())
	switch s.Role() {
	case session.RoleEmployer:
		if err := authorizeEmployer(r, adv.EmployerID); err != nil {
			writeServiceError(w, err)
			return
		}
	case session.RoleEmployee:
		if adv.EmployeeID != s.Subject() {
			writeServiceError(w, errForbidden)
			return
		}
	}
	writeJSON(w, http.StatusOK, adv)
}

// POST /api/advances/{id}/approve
func (h *Handler) ApproveAdvance(w http.ResponseWriter, r *http.Request) {
	adv, err := h.Advances.Approve(r.Context(), chi.URLParam(r, "id"), session.FromContext(r.Context()).Subject())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

// POST /api/advances/{id}/reject
func (h *Handler) RejectAdvance(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	adv, err := h.Advances.Reject(r.Context(), chi.URLParam(r, "id"), session.FromContext(r.Context()).Subject(), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

// POST /api/advances/{id}/disburse
func (h *Handler) DisburseAdvance(w http.ResponseWriter, r *http.Request) {
	var req DisburseRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	adv, err := h.Advances.Disburse(r.Context(), chi.URLParam(r, "id"), session.FromContext(r.Context()).Subject(), req.Reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

// POST /api/advances/{id}/repay
func (h *Handler) RepayAdvance(w http.ResponseWriter, r *http.Request) {
	adv, err := h.Advances.Repay(r.Context(), chi.URLParam(r, "id"), session.FromContext(r.Context()).Subject())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

// advanceSubject resolves whose advance a request is about. Employees act for
// themselves; staff must name an employee they can see.
func (h *Handler) advanceSubject(r *http.Request, requested string) (string, error) {
	s := session.FromContext(r.Context())
	if s.Role() == session.RoleEmployee {
		if requested != "" && requested != s.Subject() {
			return "", errForbidden
		}
		return s.Subject(), nil
	}
	if requested == "" {
		return "", fmt.Errorf("%w: employee_id is required", generic.ErrValidation)
	}
	e, err := h.employeeInScope(r, requested)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}
