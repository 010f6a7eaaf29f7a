package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/generic"
)

// =============================================================================
// ADVANCES (advance.Repository)
// =============================================================================

const advanceColumns = `id, employee_id, employer_id, cycle_id, currency, amount, risk_score,
	fee_percentage, fee_amount, net_amount, method, reason, status, decided_by, decided_at,
	rejection_reason, disbursement_ref, disbursed_at, repaid_at, created_at, updated_at`

func (s *Store) GetAdvance(ctx context.Context, id string) (*advance.Advance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getAdvance(ctx, s.db, id)
}

func getAdvance(ctx context.Context, q querier, id string) (*advance.Advance, error) {
	row := q.QueryRowContext(ctx, `SELECT `+advanceColumns+` FROM advances WHERE id = ?`, id)
	a, err := scanAdvance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to get advance %s", id)
	}
	return a, nil
}

func (s *Store) ListAdvances(ctx context.Context, f advance.Filter) ([]advance.Advance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.EmployerID != "" {
		where = append(where, "employer_id = ?")
		args = append(args, f.EmployerID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + advanceColumns + ` FROM advances`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list advances")
	}
	defer rows.Close()

	var out []advance.Advance
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan advance")
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// RunInTx implements advance.Repository.
func (s *Store) RunInTx(ctx context.Context, fn func(tx advance.Tx) error) error {
	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		return fn(&advanceTx{tx: sqlTx})
	})
}

type advanceTx struct {
	tx *sql.Tx
}

func (at *advanceTx) GetAdvance(ctx context.Context, id string) (*advance.Advance, error) {
	return getAdvance(ctx, at.tx, id)
}

func (at *advanceTx) SaveAdvance(ctx context.Context, a *advance.Advance) error {
	query := `
		INSERT INTO advances (` + advanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at,
			rejection_reason = excluded.rejection_reason,
			disbursement_ref = excluded.disbursement_ref,
			disbursed_at = excluded.disbursed_at,
			repaid_at = excluded.repaid_at,
			updated_at = excluded.updated_at
	`
	_, err := at.tx.ExecContext(ctx, query,
		a.ID, a.EmployeeID, a.EmployerID, a.CycleID, a.Currency,
		a.Amount.String(), a.RiskScore.String(), a.FeePercentage.String(),
		a.FeeAmount.String(), a.NetAmount.String(), a.Method, nullString(a.Reason), a.Status,
		nullString(a.DecidedBy), nullTime(a.DecidedAt), nullString(a.RejectionReason),
		nullString(a.DisbursementRef), nullTime(a.DisbursedAt), nullTime(a.RepaidAt),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "failed to save advance %s", a.ID)
	}
	return nil
}

func (at *advanceTx) AdvanceByRequestKey(ctx context.Context, key string) (*advance.Advance, error) {
	row := at.tx.QueryRowContext(ctx, `
		SELECT `+prefixed("a.", advanceColumns)+`
		FROM advances a
		JOIN transactions t ON t.reference_id = a.id
		WHERE t.idempotency_key = ? AND t.tx_type = ?
	`, key, generic.TxHold)
	a, err := scanAdvance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to find advance for request key %s", key)
	}
	return a, nil
}

// prefixed qualifies each column in a comma separated list.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func (at *advanceTx) Ledger() generic.Store {
	return &txStore{tx: at.tx}
}

func scanAdvance(sc scanner) (*advance.Advance, error) {
	var (
		a                                          advance.Advance
		amount, score, feePct, feeAmt, net         string
		reason, decidedBy, rejection, disbursement sql.NullString
		decidedAt, disbursedAt, repaidAt           sql.NullString
		createdAt, updatedAt                       string
	)
	err := sc.Scan(
		&a.ID, &a.EmployeeID, &a.EmployerID, &a.CycleID, &a.Currency, &amount, &score,
		&feePct, &feeAmt, &net, &a.Method, &reason, &a.Status, &decidedBy, &decidedAt,
		&rejection, &disbursement, &disbursedAt, &repaidAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Amount = parseDecimal(amount)
	a.RiskScore = parseDecimal(score)
	a.FeePercentage = parseDecimal(feePct)
	a.FeeAmount = parseDecimal(feeAmt)
	a.NetAmount = parseDecimal(net)
	a.Reason = reason.String
	a.DecidedBy = decidedBy.String
	a.DecidedAt = parseNullTime(decidedAt)
	a.RejectionReason = rejection.String
	a.DisbursementRef = disbursement.String
	a.DisbursedAt = parseNullTime(disbursedAt)
	a.RepaidAt = parseNullTime(repaidAt)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

var (
	_ advance.Repository = (*Store)(nil)
	_ generic.TxStore    = (*Store)(nil)
)
