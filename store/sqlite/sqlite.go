/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the advance engine using SQLite.
  In production the same patterns apply to PostgreSQL with only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  generic.TxStore:     Ledger transaction persistence
  employer.Repository: Employers, employees, risk history, payroll, review runs
  advance.Repository:  Advances, with ledger writes in the same transaction

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections via reversal transactions only

KEY TABLES:
  transactions:      Immutable ledger of holds, reversals and repayments
  employers:         Employer records with the current risk score
  employees:         Employees, unique per (employer, employee_code)
  risk_assessments:  Every assessment ever made, newest wins
  payroll_records:   One row per upload
  employee_accruals: Earned wages and limit per employee per cycle
  advances:          Advance requests and their status
  review_runs:       Scheduler history

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Code running inside WithTx or
  RunInTx only touches the open *sql.Tx and never the parent lock.

DECIMALS AND TIME:
  Money and scores are stored as TEXT decimals. Times are stored as
  fixed-width UTC strings so they sort lexically.

USAGE:
  store, err := sqlite.New("./data/advance.db")
  if err != nil {
      return err
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Ledger store interface
  - employer/types.go, advance/types.go: Repository interfaces
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/eaziwage/advance-engine/generic"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, eris.Wrap(err, "failed to open database")
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reset deletes every row. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"transactions", "advances", "employee_accruals", "payroll_records",
		"risk_assessments", "review_runs", "employees", "employers",
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return eris.Wrapf(err, "failed to clear %s", table)
			}
		}
		return nil
	})
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		currency TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Drawn amount per employee per cycle (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_entity_cycle
		ON transactions(entity_id, cycle_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS employers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		registration_number TEXT,
		industry TEXT NOT NULL,
		country TEXT NOT NULL,
		currency TEXT NOT NULL,
		payroll_cycle TEXT NOT NULL,
		max_advance_percentage TEXT NOT NULL,
		status TEXT NOT NULL,
		risk_score TEXT,
		risk_rating TEXT,
		fee_percentage TEXT,
		last_assessed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		employer_id TEXT NOT NULL REFERENCES employers(id),
		employee_code TEXT NOT NULL,
		name TEXT,
		phone TEXT,
		email TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		risk_score TEXT,
		risk_rating TEXT,
		last_assessed_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(employer_id, employee_code)
	);

	CREATE TABLE IF NOT EXISTS risk_assessments (
		id TEXT PRIMARY KEY,
		employer_id TEXT NOT NULL REFERENCES employers(id),
		employee_id TEXT REFERENCES employees(id),
		model_name TEXT NOT NULL,
		factors_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		composite_score TEXT NOT NULL,
		rating TEXT NOT NULL,
		assessed_by TEXT,
		assessed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_risk_assessments_employer
		ON risk_assessments(employer_id, assessed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_risk_assessments_employee
		ON risk_assessments(employee_id, assessed_at DESC) WHERE employee_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS payroll_records (
		id TEXT PRIMARY KEY,
		employer_id TEXT NOT NULL REFERENCES employers(id),
		cycle_id TEXT NOT NULL,
		employee_count INTEGER NOT NULL,
		total_gross TEXT NOT NULL,
		total_earned TEXT NOT NULL,
		uploaded_by TEXT,
		uploaded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_records_employer
		ON payroll_records(employer_id, uploaded_at DESC);

	-- One accrual per employee per cycle; a re-upload replaces it
	CREATE TABLE IF NOT EXISTS employee_accruals (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		employer_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		payroll_record_id TEXT NOT NULL,
		gross_salary TEXT NOT NULL,
		days_worked INTEGER NOT NULL,
		deductions TEXT NOT NULL,
		net_salary TEXT NOT NULL,
		earned_wages TEXT NOT NULL,
		advance_limit TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, cycle_id)
	);

	CREATE TABLE IF NOT EXISTS advances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		employer_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		risk_score TEXT NOT NULL,
		fee_percentage TEXT NOT NULL,
		fee_amount TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		method TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		disbursement_ref TEXT,
		disbursed_at TEXT,
		repaid_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advances_employee
		ON advances(employee_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_advances_status
		ON advances(status);

	CREATE TABLE IF NOT EXISTS review_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		checked INTEGER NOT NULL DEFAULT 0,
		marked_due INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, q querier, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO transactions
		(id, entity_id, cycle_id, effective_at, delta_value, currency,
		 tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		tx.ID,
		tx.EntityID,
		tx.CycleID,
		formatTime(tx.EffectiveAt),
		tx.Delta.Value.String(),
		tx.Delta.Currency,
		tx.Type,
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		nullString(tx.CreatedBy),
		formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return eris.Wrap(err, "failed to append transaction")
	}
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns all transactions for an employee+cycle.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID, cycleID generic.CycleID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadTxs(ctx, s.db, entityID, cycleID)
}

func loadTxs(ctx context.Context, q querier, entityID generic.EntityID, cycleID generic.CycleID) ([]generic.Transaction, error) {
	query := `
		SELECT id, entity_id, cycle_id, effective_at, delta_value, currency,
		       tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at
		FROM transactions
		WHERE entity_id = ? AND cycle_id = ?
		ORDER BY effective_at ASC, created_at ASC
	`

	rows, err := q.QueryContext(ctx, query, entityID, cycleID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query transactions")
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return keyExists(ctx, s.db, idempotencyKey)
}

func keyExists(ctx context.Context, q querier, idempotencyKey string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	if err != nil {
		return false, eris.Wrap(err, "failed to check idempotency key")
	}
	return count > 0, nil
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		deltaValue     string
		currency       string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.EntityID, &tx.CycleID, &effectiveAt, &deltaValue, &currency,
		&tx.Type, &referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, eris.Wrap(err, "failed to scan transaction")
	}

	tx.EffectiveAt = parseTime(effectiveAt)
	tx.CreatedAt = parseTime(createdAt)
	tx.Delta = generic.NewAmount(parseDecimal(deltaValue), generic.Currency(currency))
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		return fn(&txStore{tx: sqlTx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return eris.Wrap(err, "failed to commit transaction")
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := appendTx(ctx, ts.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, entityID generic.EntityID, cycleID generic.CycleID) ([]generic.Transaction, error) {
	return loadTxs(ctx, ts.tx, entityID, cycleID)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return keyExists(ctx, ts.tx, idempotencyKey)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	return generic.MustParseDecimal(s)
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d := parseDecimal(ns.String)
	return &d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
