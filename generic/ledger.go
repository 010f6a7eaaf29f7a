/*
ledger.go - Append-only record of advance draws

PURPOSE:
  The Ledger is the source of truth for how much of an employee's advance
  limit is in use. Every hold, reversal, repayment and adjustment is recorded
  here. The drawn amount is always computed by replaying transactions.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

EXAMPLE FLOW:
  1. Employee requests KES 5000:  TxHold      +5000
  2. Admin rejects it:            TxReversal  -5000
  3. Employee requests KES 3000:  TxHold      +3000
  4. Payroll recovers it:         TxRepayment -3000

  Drawn in cycle: [+5000, -5000, +3000, -3000] = 0
*/
package generic

import "context"

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the source of truth for drawn amounts.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for employee+cycle, chronologically.
	Transactions(ctx context.Context, entityID EntityID, cycleID CycleID) ([]Transaction, error)

	// Drawn sums the deltas for employee+cycle.
	Drawn(ctx context.Context, entityID EntityID, cycleID CycleID, currency Currency) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID, cycleID CycleID) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID, cycleID)
}

func (l *DefaultLedger) Drawn(ctx context.Context, entityID EntityID, cycleID CycleID, currency Currency) (Amount, error) {
	txs, err := l.Store.Load(ctx, entityID, cycleID)
	if err != nil {
		return Amount{}, err
	}
	return Sum(txs, currency), nil
}

// Sum adds up transaction deltas.
func Sum(txs []Transaction, currency Currency) Amount {
	total := ZeroAmount(currency)
	for _, tx := range txs {
		total = total.Add(tx.Delta)
	}
	return total
}
