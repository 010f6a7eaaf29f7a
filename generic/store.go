/*
store.go - Persistence interface for ledger transactions

PURPOSE:
  Defines the interface between the ledger and the database. The Store
  handles persistence while maintaining append-only semantics. SQLite backs
  the server; the in-memory store in generic/store backs unit tests.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write carries an idempotency key. If the key already exists,
  the write is rejected. Approving the same advance twice from two admin
  tabs therefore cannot draw the limit twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store handles persistence of transactions.
// Store is APPEND-ONLY. Corrections are made via reversal transactions.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for employee+cycle, ordered by EffectiveAt.
	Load(ctx context.Context, entityID EntityID, cycleID CycleID) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
