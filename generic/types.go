/*
Package generic provides the money ledger shared by the advance engine.

PURPOSE:
  Domain-agnostic types for tracking how much of an employee's advance
  limit has been drawn within a payroll cycle. The advance package records
  holds, reversals and repayments here; the balance is always replayed from
  the transactions, never stored.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A currency value (e.g., KES 15000.00)
  - Transaction: An immutable ledger entry recording a change in drawn amount
  - EntityID / CycleID: Type-safe identifiers (employee, payroll month)

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing employee/cycle IDs
  4. Auditability: Every transaction has reason, reference, and idempotency key

USAGE:
  amount := generic.NewAmountFromFloat(5000, generic.CurrencyKES)
  tx := generic.Transaction{
      EntityID: "emp-123",
      CycleID:  "2025-03",
      Delta:    amount,
      Type:     generic.TxHold,
  }

SEE ALSO:
  - errors.go: Sentinel and structured errors
  - ledger.go: Balance calculation from transactions
  - store.go: Transaction persistence interface
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Value with currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	CurrencyKES Currency = "KES"
	CurrencyUGX Currency = "UGX"
	CurrencyTZS Currency = "TZS"
	CurrencyRWF Currency = "RWF"
)

// CurrencyForCountry maps an operating country code to its settlement currency.
// Unknown countries settle in KES.
func CurrencyForCountry(code string) Currency {
	switch code {
	case "UG":
		return CurrencyUGX
	case "TZ":
		return CurrencyTZS
	case "RW":
		return CurrencyRWF
	default:
		return CurrencyKES
	}
}

func NewAmount(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

func NewAmountFromFloat(value float64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: currency}
}

func ZeroAmount(currency Currency) Amount {
	return Amount{Value: decimal.Zero, Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.Currency} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Currency: a.Currency} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// String renders the amount with two decimals, e.g. "KES 15000.00".
func (a Amount) String() string {
	return string(a.Currency) + " " + a.Value.StringFixed(2)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type CycleID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to the drawn amount
// =============================================================================

type TransactionType string

const (
	TxHold       TransactionType = "hold"       // Advance requested, amount reserved against the limit
	TxReversal   TransactionType = "reversal"   // Undo a hold (rejected advance)
	TxRepayment  TransactionType = "repayment"  // Advance recovered from payroll, limit released
	TxAdjustment TransactionType = "adjustment" // Manual admin correction
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	CycleID        CycleID
	EffectiveAt    time.Time
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt time.Time
}
