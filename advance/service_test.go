package advance_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/employer"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
	"github.com/eaziwage/advance-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

type fixture struct {
	store     *sqlite.Store
	employers *employer.Service
	advances  *advance.Service
	employer  *employer.Employer
	employee  *employer.Employee
}

// newFixture sets up an employer scored at CRS 4.0 (fee 4.1%) and one
// employee on KES 60000 who has worked 15 days: 30000 earned, 15000 limit.
func newFixture(t *testing.T, basis advance.FeeBasis, employeeScore *decimal.Decimal) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	emps := employer.NewService(store, risk.DefaultModel(), employer.DefaultOptions())

	er, err := emps.RegisterEmployer(ctx, employer.NewEmployer{Name: "Acme Ltd", Industry: "technology", Country: "KE"})
	require.NoError(t, err)

	factors := emps.Model.DefaultFactors()
	for c := range factors {
		for k := range factors[c] {
			factors[c][k] = d("4")
		}
	}
	_, err = emps.AssessRisk(ctx, er.ID, factors, "admin-1")
	require.NoError(t, err)

	ee, err := emps.AddEmployee(ctx, employer.NewEmployee{EmployerID: er.ID, EmployeeCode: "EMP001", Name: "Jane", RiskScore: employeeScore})
	require.NoError(t, err)

	_, err = emps.UploadPayroll(ctx, er.ID, employer.Upload{
		Month: "2025-03",
		Employees: []earnedwage.PayrollEntry{
			{EmployeeCode: "EMP001", GrossSalary: d("60000"), DaysWorked: 15, Deductions: d("5000")},
		},
	}, "hr-1")
	require.NoError(t, err)

	return &fixture{
		store:     store,
		employers: emps,
		advances:  advance.NewService(store, emps, basis),
		employer:  er,
		employee:  ee,
	}
}

func (f *fixture) request(t *testing.T, amount string) (*advance.Advance, error) {
	t.Helper()
	return f.advances.Request(context.Background(), advance.RequestInput{
		EmployeeID:  f.employee.ID,
		Amount:      d(amount),
		Method:      advance.MethodMobileMoney,
		Reason:      "school fees",
		RequestedBy: f.employee.ID,
	})
}

// =============================================================================
// REQUEST
// =============================================================================

func TestRequest_PricesAndHolds(t *testing.T) {
	// GIVEN: an employee with a 15000 limit at fee 4.1%
	// WHEN: requesting 10000
	// THEN: fee 410, net 9590, 5000 left available
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	adv, err := f.request(t, "10000")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusPending, adv.Status)
	assert.Equal(t, generic.CurrencyKES, adv.Currency)
	assert.Equal(t, generic.CycleID("2025-03"), adv.CycleID)
	decEqual(t, "4", adv.RiskScore)
	decEqual(t, "4.1", adv.FeePercentage)
	decEqual(t, "410", adv.FeeAmount)
	decEqual(t, "9590", adv.NetAmount)

	bal, err := f.advances.Balance(ctx, f.employee.ID)
	require.NoError(t, err)
	decEqual(t, "30000", bal.EarnedWages)
	decEqual(t, "15000", bal.AdvanceLimit)
	decEqual(t, "10000", bal.Drawn)
	decEqual(t, "5000", bal.Available)

	stored, err := f.advances.Get(ctx, adv.ID)
	require.NoError(t, err)
	decEqual(t, "9590", stored.NetAmount)
}

func TestRequest_ExceedsAvailable(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)

	_, err := f.request(t, "15000.01")
	var ie *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &ie)
	decEqual(t, "15000", ie.Available.Value)
	decEqual(t, "0.01", ie.Shortfall.Value)
	assert.True(t, generic.IsClientError(err))

	// nothing was held
	bal, err := f.advances.Balance(context.Background(), f.employee.ID)
	require.NoError(t, err)
	decEqual(t, "0", bal.Drawn)
}

func TestRequest_CumulativeDraws(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)

	_, err := f.request(t, "9000")
	require.NoError(t, err)
	_, err = f.request(t, "6000")
	require.NoError(t, err)

	_, err = f.request(t, "1")
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
}

func TestRequest_RejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)

	_, err := f.request(t, "0")
	assert.ErrorIs(t, err, generic.ErrValidation)
	_, err = f.request(t, "-50")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestRequest_UnknownMethod(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)

	_, err := f.advances.Request(context.Background(), advance.RequestInput{
		EmployeeID: f.employee.ID,
		Amount:     d("100"),
		Method:     "cheque",
	})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestRequest_IdempotencyKeyReturnsFirstAdvance(t *testing.T) {
	// GIVEN: a client retrying the same request
	// THEN: the retry returns the first advance and only one hold exists
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	in := advance.RequestInput{EmployeeID: f.employee.ID, Amount: d("2000"), IdempotencyKey: "req-42"}
	first, err := f.advances.Request(ctx, in)
	require.NoError(t, err)

	again, err := f.advances.Request(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	decEqual(t, first.NetAmount.String(), again.NetAmount)

	list, err := f.advances.List(ctx, advance.Filter{EmployeeID: f.employee.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	bal, err := f.advances.Balance(ctx, f.employee.ID)
	require.NoError(t, err)
	decEqual(t, "2000", bal.Drawn)
}

func TestRequest_IdempotencyKeyWithDifferentAmountConflicts(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	_, err := f.advances.Request(ctx, advance.RequestInput{EmployeeID: f.employee.ID, Amount: d("2000"), IdempotencyKey: "req-42"})
	require.NoError(t, err)

	_, err = f.advances.Request(ctx, advance.RequestInput{EmployeeID: f.employee.ID, Amount: d("3000"), IdempotencyKey: "req-42"})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.True(t, generic.IsConflict(err))
}

func TestRequest_IdempotencyKeyScopedToEmployee(t *testing.T) {
	// GIVEN: two employees whose clients pick the same key
	// WHEN: both request an advance
	// THEN: each gets their own advance
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	other, err := f.employers.AddEmployee(ctx, employer.NewEmployee{EmployerID: f.employer.ID, EmployeeCode: "EMP002", Name: "John"})
	require.NoError(t, err)
	_, err = f.employers.UploadPayroll(ctx, f.employer.ID, employer.Upload{
		Month: "2025-03",
		Employees: []earnedwage.PayrollEntry{
			{EmployeeCode: "EMP002", GrossSalary: d("60000"), DaysWorked: 15, Deductions: d("5000")},
		},
	}, "hr-1")
	require.NoError(t, err)

	a1, err := f.advances.Request(ctx, advance.RequestInput{EmployeeID: f.employee.ID, Amount: d("1000"), IdempotencyKey: "1"})
	require.NoError(t, err)
	a2, err := f.advances.Request(ctx, advance.RequestInput{EmployeeID: other.ID, Amount: d("1000"), IdempotencyKey: "1"})
	require.NoError(t, err)

	assert.NotEqual(t, a1.ID, a2.ID)
	assert.Equal(t, other.ID, a2.EmployeeID)
}

func TestRequest_NoPayrollOnFile(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	other, err := f.employers.AddEmployee(ctx, employer.NewEmployee{EmployerID: f.employer.ID, EmployeeCode: "EMP002"})
	require.NoError(t, err)

	_, err = f.advances.Request(ctx, advance.RequestInput{EmployeeID: other.ID, Amount: d("100")})
	assert.True(t, generic.IsNotFound(err))
}

func TestRequest_SuspendedEmployer(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)

	_, err := f.employers.SetStatus(context.Background(), f.employer.ID, employer.StatusSuspended)
	require.NoError(t, err)

	_, err = f.request(t, "100")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestRequest_BlendedFeeBasis(t *testing.T) {
	// GIVEN: employer CRS 4.0 and employee CRS 2.0
	// WHEN: pricing on the blended basis
	// THEN: CRS 3.0 and fee 4.7%
	employeeScore := d("2")
	f := newFixture(t, advance.FeeBasisBlended, &employeeScore)

	adv, err := f.request(t, "10000")
	require.NoError(t, err)
	decEqual(t, "3", adv.RiskScore)
	decEqual(t, "4.7", adv.FeePercentage)
	decEqual(t, "470", adv.FeeAmount)
}

func TestRequest_BlendedWithoutEmployeeScoreUsesDefault(t *testing.T) {
	f := newFixture(t, advance.FeeBasisBlended, nil)

	adv, err := f.request(t, "1000")
	require.NoError(t, err)
	decEqual(t, "3.5", adv.RiskScore)
}

func TestRequest_ConcurrentRequestsCannotOverdraw(t *testing.T) {
	// GIVEN: a 15000 limit
	// WHEN: ten concurrent requests of 2000
	// THEN: exactly seven succeed
	f := newFixture(t, advance.FeeBasisEmployer, nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.request(t, "2000")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, generic.ErrInsufficientBalance), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, succeeded)
	bal, err := f.advances.Balance(context.Background(), f.employee.ID)
	require.NoError(t, err)
	decEqual(t, "14000", bal.Drawn)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLifecycle_ApproveDisburseRepay(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	adv, err := f.request(t, "8000")
	require.NoError(t, err)

	adv, err = f.advances.Approve(ctx, adv.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusApproved, adv.Status)
	assert.Equal(t, "admin-1", adv.DecidedBy)
	require.NotNil(t, adv.DecidedAt)

	adv, err = f.advances.Disburse(ctx, adv.ID, "admin-1", "MPESA-XYZ")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusDisbursed, adv.Status)
	assert.Equal(t, "MPESA-XYZ", adv.DisbursementRef)

	bal, err := f.advances.Balance(ctx, f.employee.ID)
	require.NoError(t, err)
	decEqual(t, "7000", bal.Available)

	adv, err = f.advances.Repay(ctx, adv.ID, "payroll")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRepaid, adv.Status)
	assert.True(t, adv.Status.Terminal())

	bal, err = f.advances.Balance(ctx, f.employee.ID)
	require.NoError(t, err)
	decEqual(t, "15000", bal.Available)

	txs, err := generic.NewLedger(f.store).Transactions(ctx, generic.EntityID(f.employee.ID), "2025-03")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, generic.TxHold, txs[0].Type)
	assert.Equal(t, generic.TxRepayment, txs[1].Type)
}

func TestLifecycle_RejectReversesHold(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	adv, err := f.request(t, "12000")
	require.NoError(t, err)

	adv, err = f.advances.Reject(ctx, adv.ID, "admin-1", "employer not yet verified")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRejected, adv.Status)
	assert.Equal(t, "employer not yet verified", adv.RejectionReason)

	bal, err := f.advances.Balance(ctx, f.employee.ID)
	require.NoError(t, err)
	decEqual(t, "0", bal.Drawn)
	decEqual(t, "15000", bal.Available)
}

func TestLifecycle_IllegalTransitions(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	adv, err := f.request(t, "1000")
	require.NoError(t, err)

	// cannot disburse before approval
	_, err = f.advances.Disburse(ctx, adv.ID, "admin-1", "ref")
	var se *generic.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "pending", se.From)
	assert.Equal(t, "disbursed", se.To)

	_, err = f.advances.Reject(ctx, adv.ID, "admin-1", "no")
	require.NoError(t, err)

	// rejected is terminal; the reversal is not written twice
	_, err = f.advances.Reject(ctx, adv.ID, "admin-1", "again")
	assert.True(t, generic.IsConflict(err))
	_, err = f.advances.Approve(ctx, adv.ID, "admin-1")
	assert.ErrorIs(t, err, generic.ErrInvalidState)

	_, err = f.advances.Approve(ctx, "missing", "admin-1")
	assert.True(t, generic.IsNotFound(err))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, advance.CanTransition(advance.StatusPending, advance.StatusApproved))
	assert.True(t, advance.CanTransition(advance.StatusPending, advance.StatusRejected))
	assert.True(t, advance.CanTransition(advance.StatusApproved, advance.StatusDisbursed))
	assert.True(t, advance.CanTransition(advance.StatusDisbursed, advance.StatusRepaid))
	assert.False(t, advance.CanTransition(advance.StatusApproved, advance.StatusRejected))
	assert.False(t, advance.CanTransition(advance.StatusRepaid, advance.StatusPending))
	assert.False(t, advance.CanTransition(advance.StatusPending, advance.StatusRepaid))
}

// =============================================================================
// QUOTE AND LISTING
// =============================================================================

func TestQuote(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)

	q, err := f.advances.Quote(context.Background(), f.employee.ID, d("10000"))
	require.NoError(t, err)
	decEqual(t, "410", q.FeeAmount)
	decEqual(t, "9590", q.NetAmount)
	decEqual(t, "15000", q.Balance.Available)
}

func TestList_FiltersByStatus(t *testing.T) {
	f := newFixture(t, advance.FeeBasisEmployer, nil)
	ctx := context.Background()

	a1, err := f.request(t, "1000")
	require.NoError(t, err)
	_, err = f.request(t, "2000")
	require.NoError(t, err)
	_, err = f.advances.Approve(ctx, a1.ID, "admin-1")
	require.NoError(t, err)

	pending, err := f.advances.List(ctx, advance.Filter{Status: advance.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	decEqual(t, "2000", pending[0].Amount)

	all, err := f.advances.List(ctx, advance.Filter{EmployerID: f.employer.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
