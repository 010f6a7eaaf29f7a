package advance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/earnedwage"
	"github.com/eaziwage/advance-engine/generic"
	"github.com/eaziwage/advance-engine/risk"
)

// =============================================================================
// SERVICE - Advance lifecycle with transactional guarantees
// =============================================================================

type Service struct {
	Repo        Repository
	Eligibility EligibilitySource
	FeeBasis    FeeBasis
	Now         func() time.Time
}

func NewService(repo Repository, elig EligibilitySource, basis FeeBasis) *Service {
	if !basis.Valid() {
		basis = FeeBasisEmployer
	}
	return &Service{
		Repo:        repo,
		Eligibility: elig,
		FeeBasis:    basis,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// PricingScore returns the CRS the fee is computed from.
func (s *Service) PricingScore(e *Eligibility) decimal.Decimal {
	if s.FeeBasis == FeeBasisBlended {
		return risk.BlendScores(e.EmployerScore, e.EmployeeScore)
	}
	if e.EmployerScore != nil {
		return *e.EmployerScore
	}
	return risk.DefaultCategoryScore
}

func (s *Service) eligibility(ctx context.Context, employeeID string) (*Eligibility, error) {
	elig, err := s.Eligibility.Eligibility(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if elig == nil {
		return nil, &generic.NotFoundError{Kind: "payroll accrual", ID: employeeID}
	}
	return elig, nil
}

func (s *Service) balance(elig *Eligibility, drawn generic.Amount) (Balance, error) {
	crs := s.PricingScore(elig)
	fee, err := risk.FeeFromScore(crs)
	if err != nil {
		return Balance{}, err
	}
	available := elig.AdvanceLimit.Sub(drawn.Value)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return Balance{
		EmployeeID:    elig.EmployeeID,
		CycleID:       elig.CycleID,
		Currency:      elig.Currency,
		EarnedWages:   elig.EarnedWages,
		AdvanceLimit:  elig.AdvanceLimit,
		Drawn:         drawn.Value,
		Available:     available,
		RiskScore:     crs,
		FeePercentage: fee,
	}, nil
}

// Balance reports the employee's advance position for the current cycle.
func (s *Service) Balance(ctx context.Context, employeeID string) (*Balance, error) {
	elig, err := s.eligibility(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	var bal Balance
	err = s.Repo.RunInTx(ctx, func(tx Tx) error {
		drawn, err := generic.NewLedger(tx.Ledger()).Drawn(ctx, generic.EntityID(employeeID), elig.CycleID, elig.Currency)
		if err != nil {
			return err
		}
		bal, err = s.balance(elig, drawn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// Quote prices an advance without reserving anything.
func (s *Service) Quote(ctx context.Context, employeeID string, amount decimal.Decimal) (*Quote, error) {
	bal, err := s.Balance(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	q, err := earnedwage.Quote(amount, bal.FeePercentage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrValidation, err)
	}
	return &Quote{AdvanceQuote: q, Balance: *bal}, nil
}

// =============================================================================
// REQUEST - Reserve the amount against the limit
// =============================================================================

// Request creates a pending advance and holds its amount on the ledger.
// The limit check and the hold happen in one transaction so two concurrent
// requests cannot overdraw the cycle. Idempotency keys are scoped to the
// employee: a retry with the same key and amount returns the advance the
// first call created, a different amount under that key conflicts.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Advance, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", generic.ErrValidation)
	}
	if in.Method == "" {
		in.Method = MethodMobileMoney
	}
	if !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown disbursement method %q", generic.ErrValidation, in.Method)
	}

	elig, err := s.eligibility(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !elig.EmployeeActive {
		return nil, fmt.Errorf("%w: employee %s is inactive", generic.ErrValidation, in.EmployeeID)
	}
	if !elig.EmployerActive {
		return nil, fmt.Errorf("%w: employer %s is suspended", generic.ErrValidation, elig.EmployerID)
	}

	now := s.Now()
	adv := &Advance{
		ID:         uuid.NewString(),
		EmployeeID: in.EmployeeID,
		EmployerID: elig.EmployerID,
		CycleID:    elig.CycleID,
		Currency:   elig.Currency,
		Amount:     in.Amount,
		Method:     in.Method,
		Reason:     in.Reason,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey = adv.ID
	}
	requestKey := RequestKey(in.EmployeeID, idemKey)

	var replayed *Advance
	err = s.Repo.RunInTx(ctx, func(tx Tx) error {
		ledger := generic.NewLedger(tx.Ledger())
		entity := generic.EntityID(in.EmployeeID)

		if in.IdempotencyKey != "" {
			prior, err := tx.AdvanceByRequestKey(ctx, requestKey)
			if err != nil {
				return err
			}
			if prior != nil {
				if !prior.Amount.Equal(in.Amount) {
					return fmt.Errorf("%w: key %q already used for an advance of %s",
						generic.ErrDuplicateIdempotencyKey, in.IdempotencyKey, prior.Amount.String())
				}
				replayed = prior
				return nil
			}
		}

		drawn, err := ledger.Drawn(ctx, entity, elig.CycleID, elig.Currency)
		if err != nil {
			return fmt.Errorf("balance check failed: %w", err)
		}
		bal, err := s.balance(elig, drawn)
		if err != nil {
			return err
		}

		requested := generic.NewAmount(in.Amount, elig.Currency)
		available := generic.NewAmount(bal.Available, elig.Currency)
		unspent := generic.NewAmount(elig.EarnedWages.Sub(drawn.Value), elig.Currency)
		if ceiling := available.Min(unspent); requested.GreaterThan(ceiling) {
			return &generic.InsufficientBalanceError{
				EntityID:  entity,
				CycleID:   elig.CycleID,
				Available: ceiling,
				Requested: requested,
				Shortfall: requested.Sub(ceiling),
			}
		}

		q, err := earnedwage.Quote(in.Amount, bal.FeePercentage)
		if err != nil {
			return fmt.Errorf("%w: %v", generic.ErrValidation, err)
		}
		adv.RiskScore = bal.RiskScore
		adv.FeePercentage = q.FeePercentage
		adv.FeeAmount = q.FeeAmount
		adv.NetAmount = q.NetAmount

		if err := ledger.Append(ctx, generic.Transaction{
			ID:             generic.TransactionID(adv.ID + "-hold"),
			EntityID:       entity,
			CycleID:        elig.CycleID,
			EffectiveAt:    now,
			Delta:          requested,
			Type:           generic.TxHold,
			ReferenceID:    adv.ID,
			Reason:         in.Reason,
			IdempotencyKey: requestKey,
			CreatedBy:      in.RequestedBy,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		return tx.SaveAdvance(ctx, adv)
	})
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		zap.L().Info("advance request replayed",
			zap.String("advance_id", replayed.ID),
			zap.String("employee_id", replayed.EmployeeID),
		)
		return replayed, nil
	}

	zap.L().Info("advance requested",
		zap.String("advance_id", adv.ID),
		zap.String("employee_id", adv.EmployeeID),
		zap.String("amount", adv.Amount.String()),
		zap.String("fee_percentage", adv.FeePercentage.StringFixed(2)),
	)
	return adv, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Approve moves a pending advance to approved. The hold already covers it.
func (s *Service) Approve(ctx context.Context, id, actor string) (*Advance, error) {
	return s.transition(ctx, id, StatusApproved, actor, func(adv *Advance, now time.Time) []generic.Transaction {
		adv.DecidedBy = actor
		adv.DecidedAt = &now
		return nil
	})
}

// Reject moves a pending advance to rejected and reverses its hold.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*Advance, error) {
	return s.transition(ctx, id, StatusRejected, actor, func(adv *Advance, now time.Time) []generic.Transaction {
		adv.DecidedBy = actor
		adv.DecidedAt = &now
		adv.RejectionReason = reason
		return []generic.Transaction{releaseTx(adv, generic.TxReversal, "rejected: "+reason, actor, now)}
	})
}

// Disburse records that the net amount was paid out.
func (s *Service) Disburse(ctx context.Context, id, actor, reference string) (*Advance, error) {
	return s.transition(ctx, id, StatusDisbursed, actor, func(adv *Advance, now time.Time) []generic.Transaction {
		adv.DisbursementRef = reference
		adv.DisbursedAt = &now
		return nil
	})
}

// Repay records recovery from payroll and releases the limit.
func (s *Service) Repay(ctx context.Context, id, actor string) (*Advance, error) {
	return s.transition(ctx, id, StatusRepaid, actor, func(adv *Advance, now time.Time) []generic.Transaction {
		adv.RepaidAt = &now
		return []generic.Transaction{releaseTx(adv, generic.TxRepayment, "repaid", actor, now)}
	})
}

func (s *Service) transition(ctx context.Context, id string, to Status, actor string,
	apply func(adv *Advance, now time.Time) []generic.Transaction) (*Advance, error) {

	var out *Advance
	err := s.Repo.RunInTx(ctx, func(tx Tx) error {
		adv, err := tx.GetAdvance(ctx, id)
		if err != nil {
			return err
		}
		if adv == nil {
			return &generic.NotFoundError{Kind: "advance", ID: id}
		}
		if !CanTransition(adv.Status, to) {
			return &generic.StateError{Kind: "advance", ID: id, From: string(adv.Status), To: string(to)}
		}

		now := s.Now()
		txs := apply(adv, now)
		if len(txs) > 0 {
			if err := generic.NewLedger(tx.Ledger()).AppendBatch(ctx, txs); err != nil {
				return err
			}
		}

		from := adv.Status
		adv.Status = to
		adv.UpdatedAt = now
		if err := tx.SaveAdvance(ctx, adv); err != nil {
			return err
		}

		zap.L().Info("advance status changed",
			zap.String("advance_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("actor", actor),
		)
		out = adv
		return nil
	})
	return out, err
}

// RequestKey is the ledger idempotency key of an advance request's hold.
func RequestKey(employeeID, key string) string {
	return "advance-request-" + employeeID + "-" + key
}

func releaseTx(adv *Advance, typ generic.TransactionType, reason, actor string, now time.Time) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(fmt.Sprintf("%s-%s", adv.ID, typ)),
		EntityID:       generic.EntityID(adv.EmployeeID),
		CycleID:        adv.CycleID,
		EffectiveAt:    now,
		Delta:          generic.NewAmount(adv.Amount.Neg(), adv.Currency),
		Type:           typ,
		ReferenceID:    adv.ID,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("advance-%s-%s", typ, adv.ID),
		CreatedBy:      actor,
		CreatedAt:      now,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Get(ctx context.Context, id string) (*Advance, error) {
	adv, err := s.Repo.GetAdvance(ctx, id)
	if err != nil {
		return nil, err
	}
	if adv == nil {
		return nil, &generic.NotFoundError{Kind: "advance", ID: id}
	}
	return adv, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Advance, error) {
	return s.Repo.ListAdvances(ctx, f)
}
