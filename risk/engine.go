package risk

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	baseFee        = decimal.RequireFromString("3.5")
	riskAdjustment = decimal.NewFromInt(3)
	perPoint       = decimal.RequireFromString("0.2") // 1/MaxScore, kept exact

	thresholdA = decimal.NewFromInt(4)
	thresholdB = decimal.NewFromInt(3)
	thresholdC = decimal.RequireFromString("2.6")
)

// =============================================================================
// CATEGORY AVERAGE
// =============================================================================

// CategoryAverage returns the arithmetic mean of the factor scores.
// An empty set scores DefaultCategoryScore.
func CategoryAverage(factors FactorScores) (decimal.Decimal, error) {
	if len(factors) == 0 {
		return DefaultCategoryScore, nil
	}

	keys := make([]string, 0, len(factors))
	for k := range factors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sum := decimal.Zero
	for _, k := range keys {
		score := factors[k]
		if !inScoreRange(score) {
			return decimal.Zero, &InvalidFactorScoreError{Factor: k, Score: score}
		}
		sum = sum.Add(score)
	}
	return sum.Div(decimal.NewFromInt(int64(len(factors)))), nil
}

// =============================================================================
// COMPOSITE SCORE
// =============================================================================

// CompositeScore returns Σ score × weight/100 over the five categories.
// All five must be present with non-negative weights summing to exactly 100.
func CompositeScore(scores map[Category]CategoryScore) (decimal.Decimal, error) {
	for c := range scores {
		if !c.Valid() {
			return decimal.Zero, &UnknownCategoryError{Category: c}
		}
	}

	total := decimal.Zero
	crs := decimal.Zero
	for _, c := range Categories {
		cs, ok := scores[c]
		if !ok {
			return decimal.Zero, &MissingCategoryError{Category: c}
		}
		if !inScoreRange(cs.Score) {
			return decimal.Zero, &InvalidFactorScoreError{Category: c, Score: cs.Score}
		}
		if cs.Weight.IsNegative() {
			return decimal.Zero, &WeightMismatchError{Category: c, Total: cs.Weight}
		}
		total = total.Add(cs.Weight)
		crs = crs.Add(cs.Score.Mul(cs.Weight).Div(hundred))
	}

	if !total.Equal(hundred) {
		return decimal.Zero, &WeightMismatchError{Total: total}
	}
	return crs, nil
}

// =============================================================================
// RATING
// =============================================================================

// RatingFromScore looks up the rating band for crs.
// Bands are closed below and open above, except A which includes 5.0.
func RatingFromScore(crs decimal.Decimal) (Rating, error) {
	if !inScoreRange(crs) {
		return Rating{}, &OutOfRangeError{Score: crs}
	}

	switch {
	case crs.GreaterThanOrEqual(thresholdA):
		return LowRisk, nil
	case crs.GreaterThanOrEqual(thresholdB):
		return MediumRisk, nil
	case crs.GreaterThanOrEqual(thresholdC):
		return HighRisk, nil
	default:
		return VeryHighRisk, nil
	}
}

// =============================================================================
// FEE
// =============================================================================

// FeeFromScore returns the application fee percentage 3.5 + 3 × (1 − crs/5)
// at full precision. Round only for display.
func FeeFromScore(crs decimal.Decimal) (decimal.Decimal, error) {
	if !inScoreRange(crs) {
		return decimal.Zero, &OutOfRangeError{Score: crs}
	}
	return baseFee.Add(riskAdjustment.Mul(decimal.NewFromInt(1).Sub(crs.Mul(perPoint)))), nil
}

// DisplayPercent rounds a percentage to two decimals for presentation.
func DisplayPercent(pct decimal.Decimal) decimal.Decimal {
	return pct.Round(2)
}

// BlendScores averages the employer and employee CRS. A missing score counts
// as DefaultCategoryScore.
func BlendScores(employer, employee *decimal.Decimal) decimal.Decimal {
	e1, e2 := DefaultCategoryScore, DefaultCategoryScore
	if employer != nil {
		e1 = *employer
	}
	if employee != nil {
		e2 = *employee
	}
	return e1.Add(e2).Div(decimal.NewFromInt(2))
}

func inScoreRange(s decimal.Decimal) bool {
	return !s.LessThan(MinScore) && !s.GreaterThan(MaxScore)
}
