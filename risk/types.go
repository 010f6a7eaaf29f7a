/*
Package risk maps employer risk factors to a composite score, a rating and
the advance application fee.

PURPOSE:
  Every employer is scored on five categories. Each category score is the
  mean of its factor scores (0-5). The Composite Risk Score (CRS) is the
  weighted sum of the category scores, and from the CRS we derive:

    Rating   A  4.0 <= CRS <= 5.0   Low Risk
             B  3.0 <= CRS <  4.0   Medium Risk
             C  2.6 <= CRS <  3.0   High Risk
             D  0.0 <= CRS <  2.6   Very High Risk

    Fee %    3.5 + 3 x (1 - CRS/5)    (6.5% at CRS 0, 3.5% at CRS 5)

  Everything here is a pure function over decimal.Decimal values. Nothing
  holds state, so the functions are safe to call from any goroutine.

DEFAULT SCORE:
  A category with no factor data scores DefaultCategoryScore (3.0). This is
  the risk-neutral placeholder the admin scoring form starts every factor
  at, kept as explicit policy.

SEE ALSO:
  - engine.go: CategoryAverage, CompositeScore, RatingFromScore, FeeFromScore
  - model.go: Category weights and factor catalogue
  - errors.go: Error taxonomy
*/
package risk

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORIES
// =============================================================================

type Category string

const (
	LegalCompliance Category = "legal_compliance"
	FinancialHealth Category = "financial_health"
	Operational     Category = "operational"
	SectorExposure  Category = "sector_exposure"
	AMLTransparency Category = "aml_transparency"
)

// Categories lists the five scored categories in display order.
var Categories = []Category{
	LegalCompliance,
	FinancialHealth,
	Operational,
	SectorExposure,
	AMLTransparency,
}

// Valid reports whether c is one of the five fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// =============================================================================
// SCORES
// =============================================================================

var (
	MinScore = decimal.Zero
	MaxScore = decimal.NewFromInt(5)

	// DefaultCategoryScore is used for a category without factor data.
	DefaultCategoryScore = decimal.NewFromInt(3)
)

// FactorScores maps factor key (e.g. "tax_compliance") to a score in [0,5].
type FactorScores map[string]decimal.Decimal

// CategoryScore is one category's contribution to the CRS.
// Weight is a percentage; the five weights of a model sum to 100.
type CategoryScore struct {
	Category Category        `json:"category"`
	Weight   decimal.Decimal `json:"weight"`
	Score    decimal.Decimal `json:"score"`
}

// =============================================================================
// RATING
// =============================================================================

type Letter string

const (
	RatingA Letter = "A"
	RatingB Letter = "B"
	RatingC Letter = "C"
	RatingD Letter = "D"
)

type Rating struct {
	Letter Letter `json:"letter"`
	Label  string `json:"label"`
}

var (
	LowRisk      = Rating{Letter: RatingA, Label: "Low Risk"}
	MediumRisk   = Rating{Letter: RatingB, Label: "Medium Risk"}
	HighRisk     = Rating{Letter: RatingC, Label: "High Risk"}
	VeryHighRisk = Rating{Letter: RatingD, Label: "Very High Risk"}
)

func (r Rating) String() string { return string(r.Letter) }

// =============================================================================
// ASSESSMENT - Everything the dashboards display for one employer
// =============================================================================

// Assessment is the result of scoring one set of factor inputs.
// FeePercentage keeps full precision; use DisplayPercent for presentation.
type Assessment struct {
	Categories     []CategoryScore `json:"categories"`
	CompositeScore decimal.Decimal `json:"composite_score"`
	Rating         Rating          `json:"rating"`
	FeePercentage  decimal.Decimal `json:"fee_percentage"`
}
