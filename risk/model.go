package risk

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MODEL - Category weights and the factors scored under each category
// =============================================================================

// Factor is one scored input, e.g. "liquidity_ratio".
type Factor struct {
	Key         string `json:"key" yaml:"key"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CategoryConfig is a category's weight (percent) and its factor catalogue.
type CategoryConfig struct {
	Category Category        `json:"category"`
	Weight   decimal.Decimal `json:"weight"`
	Factors  []Factor        `json:"factors"`
}

// Model is a validated scoring model. Build one with DefaultModel or LoadModel.
type Model struct {
	Name       string           `json:"name"`
	Categories []CategoryConfig `json:"categories"`
}

// DefaultModel returns the employer scoring model: legal 20, financial 35,
// operational 20, sector 15, AML 10.
func DefaultModel() *Model {
	return &Model{
		Name: "employer",
		Categories: []CategoryConfig{
			{
				Category: LegalCompliance,
				Weight:   decimal.NewFromInt(20),
				Factors: []Factor{
					{Key: "registration_status", Label: "Registration Status", Description: "Company registration validity"},
					{Key: "tax_compliance", Label: "Tax Compliance", Description: "Tax payment history"},
					{Key: "ewa_agreement", Label: "EWA Agreement", Description: "Signed EWA contract"},
				},
			},
			{
				Category: FinancialHealth,
				Weight:   decimal.NewFromInt(35),
				Factors: []Factor{
					{Key: "audited_financials", Label: "Audited Financials", Description: "Financial audit status"},
					{Key: "liquidity_ratio", Label: "Liquidity Ratio", Description: "Ability to meet obligations"},
					{Key: "payroll_sustainability", Label: "Payroll Sustainability", Description: "Payroll funding history"},
				},
			},
			{
				Category: Operational,
				Weight:   decimal.NewFromInt(20),
				Factors: []Factor{
					{Key: "employee_count", Label: "Employee Count", Description: "Workforce size stability"},
					{Key: "churn_rate", Label: "Churn Rate", Description: "Employee turnover"},
					{Key: "payroll_integration", Label: "Payroll Integration", Description: "System integration level"},
				},
			},
			{
				Category: SectorExposure,
				Weight:   decimal.NewFromInt(15),
				Factors: []Factor{
					{Key: "industry_risk", Label: "Industry Risk", Description: "Sector-specific risks"},
					{Key: "regulatory_exposure", Label: "Regulatory Exposure", Description: "Regulatory compliance risk"},
				},
			},
			{
				Category: AMLTransparency,
				Weight:   decimal.NewFromInt(10),
				Factors: []Factor{
					{Key: "beneficial_ownership", Label: "Beneficial Ownership", Description: "Ownership transparency"},
					{Key: "pep_screening", Label: "PEP Screening", Description: "Political exposure screening"},
				},
			},
		},
	}
}

// DefaultEmployeeModel returns the employee scoring model: legal 35,
// financial 45, operational 20. Sector exposure and AML carry no weight for
// an individual and have no factors.
func DefaultEmployeeModel() *Model {
	return &Model{
		Name: "employee",
		Categories: []CategoryConfig{
			{
				Category: LegalCompliance,
				Weight:   decimal.NewFromInt(35),
				Factors: []Factor{
					{Key: "verification_status", Label: "Verification Status", Description: "Identity verified against national ID"},
					{Key: "tax_compliance", Label: "Tax Compliance", Description: "KRA PIN on file and valid"},
					{Key: "consent_data_rights", Label: "Consent & Data Rights", Description: "Signed data processing consent"},
				},
			},
			{
				Category: FinancialHealth,
				Weight:   decimal.NewFromInt(45),
				Factors: []Factor{
					{Key: "account_verification", Label: "Account Verification", Description: "Mobile money or bank account verified"},
				},
			},
			{
				Category: Operational,
				Weight:   decimal.NewFromInt(20),
				Factors: []Factor{
					{Key: "employment_status", Label: "Employment Status", Description: "Confirmed by the employer"},
					{Key: "employment_contract", Label: "Employment Contract", Description: "Contract on file"},
					{Key: "recent_payslips", Label: "Recent Payslips", Description: "Last three payslips provided"},
					{Key: "bank_statements", Label: "Bank Statements", Description: "Statements show salary deposits"},
				},
			},
			{Category: SectorExposure, Weight: decimal.Zero},
			{Category: AMLTransparency, Weight: decimal.Zero},
		},
	}
}

// Validate checks that the model names each of the five categories exactly
// once and that the weights sum to 100. Weights are never renormalised.
func (m *Model) Validate() error {
	seen := make(map[Category]bool, len(m.Categories))
	scores := make(map[Category]CategoryScore, len(m.Categories))
	for _, cc := range m.Categories {
		if !cc.Category.Valid() {
			return &UnknownCategoryError{Category: cc.Category}
		}
		if seen[cc.Category] {
			return eris.Errorf("risk model: category %s listed twice", cc.Category)
		}
		if cc.Weight.IsNegative() {
			return eris.Errorf("risk model: negative weight for %s", cc.Category)
		}
		seen[cc.Category] = true
		scores[cc.Category] = CategoryScore{Category: cc.Category, Weight: cc.Weight, Score: DefaultCategoryScore}
	}
	_, err := CompositeScore(scores)
	return err
}

// Weight returns the configured weight of c.
func (m *Model) Weight(c Category) (decimal.Decimal, bool) {
	for _, cc := range m.Categories {
		if cc.Category == c {
			return cc.Weight, true
		}
	}
	return decimal.Zero, false
}

// DefaultFactors returns every catalogued factor at DefaultCategoryScore,
// the starting point of a fresh review.
func (m *Model) DefaultFactors() map[Category]FactorScores {
	out := make(map[Category]FactorScores, len(m.Categories))
	for _, cc := range m.Categories {
		fs := make(FactorScores, len(cc.Factors))
		for _, f := range cc.Factors {
			fs[f.Key] = DefaultCategoryScore
		}
		out[cc.Category] = fs
	}
	return out
}

// Assess scores the factor inputs under this model. Categories without
// factor data fall back to DefaultCategoryScore.
func (m *Model) Assess(factors map[Category]FactorScores) (Assessment, error) {
	for c := range factors {
		if !c.Valid() {
			return Assessment{}, &UnknownCategoryError{Category: c}
		}
	}

	scores := make(map[Category]CategoryScore, len(m.Categories))
	for _, cc := range m.Categories {
		avg, err := CategoryAverage(factors[cc.Category])
		if err != nil {
			if fe, ok := err.(*InvalidFactorScoreError); ok {
				fe.Category = cc.Category
			}
			return Assessment{}, err
		}
		scores[cc.Category] = CategoryScore{Category: cc.Category, Weight: cc.Weight, Score: avg}
	}

	crs, err := CompositeScore(scores)
	if err != nil {
		return Assessment{}, err
	}
	rating, err := RatingFromScore(crs)
	if err != nil {
		return Assessment{}, err
	}
	fee, err := FeeFromScore(crs)
	if err != nil {
		return Assessment{}, err
	}

	ordered := make([]CategoryScore, 0, len(Categories))
	for _, c := range Categories {
		ordered = append(ordered, scores[c])
	}
	return Assessment{
		Categories:     ordered,
		CompositeScore: crs,
		Rating:         rating,
		FeePercentage:  fee,
	}, nil
}

// =============================================================================
// YAML LOADING
// =============================================================================

type yamlModel struct {
	Name       string         `yaml:"name"`
	Categories []yamlCategory `yaml:"categories"`
}

type yamlCategory struct {
	Category string   `yaml:"category"`
	Weight   float64  `yaml:"weight"`
	Factors  []Factor `yaml:"factors"`
}

// LoadModel reads a scoring model from a YAML file and validates it.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "risk: read model %s", path)
	}
	return ParseModel(data)
}

// ParseModel decodes and validates a YAML scoring model.
func ParseModel(data []byte) (*Model, error) {
	var raw yamlModel
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "risk: parse model")
	}

	m := &Model{Name: raw.Name}
	for _, rc := range raw.Categories {
		m.Categories = append(m.Categories, CategoryConfig{
			Category: Category(rc.Category),
			Weight:   decimal.NewFromFloat(rc.Weight),
			Factors:  rc.Factors,
		})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
