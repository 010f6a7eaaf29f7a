package risk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaziwage/advance-engine/risk"
)

func TestDefaultModel_Valid(t *testing.T) {
	m := risk.DefaultModel()
	require.NoError(t, m.Validate())

	w, ok := m.Weight(risk.FinancialHealth)
	require.True(t, ok)
	decEqual(t, "35", w)
}

func TestDefaultEmployeeModel(t *testing.T) {
	// GIVEN: the employee model, where sector and AML carry no weight
	// WHEN: scoring legal 5, financial 4, operational 2
	// THEN: CRS = 5x0.35 + 4x0.45 + 2x0.20 = 3.95, rating B
	m := risk.DefaultEmployeeModel()
	require.NoError(t, m.Validate())

	factors := m.DefaultFactors()
	assert.Empty(t, factors[risk.SectorExposure])
	for k := range factors[risk.LegalCompliance] {
		factors[risk.LegalCompliance][k] = d("5")
	}
	factors[risk.FinancialHealth]["account_verification"] = d("4")
	for k := range factors[risk.Operational] {
		factors[risk.Operational][k] = d("2")
	}

	a, err := m.Assess(factors)
	require.NoError(t, err)
	decEqual(t, "3.95", a.CompositeScore)
	assert.Equal(t, risk.MediumRisk, a.Rating)
	decEqual(t, "4.13", a.FeePercentage)
}

func TestModel_AssessDefaultsIsMediumRisk(t *testing.T) {
	// GIVEN: a fresh review with every factor at the default
	// WHEN: assessing
	// THEN: CRS 3.0, rating B, fee 4.7%
	m := risk.DefaultModel()

	a, err := m.Assess(m.DefaultFactors())
	require.NoError(t, err)
	decEqual(t, "3", a.CompositeScore)
	assert.Equal(t, risk.MediumRisk, a.Rating)
	decEqual(t, "4.7", a.FeePercentage)
	require.Len(t, a.Categories, 5)
	assert.Equal(t, risk.LegalCompliance, a.Categories[0].Category)
}

func TestModel_AssessStrongEmployer(t *testing.T) {
	m := risk.DefaultModel()
	factors := m.DefaultFactors()
	for c := range factors {
		for k := range factors[c] {
			factors[c][k] = d("4")
		}
	}

	a, err := m.Assess(factors)
	require.NoError(t, err)
	decEqual(t, "4", a.CompositeScore)
	assert.Equal(t, risk.LowRisk, a.Rating)
	decEqual(t, "4.1", a.FeePercentage)
}

func TestModel_AssessMissingCategoryDataUsesDefault(t *testing.T) {
	m := risk.DefaultModel()

	a, err := m.Assess(map[risk.Category]risk.FactorScores{
		risk.FinancialHealth: {"audited_financials": d("5"), "liquidity_ratio": d("5"), "payroll_sustainability": d("5")},
	})
	require.NoError(t, err)
	// 5*0.35 + 3*0.65
	decEqual(t, "3.7", a.CompositeScore)
}

func TestModel_AssessRejectsBadInput(t *testing.T) {
	m := risk.DefaultModel()

	_, err := m.Assess(map[risk.Category]risk.FactorScores{
		risk.Operational: {"churn_rate": d("9")},
	})
	var fe *risk.InvalidFactorScoreError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, risk.Operational, fe.Category)
	assert.Equal(t, "churn_rate", fe.Factor)

	_, err = m.Assess(map[risk.Category]risk.FactorScores{"esg": {"x": d("3")}})
	assert.ErrorIs(t, err, risk.ErrUnknownCategory)
}

func TestParseModel(t *testing.T) {
	yml := `
name: conservative
categories:
  - category: legal_compliance
    weight: 25
    factors:
      - key: registration_status
        label: Registration Status
  - category: financial_health
    weight: 40
  - category: operational
    weight: 15
  - category: sector_exposure
    weight: 10
  - category: aml_transparency
    weight: 10
`
	m, err := risk.ParseModel([]byte(yml))
	require.NoError(t, err)
	assert.Equal(t, "conservative", m.Name)

	w, ok := m.Weight(risk.FinancialHealth)
	require.True(t, ok)
	decEqual(t, "40", w)
	assert.Len(t, m.DefaultFactors()[risk.LegalCompliance], 1)
}

func TestParseModel_WeightsMustSumTo100(t *testing.T) {
	yml := `
categories:
  - {category: legal_compliance, weight: 20}
  - {category: financial_health, weight: 20}
  - {category: operational, weight: 20}
  - {category: sector_exposure, weight: 20}
  - {category: aml_transparency, weight: 10}
`
	_, err := risk.ParseModel([]byte(yml))
	assert.ErrorIs(t, err, risk.ErrWeightMismatch)
}

func TestParseModel_MissingCategory(t *testing.T) {
	yml := `
categories:
  - {category: legal_compliance, weight: 20}
  - {category: financial_health, weight: 45}
  - {category: operational, weight: 20}
  - {category: sector_exposure, weight: 15}
`
	_, err := risk.ParseModel([]byte(yml))
	assert.ErrorIs(t, err, risk.ErrMissingCategory)
}

func TestParseModel_Malformed(t *testing.T) {
	_, err := risk.ParseModel([]byte("categories: [: oops"))
	assert.Error(t, err)
}

func TestLoadModel_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	yml := `
name: file
categories:
  - {category: legal_compliance, weight: 20}
  - {category: financial_health, weight: 35}
  - {category: operational, weight: 20}
  - {category: sector_exposure, weight: 15}
  - {category: aml_transparency, weight: 10}
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	m, err := risk.LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "file", m.Name)

	_, err = risk.LoadModel(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestIndustryScore(t *testing.T) {
	decEqual(t, "1", risk.IndustryScore("mining"))
	decEqual(t, "5", risk.IndustryScore("technology"))
	decEqual(t, "3", risk.IndustryScore("space_tourism"))
	assert.Contains(t, risk.Industries(), "hospitality")
}

func TestPrefillSector(t *testing.T) {
	factors := map[risk.Category]risk.FactorScores{}
	risk.PrefillSector(factors, "mining")
	decEqual(t, "1", factors[risk.SectorExposure]["industry_risk"])

	// reviewer scores win
	factors[risk.SectorExposure]["industry_risk"] = d("4")
	risk.PrefillSector(factors, "mining")
	decEqual(t, "4", factors[risk.SectorExposure]["industry_risk"])
}
