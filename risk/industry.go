package risk

import (
	"sort"

	"github.com/shopspring/decimal"
)

// industryRisk scores sector exposure per industry code (5 = lowest risk).
var industryRisk = map[string]int64{
	"agriculture":           3,
	"manufacturing":         3,
	"construction":          3,
	"mining":                1,
	"retail":                3,
	"hospitality":           3,
	"healthcare":            5,
	"education":             5,
	"financial_services":    5,
	"technology":            5,
	"transport":             3,
	"utilities":             5,
	"real_estate":           3,
	"professional_services": 5,
	"government":            5,
	"ngo":                   3,
	"other":                 3,
}

// IndustryScore returns the industry_risk factor score for an industry code.
// Unknown industries score DefaultCategoryScore.
func IndustryScore(industry string) decimal.Decimal {
	if s, ok := industryRisk[industry]; ok {
		return decimal.NewFromInt(s)
	}
	return DefaultCategoryScore
}

// Industries returns the known industry codes, sorted.
func Industries() []string {
	out := make([]string, 0, len(industryRisk))
	for k := range industryRisk {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PrefillSector seeds the sector_exposure industry_risk factor from the
// employer's industry unless the reviewer already scored it.
func PrefillSector(factors map[Category]FactorScores, industry string) {
	fs := factors[SectorExposure]
	if fs == nil {
		fs = FactorScores{}
		factors[SectorExposure] = fs
	}
	if _, ok := fs["industry_risk"]; !ok {
		fs["industry_risk"] = IndustryScore(industry)
	}
}
