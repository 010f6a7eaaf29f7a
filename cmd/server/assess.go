package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eaziwage/advance-engine/risk"
)

// factorSheet is the YAML an assessor fills in:
//
//	industry: mining
//	factors:
//	  legal_compliance:
//	    tax_compliance: 4
type factorSheet struct {
	Industry string                       `yaml:"industry"`
	Factors  map[string]map[string]string `yaml:"factors"`
}

func parseFactorSheet(data []byte) (string, map[risk.Category]risk.FactorScores, error) {
	var sheet factorSheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return "", nil, eris.Wrap(err, "parse factor sheet")
	}

	factors := make(map[risk.Category]risk.FactorScores, len(sheet.Factors))
	for cat, scores := range sheet.Factors {
		fs := make(risk.FactorScores, len(scores))
		for key, raw := range scores {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return "", nil, fmt.Errorf("factor %s.%s: %q is not a number", cat, key, raw)
			}
			fs[key] = d
		}
		factors[risk.Category(cat)] = fs
	}
	if sheet.Industry != "" {
		risk.PrefillSector(factors, sheet.Industry)
	}
	return sheet.Industry, factors, nil
}

type assessOutput struct {
	Industry string          `json:"industry,omitempty"`
	Result   risk.Assessment `json:"result"`
	Fee      string          `json:"fee_display"`
}

var assessCmd = &cobra.Command{
	Use:   "assess <factors.yaml>",
	Short: "Score an employer factor sheet and print the rating and fee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		industry, factors, err := parseFactorSheet(data)
		if err != nil {
			return err
		}

		model, err := loadModel()
		if err != nil {
			return err
		}
		result, err := model.Assess(factors)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(assessOutput{
			Industry: industry,
			Result:   result,
			Fee:      risk.DisplayPercent(result.FeePercentage).StringFixed(2) + "%",
		})
	},
}

func init() {
	rootCmd.AddCommand(assessCmd)
}
