package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidFactorScore is returned for a factor or category score outside [0,5].
	ErrInvalidFactorScore = errors.New("invalid factor score")

	// ErrMissingCategory is returned when one of the five categories is absent.
	ErrMissingCategory = errors.New("missing risk category")

	// ErrUnknownCategory is returned for a category outside the fixed five.
	ErrUnknownCategory = errors.New("unknown risk category")

	// ErrWeightMismatch is returned when category weights do not sum to 100.
	ErrWeightMismatch = errors.New("category weights do not sum to 100")

	// ErrOutOfRange is returned when a CRS outside [0,5] is rated or priced.
	ErrOutOfRange = errors.New("composite risk score out of range")
)

type InvalidFactorScoreError struct {
	Category Category
	Factor   string
	Score    decimal.Decimal
}

func (e *InvalidFactorScoreError) Error() string {
	if e.Factor == "" {
		return fmt.Sprintf("invalid score %s for category %s: must be within [0,5]", e.Score, e.Category)
	}
	return fmt.Sprintf("invalid score %s for factor %s: must be within [0,5]", e.Score, e.Factor)
}

func (e *InvalidFactorScoreError) Unwrap() error { return ErrInvalidFactorScore }

type MissingCategoryError struct {
	Category Category
}

func (e *MissingCategoryError) Error() string {
	return fmt.Sprintf("missing risk category %s", e.Category)
}

func (e *MissingCategoryError) Unwrap() error { return ErrMissingCategory }

type UnknownCategoryError struct {
	Category Category
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown risk category %q", string(e.Category))
}

func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

// WeightMismatchError reports weights that do not sum to 100. When Category
// is set, Total is that category's negative weight.
type WeightMismatchError struct {
	Category Category
	Total    decimal.Decimal
}

func (e *WeightMismatchError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("category %s has negative weight %s", e.Category, e.Total)
	}
	return fmt.Sprintf("category weights sum to %s, want 100", e.Total)
}

func (e *WeightMismatchError) Unwrap() error { return ErrWeightMismatch }

type OutOfRangeError struct {
	Score decimal.Decimal
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("composite risk score %s outside [0,5]", e.Score)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }

// IsConfigError reports whether err comes from a malformed model rather than
// from scored input.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingCategory) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrWeightMismatch)
}

// IsInputError reports whether err comes from out-of-range scores.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidFactorScore) ||
		errors.Is(err, ErrOutOfRange)
}
