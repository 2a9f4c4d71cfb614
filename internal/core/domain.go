package core

import (
	"math"
	"strings"
	"time"
)

// Currency codes offered by the entry form. The set is not closed: any
// non-empty code is accepted and only needs a rate at report time.
const (
	USD  = "USD"
	ILS  = "ILS"
	GBP  = "GBP"
	EURO = "EURO"
)

// KnownCurrencies lists the codes the default rates source publishes.
var KnownCurrencies = []string{USD, ILS, GBP, EURO}

type (
	// DateParts is the calendar date an entry was recorded on.
	DateParts struct {
		Year  int `json:"year"`
		Month int `json:"month"` // 1-12
		Day   int `json:"day"`
	}

	// CostInput holds the caller-supplied fields of a new entry.
	CostInput struct {
		Sum         float64
		Currency    string
		Category    string
		Description string
	}

	// CostEntry is one recorded expense. ID and CreatedDate are assigned by
	// the store and never change afterwards.
	CostEntry struct {
		ID          int64     `json:"id"`
		Sum         float64   `json:"sum"`
		Currency    string    `json:"currency"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		CreatedDate DateParts `json:"createdDate"`
	}
)

// DateOf returns the local calendar date of t.
func DateOf(t time.Time) DateParts {
	y, m, d := t.Date()
	return DateParts{Year: y, Month: int(m), Day: d}
}

// Validate checks the input and returns a trimmed copy.
func (in CostInput) Validate() (CostInput, error) {
	out := CostInput{
		Sum:         in.Sum,
		Currency:    strings.TrimSpace(in.Currency),
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
	}
	if math.IsNaN(out.Sum) || math.IsInf(out.Sum, 0) || out.Sum <= 0 {
		return CostInput{}, NewValidationError("sum must be a finite number greater than 0", ErrInvalidSum)
	}
	if out.Currency == "" {
		return CostInput{}, NewValidationError("currency is required", ErrEmptyCurrency)
	}
	if out.Category == "" {
		return CostInput{}, NewValidationError("category is required", ErrEmptyCategory)
	}
	if out.Description == "" {
		return CostInput{}, NewValidationError("description is required", ErrEmptyDescription)
	}
	return out, nil
}

// NewCostEntry validates in and stamps it with the date of now. The ID is
// left for the store to assign.
func NewCostEntry(in CostInput, now time.Time) (CostEntry, error) {
	valid, err := in.Validate()
	if err != nil {
		return CostEntry{}, err
	}
	return CostEntry{
		Sum:         valid.Sum,
		Currency:    valid.Currency,
		Category:    valid.Category,
		Description: valid.Description,
		CreatedDate: DateOf(now),
	}, nil
}

// In reports whether the entry was recorded in the given year and month.
func (e CostEntry) In(year, month int) bool {
	return e.CreatedDate.Year == year && e.CreatedDate.Month == month
}
