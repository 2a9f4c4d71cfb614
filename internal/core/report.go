package core

// LineItem is one entry as it was recorded, in its original currency.
type LineItem struct {
	Sum         float64 `json:"sum"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Day         int     `json:"day"`
}

// Total is an aggregate amount in a single currency.
type Total struct {
	Currency string  `json:"currency"`
	Total    float64 `json:"total"`
}

// Report is the monthly view of recorded costs. Only Total is converted.
type Report struct {
	Year  int        `json:"year"`
	Month int        `json:"month"`
	Costs []LineItem `json:"costs"`
	Total Total      `json:"total"`
}

// MonthTotal is one bar of the yearly overview.
type MonthTotal struct {
	Month int     `json:"month"`
	Total float64 `json:"total"`
}

// YearSummary holds the twelve monthly totals of a year.
type YearSummary struct {
	Year     int          `json:"year"`
	Currency string       `json:"currency"`
	Months   []MonthTotal `json:"months"`
	Total    float64      `json:"total"`
}

// CategoryTotal is one slice of the per-category breakdown.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// LineItemOf projects a stored entry onto its report line.
func LineItemOf(e CostEntry) LineItem {
	return LineItem{
		Sum:         e.Sum,
		Currency:    e.Currency,
		Category:    e.Category,
		Description: e.Description,
		Day:         e.CreatedDate.Day,
	}
}
