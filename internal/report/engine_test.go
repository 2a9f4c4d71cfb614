package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"costmanager/internal/core"
	"costmanager/internal/storage/memory"
)

type stubRates struct {
	table core.RatesTable
	err   error
}

func (s stubRates) Fetch(context.Context) (core.RatesTable, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.table.Clone(), nil
}

type failingLister struct{ err error }

func (f failingLister) ListAll(context.Context) ([]core.CostEntry, error) {
	return nil, f.err
}

type seedEntry struct {
	date     time.Time
	sum      float64
	currency string
	category string
}

func seededStore(t *testing.T, entries []seedEntry) *memory.Store {
	t.Helper()
	var now time.Time
	store := memory.NewWithClock(func() time.Time { return now })
	for _, e := range entries {
		now = e.date
		_, err := store.Append(context.Background(), core.CostInput{
			Sum:         e.sum,
			Currency:    e.currency,
			Category:    e.category,
			Description: e.category + " expense",
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.Local)
}

func sampleStore(t *testing.T) *memory.Store {
	return seededStore(t, []seedEntry{
		{day(2024, time.March, 5), 100, core.USD, "Food"},
		{day(2024, time.March, 10), 50, core.EURO, "Travel"},
		{day(2024, time.April, 1), 10, core.USD, "Food"},
	})
}

var sampleRates = core.RatesTable{core.USD: 1, core.EURO: 0.7}

func TestGenerate(t *testing.T) {
	engine := NewEngine(sampleStore(t), stubRates{table: sampleRates}, nil)

	tests := []struct {
		name      string
		year      int
		month     int
		currency  string
		wantCosts []core.LineItem
		wantTotal float64
	}{
		{
			name:     "march in USD",
			year:     2024,
			month:    3,
			currency: core.USD,
			wantCosts: []core.LineItem{
				{Sum: 100, Currency: core.USD, Category: "Food", Description: "Food expense", Day: 5},
				{Sum: 50, Currency: core.EURO, Category: "Travel", Description: "Travel expense", Day: 10},
			},
			wantTotal: 171.43,
		},
		{
			name:     "april in EURO",
			year:     2024,
			month:    4,
			currency: core.EURO,
			wantCosts: []core.LineItem{
				{Sum: 10, Currency: core.USD, Category: "Food", Description: "Food expense", Day: 1},
			},
			wantTotal: 7,
		},
		{
			name:      "empty month",
			year:      2023,
			month:     3,
			currency:  core.USD,
			wantCosts: []core.LineItem{},
			wantTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Generate(context.Background(), tt.year, tt.month, tt.currency)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if got.Year != tt.year || got.Month != tt.month {
				t.Errorf("period = %d/%d, want %d/%d", got.Year, got.Month, tt.year, tt.month)
			}
			if len(got.Costs) != len(tt.wantCosts) {
				t.Fatalf("costs = %d, want %d", len(got.Costs), len(tt.wantCosts))
			}
			for i := range tt.wantCosts {
				if got.Costs[i] != tt.wantCosts[i] {
					t.Errorf("cost[%d] = %+v, want %+v", i, got.Costs[i], tt.wantCosts[i])
				}
			}
			if got.Total.Currency != tt.currency || got.Total.Total != tt.wantTotal {
				t.Errorf("total = %+v, want %s %v", got.Total, tt.currency, tt.wantTotal)
			}
		})
	}
}

func TestGenerateFailures(t *testing.T) {
	storeErr := core.NewStorageError("store closed", nil)
	ratesErr := core.NewRatesFetchError("source down", nil)

	tests := []struct {
		name     string
		lister   CostLister
		rates    RatesFetcher
		want     error
		currency string
	}{
		{"storage failure", failingLister{err: storeErr}, stubRates{table: sampleRates}, core.ErrStorageUnavailable, core.USD},
		{"rates failure", sampleStore(t), stubRates{err: ratesErr}, core.ErrRatesFetch, core.USD},
		{"target currency missing", sampleStore(t), stubRates{table: sampleRates}, core.ErrMissingRate, core.GBP},
		{"entry currency missing", sampleStore(t), stubRates{table: core.RatesTable{core.USD: 1}}, core.ErrMissingRate, core.USD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.lister, tt.rates, nil)
			_, err := engine.Generate(context.Background(), 2024, 3, tt.currency)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestYearly(t *testing.T) {
	engine := NewEngine(sampleStore(t), stubRates{table: sampleRates}, nil)

	got, err := engine.Yearly(context.Background(), 2024, core.USD)
	if err != nil {
		t.Fatalf("yearly: %v", err)
	}
	if len(got.Months) != 12 {
		t.Fatalf("months = %d, want 12", len(got.Months))
	}
	for i, m := range got.Months {
		if m.Month != i+1 {
			t.Errorf("months[%d].Month = %d", i, m.Month)
		}
	}
	if got.Months[2].Total != 171.43 || got.Months[3].Total != 10 || got.Months[0].Total != 0 {
		t.Errorf("unexpected monthly totals %+v", got.Months)
	}
	if got.Total != 181.43 {
		t.Errorf("year total = %v, want 181.43", got.Total)
	}
}

func TestYearlyFailsWhenAnyMonthFails(t *testing.T) {
	store := seededStore(t, []seedEntry{
		{day(2024, time.June, 1), 5, core.GBP, "Books"},
	})
	engine := NewEngine(store, stubRates{table: sampleRates}, nil)

	if _, err := engine.Yearly(context.Background(), 2024, core.USD); !errors.Is(err, core.ErrMissingRate) {
		t.Fatalf("expected missing rate error, got %v", err)
	}
}

func TestByCategory(t *testing.T) {
	store := seededStore(t, []seedEntry{
		{day(2024, time.March, 1), 20, core.USD, "Travel"},
		{day(2024, time.March, 2), 10, core.EURO, "Food"},
		{day(2024, time.March, 3), 30, core.USD, "Travel"},
		{day(2024, time.April, 3), 99, core.USD, "Rent"},
	})
	engine := NewEngine(store, stubRates{table: sampleRates}, nil)

	got, err := engine.ByCategory(context.Background(), 2024, 3, core.USD)
	if err != nil {
		t.Fatalf("by category: %v", err)
	}
	want := []core.CategoryTotal{
		{Category: "Travel", Total: 50},
		{Category: "Food", Total: 14.29},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("category[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
