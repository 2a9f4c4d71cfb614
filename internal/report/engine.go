// Package report builds currency-converted views over recorded costs.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"costmanager/internal/core"
	"costmanager/internal/metrics"
)

// CostLister enumerates every recorded entry in ascending id order.
type CostLister interface {
	ListAll(ctx context.Context) ([]core.CostEntry, error)
}

// RatesFetcher returns the rates table currently in effect.
type RatesFetcher interface {
	Fetch(ctx context.Context) (core.RatesTable, error)
}

// Engine owns no state of its own; it composes a store and a rates client.
type Engine struct {
	costs   CostLister
	rates   RatesFetcher
	metrics *metrics.Metrics
}

func NewEngine(costs CostLister, rates RatesFetcher, m *metrics.Metrics) *Engine {
	return &Engine{costs: costs, rates: rates, metrics: m}
}

// load reads entries and rates concurrently and keeps the entries of the
// given month, preserving store order.
func (e *Engine) load(ctx context.Context, year, month int) ([]core.CostEntry, core.RatesTable, error) {
	var (
		all   []core.CostEntry
		rates core.RatesTable
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		all, err = e.costs.ListAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rates, err = e.rates.Fetch(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	filtered := make([]core.CostEntry, 0, len(all))
	for _, entry := range all {
		if entry.In(year, month) {
			filtered = append(filtered, entry)
		}
	}
	return filtered, rates, nil
}

// Generate returns the month's entries in their recorded currency together
// with their total converted into currency and rounded to cents.
func (e *Engine) Generate(ctx context.Context, year, month int, currency string) (core.Report, error) {
	defer e.observe("monthly", time.Now())

	entries, rates, err := e.load(ctx, year, month)
	if err != nil {
		return core.Report{}, err
	}

	costs := make([]core.LineItem, 0, len(entries))
	var total float64
	for _, entry := range entries {
		converted, err := core.Convert(entry.Sum, entry.Currency, currency, rates)
		if err != nil {
			return core.Report{}, fmt.Errorf("entry %d: %w", entry.ID, err)
		}
		total += converted
		costs = append(costs, core.LineItemOf(entry))
	}

	slog.DebugContext(ctx, "Report generated",
		"year", year, "month", month, "currency", currency, "costs", len(costs))

	return core.Report{
		Year:  year,
		Month: month,
		Costs: costs,
		Total: core.Total{Currency: currency, Total: core.Round2(total)},
	}, nil
}

// Yearly generates the twelve monthly reports of a year concurrently. Any
// failing month fails the whole summary.
func (e *Engine) Yearly(ctx context.Context, year int, currency string) (core.YearSummary, error) {
	defer e.observe("yearly", time.Now())

	months := make([]core.MonthTotal, 12)
	g, gctx := errgroup.WithContext(ctx)
	for i := range months {
		month := i + 1
		g.Go(func() error {
			r, err := e.Generate(gctx, year, month, currency)
			if err != nil {
				return fmt.Errorf("month %d: %w", month, err)
			}
			months[month-1] = core.MonthTotal{Month: month, Total: r.Total.Total}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.YearSummary{}, err
	}

	var total float64
	for _, m := range months {
		total += m.Total
	}
	return core.YearSummary{
		Year:     year,
		Currency: currency,
		Months:   months,
		Total:    core.Round2(total),
	}, nil
}

// ByCategory totals the month per category in the target currency. Categories
// appear in the order they were first recorded.
func (e *Engine) ByCategory(ctx context.Context, year, month int, currency string) ([]core.CategoryTotal, error) {
	defer e.observe("categories", time.Now())

	entries, rates, err := e.load(ctx, year, month)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	out := make([]core.CategoryTotal, 0)
	for _, entry := range entries {
		converted, err := core.Convert(entry.Sum, entry.Currency, currency, rates)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", entry.ID, err)
		}
		i, ok := index[entry.Category]
		if !ok {
			i = len(out)
			index[entry.Category] = i
			out = append(out, core.CategoryTotal{Category: entry.Category})
		}
		out[i].Total += converted
	}
	for i := range out {
		out[i].Total = core.Round2(out[i].Total)
	}
	return out, nil
}

func (e *Engine) observe(kind string, start time.Time) {
	e.metrics.ObserveReport(kind, time.Since(start))
}
