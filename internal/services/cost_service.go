package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"costmanager/internal/core"
	"costmanager/internal/metrics"
)

// CostAppender persists new entries.
type CostAppender interface {
	Append(ctx context.Context, in core.CostInput) (core.CostEntry, error)
}

// Publisher announces recorded entries to downstream consumers.
type Publisher interface {
	PublishCostRecorded(ctx context.Context, entry core.CostEntry) error
}

// CostService records entries in the store and then announces them.
type CostService struct {
	store     CostAppender
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewCostService wires a store with an optional publisher (nil disables
// notifications) and optional metrics.
func NewCostService(store CostAppender, publisher Publisher, m *metrics.Metrics) *CostService {
	return &CostService{
		store:     store,
		publisher: publisher,
		metrics:   m,
	}
}

// Record stores the entry and publishes a notification. A publish failure
// is logged only; the entry is already durable.
func (s *CostService) Record(ctx context.Context, in core.CostInput) (core.CostEntry, error) {
	entry, err := s.store.Append(ctx, in)
	if err != nil {
		return core.CostEntry{}, err
	}
	s.metrics.IncrCostRecorded(entry.Currency)

	if s.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, skipping cost recorded message", "id", entry.ID)
		return entry, nil
	}
	if err := s.publisher.PublishCostRecorded(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to publish cost recorded message",
			"id", entry.ID, "error", err)
	}
	return entry, nil
}

// Close releases the publisher when it holds a connection.
func (s *CostService) Close() error {
	closer, ok := s.publisher.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
