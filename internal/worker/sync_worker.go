package worker

import (
	"context"
	"fmt"
	"log/slog"

	"costmanager/internal/amqp"
	"costmanager/internal/core"
	"costmanager/internal/sheets"
)

// CostLister enumerates stored entries for the startup backfill.
type CostLister interface {
	ListAll(ctx context.Context) ([]core.CostEntry, error)
}

// SyncWorker exports recorded costs to a spreadsheet.
type SyncWorker struct {
	sheets sheets.CostWriter
}

func NewSyncWorker(writer sheets.CostWriter) *SyncWorker {
	return &SyncWorker{sheets: writer}
}

// HandleCostRecorded exports the entry carried by one message. An error
// makes the consumer requeue the message.
func (w *SyncWorker) HandleCostRecorded(ctx context.Context, msg *amqp.CostRecordedMessage) error {
	slog.InfoContext(ctx, "Processing cost recorded message",
		"id", msg.Entry.ID,
		"published_at", msg.Timestamp)

	if err := w.sheets.AppendCost(ctx, msg.Entry); err != nil {
		return fmt.Errorf("append cost %d to sheets: %w", msg.Entry.ID, err)
	}
	return nil
}

// Backfill exports every stored entry, recovering messages lost while the
// worker was down. Rows already present are skipped by the writer.
func (w *SyncWorker) Backfill(ctx context.Context, store CostLister) error {
	entries, err := store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list costs for backfill: %w", err)
	}
	if len(entries) == 0 {
		slog.InfoContext(ctx, "No costs to backfill")
		return nil
	}

	synced, failed := 0, 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.sheets.AppendCost(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to backfill cost", "id", e.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Backfill completed",
		"total", len(entries),
		"synced", synced,
		"errors", failed)
	return nil
}
