package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gumball/internal/amqp"
	"gumball/internal/core"
	"gumball/internal/sheets"
	"gumball/internal/storage"
)

// LedgerStore is the slice of the ledger repository the worker needs.
type LedgerStore interface {
	GetEvent(ctx context.Context, id int64) (core.Event, error)
	GetPendingSyncEvents(ctx context.Context, limit int) ([]storage.PendingSyncEvent, error)
	ClaimSync(ctx context.Context, id int64) (bool, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker exports recorded ledger events from SQLite to the ledger sheet.
type SyncWorker struct {
	storage   LedgerStore
	sheets    sheets.EventWriter
	batchSize int
}

func NewSyncWorker(storage LedgerStore, sheets sheets.EventWriter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   storage,
		sheets:    sheets,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single event sync message from AMQP.
// Events that are already exported, being exported by the sweeper, or out of
// retries are acknowledged without an append.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.EventSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"kind", msg.Kind)

	exported, err := w.syncEvent(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("sync event to sheets: %w", err)
	}
	if !exported {
		slog.DebugContext(ctx, "Event not claimable, skipping", "id", msg.ID)
	}
	return nil
}

// ProcessPendingEvents exports events that have not been synced yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingEvents(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncEvents(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending events: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending events", "count", len(pending))

	synced, skipped, failed := 0, 0, 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		exported, err := w.syncEvent(ctx, p.ID)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "Failed to sync event", "id", p.ID, "attempts", p.Attempts, "error", err)
			failed++
		case !exported:
			skipped++
		default:
			synced++
		}
	}

	slog.InfoContext(ctx, "Pending sync completed",
		"total", len(pending),
		"synced", synced,
		"skipped", skipped,
		"errors", failed)

	return nil
}

// Run sweeps pending events immediately and then on every tick until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SyncWorker) sweep(ctx context.Context) {
	if err := w.ProcessPendingEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "Pending sync sweep failed", "error", err)
	}
}

// syncEvent claims the event and appends it to the sheet. It reports false
// without error when another export holds the event or it needs none.
func (w *SyncWorker) syncEvent(ctx context.Context, id int64) (bool, error) {
	claimed, err := w.storage.ClaimSync(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		return false, nil
	}

	event, err := w.storage.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			// Nothing to mark; the row does not exist.
			return false, err
		}
		w.markError(ctx, id)
		return false, fmt.Errorf("get event from storage: %w", err)
	}

	ref, err := w.sheets.AppendEvent(ctx, event)
	if err != nil {
		w.markError(ctx, id)
		return false, fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		// The append worked; once the claim times out a sweep may export the row twice.
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced event",
		"id", id,
		"sheets_ref", ref,
		"kind", event.Kind,
		"amount_cents", int64(event.Amount))

	return true, nil
}

func (w *SyncWorker) markError(ctx context.Context, id int64) {
	if err := w.storage.MarkSyncError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", err)
	}
}
