// Package worker mirrors stored transactions into the external ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// Store is the slice of storage the worker needs.
type Store interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	storage.ExportQueue
}

type Config struct {
	// BatchSize caps a pending sweep. The startup check uses five times this.
	BatchSize int
	// Interval between pending sweeps in Run.
	Interval time.Duration
}

// ExportWorker exports transactions on events and, as a backstop for lost
// messages, sweeps whatever is still pending.
type ExportWorker struct {
	store    Store
	exporter sheets.TransactionExporter
	cfg      Config
	logger   *slog.Logger
}

func NewExportWorker(store Store, exporter sheets.TransactionExporter, cfg Config) *ExportWorker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		cfg:      cfg,
		logger:   slog.With(log.FieldComponent, log.ComponentWorker),
	}
}

// Handle processes one event. Returning an error asks the transport to
// redeliver.
func (w *ExportWorker) Handle(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.TransactionCreated, events.TransactionRecategorized:
	default:
		w.logger.DebugContext(ctx, "Ignoring event", log.FieldEventType, e.Type, log.FieldEventID, e.ID)
		return nil
	}

	t, err := w.store.GetTransaction(ctx, e.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Transaction for event not found, skipping",
			log.FieldEventID, e.ID,
			log.FieldTransactionID, e.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if t.ExportStatus == core.ExportDone {
		w.logger.DebugContext(ctx, "Transaction already exported", log.FieldTransactionID, t.ID)
		return nil
	}

	return w.export(ctx, t)
}

func (w *ExportWorker) export(ctx context.Context, t core.Transaction) error {
	ref, err := w.exporter.Export(ctx, t)
	if err != nil {
		if markErr := w.store.MarkExportFailed(ctx, t.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark export error", log.FieldTransactionID, t.ID, log.FieldError, markErr)
		}
		return fmt.Errorf("export transaction %d: %w", t.ID, err)
	}

	if err := w.store.MarkExported(ctx, t.ID); err != nil {
		return fmt.Errorf("mark transaction %d exported: %w", t.ID, err)
	}

	w.logger.InfoContext(ctx, "Transaction exported",
		log.FieldOperation, log.OpExport,
		log.FieldTransactionID, t.ID,
		log.FieldCategory, t.Category,
		"row_ref", ref)
	return nil
}

// ProcessPending exports up to limit pending or failed transactions and
// returns how many succeeded. Individual failures are logged, not returned.
func (w *ExportWorker) ProcessPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.ListPendingExport(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	exported := 0
	for _, t := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if err := w.export(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export transaction", log.FieldTransactionID, t.ID, log.FieldError, err)
			continue
		}
		exported++
	}
	return exported, nil
}

// StartupCheck runs one larger sweep to recover from worker downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	n, err := w.ProcessPending(ctx, w.cfg.BatchSize*5)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup export check finished", log.FieldOperation, log.OpStartup, "exported", n)
	return nil
}

// Run sweeps pending exports every Interval until ctx is done.
func (w *ExportWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx, w.cfg.BatchSize); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Pending export sweep failed", log.FieldError, err)
			}
		}
	}
}
