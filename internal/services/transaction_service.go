package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/cache"
	"fintrack/internal/categorize"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500

	recategorizePage = 200
	listCacheSize    = 128
	listCacheTTL     = 30 * time.Second
)

// RecategorizeReport summarises a Recategorize run.
type RecategorizeReport struct {
	Scanned int `json:"scanned"`
	Skipped int `json:"skipped"`
	Updated int `json:"updated"`
}

// TransactionService creates transactions, categorizing them on the way
// in, and keeps stored categories in line with the current rules.
type TransactionService struct {
	store     storage.TransactionStore
	engine    *categorize.Engine
	publisher events.Publisher
	workers   int
	lists     *cache.LRUCache[[]core.Transaction]
}

func NewTransactionService(store storage.TransactionStore, engine *categorize.Engine, publisher events.Publisher, workers int) *TransactionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if workers < 1 {
		workers = 1
	}
	return &TransactionService{
		store:     store,
		engine:    engine,
		publisher: publisher,
		workers:   workers,
		lists:     cache.NewLRUCache[[]core.Transaction](listCacheSize, listCacheTTL),
	}
}

// ListCache exposes the list cache for registration with a cache.Manager.
func (s *TransactionService) ListCache() *cache.LRUCache[[]core.Transaction] {
	return s.lists
}

// Categorize returns the category for description under the current rules.
func (s *TransactionService) Categorize(description string) string {
	return s.engine.Categorize(description)
}

func (s *TransactionService) Match(description string) categorize.Result {
	return s.engine.Match(description)
}

// Create stores t. A blank category is filled in by the rules; a supplied
// one is kept and marked as user-set.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.UserID = core.DefaultUserID
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if t.Category == "" {
		res := s.engine.Match(t.Description)
		t.Category = res.Category
		t.CategorySource = core.SourceRule
		slog.DebugContext(ctx, "Transaction auto-categorized",
			log.FieldComponent, log.ComponentCategorize,
			log.FieldCategory, res.Category,
			"rule_index", res.RuleIndex,
			"keyword", res.Keyword)
	} else {
		t.CategorySource = core.SourceUser
	}

	saved, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.lists.Purge()

	fields := log.NewFields().
		WithOperation(log.OpCreate).
		WithTransaction(saved.ID, saved.Amount.Cents, saved.Category, string(saved.CategorySource))
	slog.InfoContext(ctx, "Transaction created", fields.ToSlice()...)

	s.publish(ctx, events.ForTransaction(events.TransactionCreated, saved.ID, saved.Category))
	return saved, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// List returns transactions newest first. Limit defaults to
// DefaultListLimit and is capped at MaxListLimit.
func (s *TransactionService) List(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	f = NormalizeFilter(f)
	key := fmt.Sprintf("%d|%d|%s|%d|%d", f.Year, f.Month, f.Category, f.Limit, f.Offset)
	if cached, ok := s.lists.Get(key); ok {
		return cached, nil
	}

	out, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if out == nil {
		out = []core.Transaction{}
	}
	s.lists.Set(key, out)
	return out, nil
}

// NormalizeFilter applies the list defaults and bounds used by List.
func NormalizeFilter(f storage.TransactionFilter) storage.TransactionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Year <= 0 {
		f.Month = 0
	}
	f.Category = strings.TrimSpace(f.Category)
	return f
}

// Recategorize re-applies the current rules to every stored transaction
// whose category was not set by the user. With onlyMissing it only revisits
// transactions that have no category yet or that the rules left on the
// fallback. One snapshot is used for the whole run.
func (s *TransactionService) Recategorize(ctx context.Context, onlyMissing bool) (RecategorizeReport, error) {
	snapshot := s.engine.Taxonomy()
	var (
		report  RecategorizeReport
		updated atomic.Int64
		afterID int64
		scanErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for gctx.Err() == nil {
		page, err := s.store.ScanTransactions(gctx, afterID, recategorizePage)
		if err != nil {
			scanErr = fmt.Errorf("scan transactions: %w", err)
			break
		}
		if len(page) == 0 {
			break
		}

		for _, t := range page {
			afterID = t.ID
			report.Scanned++

			if t.CategorySource == core.SourceUser || (onlyMissing && !uncategorized(t)) {
				report.Skipped++
				continue
			}

			category := snapshot.Categorize(t.Description)
			if category == t.Category && t.CategorySource == core.SourceRule {
				continue
			}

			g.Go(func() error {
				if err := s.store.UpdateCategory(gctx, t.ID, category, core.SourceRule); err != nil {
					return fmt.Errorf("update transaction %d: %w", t.ID, err)
				}
				updated.Add(1)
				s.publish(gctx, events.ForTransaction(events.TransactionRecategorized, t.ID, category))
				return nil
			})
		}
	}

	err := errors.Join(scanErr, g.Wait())
	report.Updated = int(updated.Load())
	if report.Updated > 0 {
		s.lists.Purge()
	}
	if err == nil {
		err = ctx.Err()
	}

	attrs := []any{
		log.FieldComponent, log.ComponentCategorize,
		log.FieldOperation, log.OpRecategorize,
		log.FieldRuleCount, snapshot.Len(),
		"scanned", report.Scanned,
		"skipped", report.Skipped,
		"updated", report.Updated,
	}
	if err != nil {
		slog.ErrorContext(ctx, "Recategorization aborted", append(attrs, log.FieldError, err)...)
		return report, err
	}
	slog.InfoContext(ctx, "Recategorization finished", attrs...)
	return report, nil
}

// publish never fails the caller; the export sweep catches anything missed.
func (s *TransactionService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			log.FieldEventType, e.Type,
			log.FieldTransactionID, e.TransactionID,
			log.FieldError, err)
	}
}

// uncategorized reports whether t has no category or only the fallback the
// rules assigned when nothing matched.
func uncategorized(t core.Transaction) bool {
	return t.Category == "" || (t.CategorySource == core.SourceRule && t.Category == categorize.Fallback)
}
