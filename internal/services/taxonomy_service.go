package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/categorize"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/taxonomy"
)

// Source names where the active rules came from.
type Source string

const (
	SourceFile    Source = "file"
	SourceStore   Source = "store"
	SourceBuiltin Source = "builtin"
)

// ErrManagedByFile is returned by Replace while a taxonomy file is the
// authoritative source.
var ErrManagedByFile = errors.New("categorization rules are managed by a taxonomy file")

type TaxonomyOptions struct {
	// File, when set, is the only source of rules.
	File string
	// Builtin names the table used when neither file nor store has rules.
	Builtin string
}

// TaxonomyService owns the lifecycle of the engine's rule snapshot.
type TaxonomyService struct {
	engine    *categorize.Engine
	store     storage.RuleStore
	publisher events.Publisher
	opts      TaxonomyOptions

	group  singleflight.Group
	// update serializes resolve-and-install with Replace.
	update sync.Mutex
	mu     sync.RWMutex
	source Source
}

// NewTaxonomyService does not load anything; call Reload once at startup.
// store may be nil, in which case rules only live in memory.
func NewTaxonomyService(engine *categorize.Engine, store storage.RuleStore, publisher events.Publisher, opts TaxonomyOptions) *TaxonomyService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &TaxonomyService{
		engine:    engine,
		store:     store,
		publisher: publisher,
		opts:      opts,
		source:    SourceBuiltin,
	}
}

func (s *TaxonomyService) Engine() *categorize.Engine { return s.engine }

func (s *TaxonomyService) Source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *TaxonomyService) Rules() []categorize.Rule {
	return s.engine.Taxonomy().Rules()
}

func (s *TaxonomyService) Labels() []string {
	return s.engine.Taxonomy().Labels()
}

// Reload rebuilds the snapshot from the active source and returns the new
// rule count. Concurrent calls share one load. On error the current
// snapshot stays in place.
func (s *TaxonomyService) Reload(ctx context.Context) (int, error) {
	v, err, shared := s.group.Do("reload", func() (any, error) {
		return s.load(ctx)
	})
	if err != nil {
		return 0, err
	}
	if shared {
		slog.DebugContext(ctx, "Taxonomy reload coalesced", log.FieldComponent, log.ComponentTaxonomy)
	}
	return v.(int), nil
}

// ReloadFunc adapts Reload to the file watcher callback.
func (s *TaxonomyService) ReloadFunc() taxonomy.ReloadFunc {
	return func(ctx context.Context) error {
		_, err := s.Reload(ctx)
		return err
	}
}

func (s *TaxonomyService) load(ctx context.Context) (int, error) {
	s.update.Lock()
	defer s.update.Unlock()

	t, source, err := s.resolve(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Taxonomy reload failed, keeping current rules",
			log.FieldComponent, log.ComponentTaxonomy,
			log.FieldOperation, log.OpReload,
			log.FieldError, err)
		return 0, err
	}

	s.install(t, source)
	slog.InfoContext(ctx, "Taxonomy loaded",
		log.FieldComponent, log.ComponentTaxonomy,
		log.FieldOperation, log.OpReload,
		log.FieldTaxonomySource, source,
		log.FieldRuleCount, t.Len())
	return t.Len(), nil
}

func (s *TaxonomyService) resolve(ctx context.Context) (*categorize.Taxonomy, Source, error) {
	if s.opts.File != "" {
		t, err := taxonomy.LoadFile(s.opts.File)
		if err != nil {
			return nil, "", err
		}
		return t, SourceFile, nil
	}

	if s.store != nil {
		stored, saved, err := s.store.LoadRules(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("load stored rules: %w", err)
		}
		if saved {
			t, err := categorize.NewTaxonomy(stored)
			if err != nil {
				return nil, "", fmt.Errorf("stored rules: %w", err)
			}
			return t, SourceStore, nil
		}
	}

	t, err := categorize.Builtin(s.opts.Builtin)
	if err != nil {
		return nil, "", err
	}
	if s.store == nil {
		return t, SourceBuiltin, nil
	}
	// seed so later edits start from the built-in table
	if err := s.store.ReplaceRules(ctx, t.Rules()); err != nil {
		slog.WarnContext(ctx, "Could not seed built-in rules",
			log.FieldComponent, log.ComponentTaxonomy,
			log.FieldError, err)
		return t, SourceBuiltin, nil
	}
	return t, SourceStore, nil
}

// Replace validates rules, persists them and publishes them as the new
// snapshot. Nothing changes when validation or persistence fails.
func (s *TaxonomyService) Replace(ctx context.Context, rules []categorize.Rule) (*categorize.Taxonomy, error) {
	if s.opts.File != "" {
		return nil, ErrManagedByFile
	}

	t, err := categorize.NewTaxonomy(rules)
	if err != nil {
		return nil, err
	}

	s.update.Lock()
	defer s.update.Unlock()

	if s.store != nil {
		if err := s.store.ReplaceRules(ctx, t.Rules()); err != nil {
			return nil, fmt.Errorf("persist rules: %w", err)
		}
	}
	s.install(t, SourceStore)

	slog.InfoContext(ctx, "Taxonomy replaced",
		log.FieldComponent, log.ComponentTaxonomy,
		log.FieldOperation, log.OpReplace,
		log.FieldRuleCount, t.Len())

	if err := s.publisher.Publish(ctx, events.New(events.TaxonomyUpdated)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish taxonomy event", log.FieldError, err)
	}
	return t, nil
}

func (s *TaxonomyService) install(t *categorize.Taxonomy, source Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Swap(t)
	s.source = source
}
