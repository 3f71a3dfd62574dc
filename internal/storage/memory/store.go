// Package memory is an in-process storage.Store used by the memory data
// backend and by tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/categorize"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const defaultUserEmail = "default@fintrack.local"

type Store struct {
	mu           sync.RWMutex
	transactions []core.Transaction
	goals        []core.SavingsGoal
	users        []core.User
	rules        []categorize.Rule
	rulesSaved   bool
	nextTxID     int64
	nextGoalID   int64
	nextUserID   int64
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store holding only the default user.
func New() *Store {
	return &Store{
		users: []core.User{{
			ID:        core.DefaultUserID,
			Email:     defaultUserEmail,
			CreatedAt: time.Now().UTC(),
		}},
		nextTxID:   1,
		nextGoalID: 1,
		nextUserID: core.DefaultUserID + 1,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.UserID == 0 {
		t.UserID = core.DefaultUserID
	}
	t.ID = s.nextTxID
	s.nextTxID++
	t.CreatedAt = time.Now().UTC()
	t.ExportStatus = core.ExportPending
	s.transactions = append(s.transactions, t)
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.txIndex(id); i >= 0 {
		return s.transactions[i], nil
	}
	return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
}

func (s *Store) ListTransactions(_ context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if f.Year > 0 && t.Date.Year() != f.Year {
			continue
		}
		if f.Year > 0 && f.Month >= 1 && f.Month <= 12 && t.Date.Month() != f.Month {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})

	if f.Limit > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:min(len(out), f.Offset+f.Limit)]
	}
	return out, nil
}

func (s *Store) ScanTransactions(_ context.Context, afterID int64, limit int) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Transaction
	// transactions are appended with increasing ids
	for _, t := range s.transactions {
		if t.ID <= afterID {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpdateCategory(_ context.Context, id int64, category string, source core.CategorySource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.txIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	s.transactions[i].Category = category
	s.transactions[i].CategorySource = source
	s.transactions[i].ExportStatus = core.ExportPending
	return nil
}

func (s *Store) ListPendingExport(_ context.Context, limit int) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.ExportStatus == core.ExportDone {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, id int64) error {
	return s.setExportStatus(id, core.ExportDone)
}

func (s *Store) MarkExportFailed(_ context.Context, id int64) error {
	return s.setExportStatus(id, core.ExportFailed)
}

func (s *Store) setExportStatus(id int64, status core.ExportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.txIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	s.transactions[i].ExportStatus = status
	return nil
}

// txIndex relies on ids being assigned in ascending order. Callers hold mu.
func (s *Store) txIndex(id int64) int {
	i, ok := sort.Find(len(s.transactions), func(i int) int {
		switch {
		case id < s.transactions[i].ID:
			return -1
		case id > s.transactions[i].ID:
			return 1
		}
		return 0
	})
	if !ok {
		return -1
	}
	return i
}

func (s *Store) CreateGoal(_ context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.UserID == 0 {
		g.UserID = core.DefaultUserID
	}
	g.ID = s.nextGoalID
	s.nextGoalID++
	g.CreatedAt = time.Now().UTC()
	s.goals = append(s.goals, g)
	return g, nil
}

func (s *Store) GetGoal(_ context.Context, id int64) (core.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.goals {
		if g.ID == id {
			return g, nil
		}
	}
	return core.SavingsGoal{}, fmt.Errorf("goal %d: %w", id, core.ErrNotFound)
}

func (s *Store) ListGoals(context.Context) ([]core.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.goals), nil
}

func (s *Store) UpdateGoalProgress(_ context.Context, id int64, progress core.Money) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals[i].Progress = progress
			return s.goals[i], nil
		}
	}
	return core.SavingsGoal{}, fmt.Errorf("goal %d: %w", id, core.ErrNotFound)
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, fmt.Errorf("user %q: %w", u.Email, core.ErrConflict)
		}
	}
	u.ID = s.nextUserID
	s.nextUserID++
	u.CreatedAt = time.Now().UTC()
	s.users = append(s.users, u)
	return u, nil
}

func (s *Store) ListUsers(context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users), nil
}

func (s *Store) LoadRules(context.Context) ([]categorize.Rule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRules(s.rules), s.rulesSaved, nil
}

func (s *Store) ReplaceRules(_ context.Context, rules []categorize.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = cloneRules(rules)
	s.rulesSaved = true
	return nil
}

func cloneRules(rules []categorize.Rule) []categorize.Rule {
	if len(rules) == 0 {
		return nil
	}
	out := make([]categorize.Rule, len(rules))
	for i, r := range rules {
		out[i] = categorize.Rule{Label: r.Label, Keywords: slices.Clone(r.Keywords)}
	}
	return out
}
