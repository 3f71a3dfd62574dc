// Package storage persists transactions, savings goals, users and the
// categorization rules.
package storage

import (
	"context"

	"fintrack/internal/categorize"
	"fintrack/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values mean "any".
// Month is only honoured together with Year.
type TransactionFilter struct {
	Year     int
	Month    int
	Category string
	Limit    int
	Offset   int
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	// ListTransactions returns matches newest first.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	// ScanTransactions pages through every transaction by ascending id.
	ScanTransactions(ctx context.Context, afterID int64, limit int) ([]core.Transaction, error)
	// UpdateCategory sets the category and resets the export status to pending.
	UpdateCategory(ctx context.Context, id int64, category string, source core.CategorySource) error
}

// ExportQueue tracks which transactions still have to reach the external ledger.
type ExportQueue interface {
	ListPendingExport(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportFailed(ctx context.Context, id int64) error
}

type GoalStore interface {
	CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
	GetGoal(ctx context.Context, id int64) (core.SavingsGoal, error)
	ListGoals(ctx context.Context) ([]core.SavingsGoal, error)
	UpdateGoalProgress(ctx context.Context, id int64, progress core.Money) (core.SavingsGoal, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
}

// RuleStore keeps the ordered rule list. ReplaceRules is all-or-nothing.
type RuleStore interface {
	// LoadRules reports saved=false until ReplaceRules has succeeded once.
	// A saved empty list is returned as saved=true with no rules.
	LoadRules(ctx context.Context) (rules []categorize.Rule, saved bool, err error)
	ReplaceRules(ctx context.Context, rules []categorize.Rule) error
}

// Store is the full persistence surface used by the services.
type Store interface {
	TransactionStore
	ExportQueue
	GoalStore
	UserStore
	RuleStore
	Ping(ctx context.Context) error
	Close() error
}
