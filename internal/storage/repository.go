package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/categorize"
	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const transactionColumns = `id, user_id, date, description, amount_cents, category, category_source, export_status, created_at`

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.UserID == 0 {
		t.UserID = core.DefaultUserID
	}
	t.CreatedAt = time.Now().UTC()
	t.ExportStatus = core.ExportPending

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, date, description, amount_cents, category, category_source, export_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Date.String(), t.Description, t.Amount.Cents, t.Category, string(t.CategorySource),
		string(t.ExportStatus), t.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", mapError(err))
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"amount_cents", t.Amount.Cents,
		"category", t.Category)

	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if from, to, ok := dateRange(f.Year, f.Month); ok {
		where = append(where, "date >= ? AND date < ?")
		args = append(args, from, to)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	return r.queryTransactions(ctx, query, args...)
}

func (r *SQLiteRepository) ScanTransactions(ctx context.Context, afterID int64, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, id int64, category string, source core.CategorySource) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET category = ?, category_source = ?, export_status = ? WHERE id = ?`,
		category, string(source), string(core.ExportPending), id)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return expectOneRow(res, "transaction", id)
}

func (r *SQLiteRepository) ListPendingExport(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE export_status IN (?, ?) ORDER BY id LIMIT ?`,
		string(core.ExportPending), string(core.ExportFailed), limit)
}

// MarkExported marks a transaction as successfully exported
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	return r.setExportStatus(ctx, id, core.ExportDone)
}

// MarkExportFailed marks a transaction for retry on the next sweep
func (r *SQLiteRepository) MarkExportFailed(ctx context.Context, id int64) error {
	if err := r.setExportStatus(ctx, id, core.ExportFailed); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Transaction marked with export error", "id", id)
	return nil
}

func (r *SQLiteRepository) setExportStatus(ctx context.Context, id int64, status core.ExportStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET export_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set export status: %w", err)
	}
	return expectOneRow(res, "transaction", id)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                              core.Transaction
		date, source, status, created string
	)
	err := s.Scan(&t.ID, &t.UserID, &date, &t.Description, &t.Amount.Cents, &t.Category, &source, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction %d: %w", t.ID, err)
	}
	t.CategorySource = core.CategorySource(source)
	t.ExportStatus = core.ExportStatus(status)
	t.CreatedAt = parseTime(created)
	return t, nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if g.UserID == 0 {
		g.UserID = core.DefaultUserID
	}
	g.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_goals (user_id, goal_name, target_cents, progress_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.UserID, g.Name, g.Target.Cents, g.Progress.Cents, g.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", mapError(err))
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id int64) (core.SavingsGoal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, goal_name, target_cents, progress_cents, created_at FROM savings_goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal %d: %w", id, err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, goal_name, target_cents, progress_cents, created_at FROM savings_goals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateGoalProgress(ctx context.Context, id int64, progress core.Money) (core.SavingsGoal, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE savings_goals SET progress_cents = ? WHERE id = ?`, progress.Cents, id)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal progress: %w", err)
	}
	if err := expectOneRow(res, "goal", id); err != nil {
		return core.SavingsGoal{}, err
	}
	return r.GetGoal(ctx, id)
}

func scanGoal(s scanner) (core.SavingsGoal, error) {
	var (
		g       core.SavingsGoal
		created string
	)
	err := s.Scan(&g.ID, &g.UserID, &g.Name, &g.Target.Cents, &g.Progress.Cents, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, core.ErrNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("scan goal: %w", err)
	}
	g.CreatedAt = parseTime(created)
	return g, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (email, created_at) VALUES (?, ?)`,
		u.Email, u.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", mapError(err))
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		var (
			u       core.User
			created string
		)
		if err := rows.Scan(&u.ID, &u.Email, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = parseTime(created)
		out = append(out, u)
	}
	return out, rows.Err()
}

// LoadRules returns the stored rules in priority order and whether a rule
// list was ever saved.
func (r *SQLiteRepository) LoadRules(ctx context.Context) ([]categorize.Rule, bool, error) {
	var sets int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_rule_sets`).Scan(&sets); err != nil {
		return nil, false, fmt.Errorf("load rule set marker: %w", err)
	}
	if sets == 0 {
		return nil, false, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT r.position, r.label, k.keyword
		 FROM category_rules r
		 JOIN category_keywords k ON k.rule_position = r.position
		 ORDER BY r.position, k.position`)
	if err != nil {
		return nil, false, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	var (
		rules   []categorize.Rule
		lastPos = -1
	)
	for rows.Next() {
		var (
			pos            int
			label, keyword string
		)
		if err := rows.Scan(&pos, &label, &keyword); err != nil {
			return nil, false, fmt.Errorf("scan rule: %w", err)
		}
		if pos != lastPos {
			rules = append(rules, categorize.Rule{Label: label})
			lastPos = pos
		}
		last := &rules[len(rules)-1]
		last.Keywords = append(last.Keywords, keyword)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, true, nil
}

// ReplaceRules swaps the stored rule list inside a single transaction.
func (r *SQLiteRepository) ReplaceRules(ctx context.Context, rules []categorize.Rule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_keywords`); err != nil {
		return fmt.Errorf("clear keywords: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM category_rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	for i, rule := range rules {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO category_rules (position, label, updated_at) VALUES (?, ?, ?)`, i, rule.Label, now); err != nil {
			return fmt.Errorf("insert rule %q: %w", rule.Label, err)
		}
		for j, kw := range rule.Keywords {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO category_keywords (rule_position, position, keyword) VALUES (?, ?, ?)`, i, j, kw); err != nil {
				return fmt.Errorf("insert keyword %q: %w", kw, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO category_rule_sets (id, replaced_at) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET replaced_at = excluded.replaced_at`, now); err != nil {
		return fmt.Errorf("mark rule set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rules: %w", err)
	}
	slog.InfoContext(ctx, "Category rules replaced", "rule_count", len(rules))
	return nil
}

// dateRange turns a year (and optional month) into a half-open
// [from, to) range over YYYY-MM-DD strings.
func dateRange(year, month int) (string, string, bool) {
	if year <= 0 {
		return "", "", false
	}
	if month >= 1 && month <= 12 {
		from := core.NewDate(year, month, 1)
		return from.String(), core.Date{Time: from.AddDate(0, 1, 0)}.String(), true
	}
	from := core.NewDate(year, 1, 1)
	return from.String(), core.NewDate(year+1, 1, 1).String(), true
}

func expectOneRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

func mapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", core.ErrConflict, err)
	}
	return err
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
