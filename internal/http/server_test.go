package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fintrack/internal/categorize"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
	"fintrack/internal/storage/memory"
)

type testEnv struct {
	srv      *Server
	store    *memory.Store
	taxonomy *services.TaxonomyService
}

func newTestEnv(t *testing.T, taxOpts services.TaxonomyOptions) *testEnv {
	t.Helper()
	store := memory.New()
	engine := categorize.NewEngine(nil)
	tax := services.NewTaxonomyService(engine, store, nil, taxOpts)
	if _, err := tax.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	srv := NewServer(Options{
		Addr:           ":0",
		AllowedOrigins: []string{"http://localhost:3000"},
		RateLimit:      ratelimit.Config{RPS: 1000, Burst: 1000},
		Logger:         log.New(log.Config{Writer: discard{}}),
	}, Services{
		Transactions: services.NewTransactionService(store, engine, nil, 2),
		Taxonomy:     tax,
		Goals:        services.NewGoalService(store),
		Users:        services.NewUserService(store),
		Store:        store,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, taxonomy: tax}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestCategorize(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCat    string
	}{
		{"food", `{"description":"Pizza Hut dinner"}`, 200, "food"},
		{"travel", `{"description":"Uber ride to airport"}`, 200, "travel"},
		{"entertainment", `{"description":"Netflix subscription"}`, 200, "entertainment"},
		{"no match", `{"description":"random unrelated text"}`, 200, "others"},
		{"empty description", `{"description":""}`, 200, "others"},
		{"missing field", `{}`, 200, "others"},
		{"null description", `{"description":null}`, 200, "others"},
		{"empty body", ``, 200, "others"},
		{"substring", `{"description":"business trip"}`, 200, "travel"},
		{"unknown fields ignored", `{"description":"coffee","amount":3}`, 200, "food"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/categorize", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			got := decode[map[string]any](t, rr)
			if got["category"] != tt.wantCat {
				t.Errorf("category = %v, want %s", got["category"], tt.wantCat)
			}
			if _, ok := got["rule_index"]; ok {
				t.Errorf("rule_index present without explain: %v", got)
			}
		})
	}
}

func TestCategorize_BadRequests(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	for name, body := range map[string]string{
		"malformed":       `{"description":`,
		"number":          `{"description":5}`,
		"array":           `{"description":["pizza"]}`,
		"not an object":   `"pizza"`,
		"trailing garbage": `{"description":"pizza"} x`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/categorize", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
			got := decode[ErrorBody](t, rr)
			if got.Error == "" {
				t.Error("error message missing")
			}
		})
	}

	rr := env.do(t, http.MethodPost, "/categorize", `{"description":5}`)
	if got := decode[ErrorBody](t, rr); got.Details["description"] != "must be a string" {
		t.Errorf("details = %v", got.Details)
	}
}

func TestCategorize_Explain(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodPost, "/categorize?explain=true", `{"description":"Late night PIZZA"}`)
	got := decode[categorizeResponse](t, rr)
	if got.Category != "food" || got.RuleIndex == nil || *got.RuleIndex != 0 || got.Keyword != "pizza" {
		t.Fatalf("explain = %+v", got)
	}

	rr = env.do(t, http.MethodPost, "/categorize?explain=1", `{"description":"zzz"}`)
	got = decode[categorizeResponse](t, rr)
	if got.Category != "others" || got.RuleIndex == nil || *got.RuleIndex != -1 {
		t.Fatalf("explain fallback = %+v", got)
	}
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodGet, "/categories", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decode[categoriesResponse](t, rr)
	want := []string{"food", "travel", "entertainment", "shopping", "healthcare", "education", "bills"}
	if strings.Join(got.Categories, ",") != strings.Join(want, ",") {
		t.Errorf("categories = %v", got.Categories)
	}
	if got.Fallback != "others" {
		t.Errorf("fallback = %q", got.Fallback)
	}
}

func TestRules_ReplaceAndReload(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{Builtin: "basic"})

	rr := env.do(t, http.MethodGet, "/categorization-rules", "")
	got := decode[rulesResponse](t, rr)
	if len(got.Rules) != 3 || got.Source != "store" {
		t.Fatalf("initial rules = %+v", got)
	}

	rr = env.do(t, http.MethodPut, "/categorization-rules",
		`{"rules":[{"label":"Groceries","keywords":["Market","bakery"]},{"label":"food","keywords":["pizza"]}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("replace status = %d (%s)", rr.Code, rr.Body.String())
	}
	got = decode[rulesResponse](t, rr)
	if len(got.Rules) != 2 || got.Rules[0].Keywords[0] != "market" {
		t.Fatalf("replaced rules = %+v", got)
	}

	cat := decode[categorizeResponse](t, env.do(t, http.MethodPost, "/categorize", `{"description":"Farmers MARKET pizza"}`))
	if cat.Category != "Groceries" {
		t.Errorf("category after replace = %q", cat.Category)
	}
	cat = decode[categorizeResponse](t, env.do(t, http.MethodPost, "/categorize", `{"description":"uber"}`))
	if cat.Category != "others" {
		t.Errorf("old rules still active: %q", cat.Category)
	}

	rr = env.do(t, http.MethodPost, "/categorization-rules/reload", "")
	reload := decode[reloadResponse](t, rr)
	if rr.Code != http.StatusOK || reload.Rules != 2 || reload.Source != "store" {
		t.Fatalf("reload = %d %+v", rr.Code, reload)
	}
}

func TestRules_EmptyTaxonomyPersists(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodPut, "/categorization-rules", `{"rules":[]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("replace status = %d (%s)", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/categorization-rules/reload", "")
	reload := decode[reloadResponse](t, rr)
	if rr.Code != http.StatusOK || reload.Rules != 0 || reload.Source != "store" {
		t.Fatalf("reload = %d %+v", rr.Code, reload)
	}

	cat := decode[categorizeResponse](t, env.do(t, http.MethodPost, "/categorize", `{"description":"Pizza Hut dinner"}`))
	if cat.Category != "others" {
		t.Errorf("category after reload = %q, want others", cat.Category)
	}
}

func TestRules_ReplaceRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	tests := map[string]string{
		"missing rules":      `{}`,
		"empty label":        `{"rules":[{"label":"","keywords":["x"]}]}`,
		"no keywords":        `{"rules":[{"label":"food","keywords":[]}]}`,
		"blank keyword":      `{"rules":[{"label":"food","keywords":["   "]}]}`,
		"keywords not array": `{"rules":[{"label":"food","keywords":"pizza"}]}`,
		"empty body":         ``,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, http.MethodPut, "/categorization-rules", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
		})
	}

	rr := env.do(t, http.MethodPut, "/categorization-rules", `{"rules":[{"label":"","keywords":["x"]}]}`)
	if got := decode[ErrorBody](t, rr); got.Details["rules[0].label"] != "is required" {
		t.Errorf("details = %v", got.Details)
	}

	// the previous snapshot is untouched
	cat := decode[categorizeResponse](t, env.do(t, http.MethodPost, "/categorize", `{"description":"pizza"}`))
	if cat.Category != "food" {
		t.Errorf("category = %q", cat.Category)
	}
}

func TestRules_FileManaged(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rules.yaml")
	yaml := "categories:\n  - name: coffee\n    keywords: [espresso, latte]\n"
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, services.TaxonomyOptions{File: file})

	got := decode[rulesResponse](t, env.do(t, http.MethodGet, "/categorization-rules", ""))
	if got.Source != "file" || len(got.Rules) != 1 {
		t.Fatalf("rules = %+v", got)
	}

	rr := env.do(t, http.MethodPut, "/categorization-rules", `{"rules":[{"label":"food","keywords":["pizza"]}]}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}

	yaml = "categories:\n  - name: tea\n    keywords: [chai]\n  - name: coffee\n    keywords: [latte]\n"
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	rr = env.do(t, http.MethodPost, "/categorization-rules/reload", "")
	if reload := decode[reloadResponse](t, rr); rr.Code != http.StatusOK || reload.Rules != 2 {
		t.Fatalf("reload = %d %s", rr.Code, rr.Body.String())
	}
	cat := decode[categorizeResponse](t, env.do(t, http.MethodPost, "/categorize", `{"description":"masala CHAI"}`))
	if cat.Category != "tea" {
		t.Errorf("category = %q", cat.Category)
	}
}

func TestTransactions_CreateGetList(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodPost, "/transactions", `{"date":"2024-03-05","description":"Uber ride to airport","amount":"23,40"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rr.Code, rr.Body.String())
	}
	created := decode[transactionResponse](t, rr)
	if created.Category != "travel" || created.CategorySource != "rule" || created.AmountCents != 2340 || created.Amount != "23.40" {
		t.Fatalf("created = %+v", created)
	}
	if rr.Header().Get("Location") != "/transactions/"+formatID(created.ID) {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}

	rr = env.do(t, http.MethodPost, "/transactions", `{"date":"2024-04-01","description":"Uber eats","amount":-12.5,"category":"food"}`)
	manual := decode[transactionResponse](t, rr)
	if rr.Code != http.StatusCreated || manual.Category != "food" || manual.CategorySource != "user" || manual.AmountCents != -1250 {
		t.Fatalf("manual = %d %+v", rr.Code, manual)
	}

	rr = env.do(t, http.MethodGet, "/transactions/"+formatID(created.ID), "")
	if got := decode[transactionResponse](t, rr); rr.Code != http.StatusOK || got.Description != "Uber ride to airport" || got.Date != "2024-03-05" {
		t.Fatalf("get = %d %+v", rr.Code, got)
	}

	if rr := env.do(t, http.MethodGet, "/transactions/999", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/transactions/abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rr.Code)
	}

	list := decode[transactionListResponse](t, env.do(t, http.MethodGet, "/transactions", ""))
	if len(list.Transactions) != 2 || list.Limit != services.DefaultListLimit {
		t.Fatalf("list = %+v", list)
	}

	march := decode[transactionListResponse](t, env.do(t, http.MethodGet, "/transactions?year=2024&month=3", ""))
	if len(march.Transactions) != 1 || march.Transactions[0].ID != created.ID {
		t.Fatalf("march = %+v", march)
	}

	food := decode[transactionListResponse](t, env.do(t, http.MethodGet, "/transactions?category=food&limit=10000", ""))
	if len(food.Transactions) != 1 || food.Limit != services.MaxListLimit {
		t.Fatalf("food = %+v", food)
	}

	if rr := env.do(t, http.MethodGet, "/transactions?month=13&year=2024", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad month status = %d", rr.Code)
	}
}

func TestTransactions_CreateValidation(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"missing description", `{"date":"2024-01-01","amount":"1"}`, "description"},
		{"blank description", `{"date":"2024-01-01","description":"   ","amount":"1"}`, "description"},
		{"missing amount", `{"date":"2024-01-01","description":"x"}`, "amount"},
		{"zero amount", `{"date":"2024-01-01","description":"x","amount":"0"}`, "amount"},
		{"garbage amount", `{"date":"2024-01-01","description":"x","amount":"abc"}`, "amount"},
		{"boolean amount", `{"date":"2024-01-01","description":"x","amount":true}`, "amount"},
		{"bad date", `{"date":"01/02/2024","description":"x","amount":"1"}`, "date"},
		{"too long", `{"date":"2024-01-01","description":"` + strings.Repeat("a", 201) + `","amount":"1"}`, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/transactions", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
			got := decode[ErrorBody](t, rr)
			if _, ok := got.Details[tt.wantField]; !ok {
				t.Errorf("details = %v, want field %s", got.Details, tt.wantField)
			}
		})
	}
}

func TestTransactions_DefaultDate(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodPost, "/transactions", `{"description":"coffee","amount":"3.20"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	if got := decode[transactionResponse](t, rr); got.Date == "" {
		t.Fatal("date not defaulted")
	}
}

func TestTransactions_Recategorize(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	env.do(t, http.MethodPost, "/transactions", `{"date":"2024-01-01","description":"Uber ride","amount":"10"}`)
	env.do(t, http.MethodPost, "/transactions", `{"date":"2024-01-02","description":"Uber again","amount":"11","category":"mine"}`)
	env.do(t, http.MethodPost, "/transactions", `{"date":"2024-01-03","description":"Pizza","amount":"12"}`)

	rr := env.do(t, http.MethodPut, "/categorization-rules", `{"rules":[{"label":"transport","keywords":["uber"]},{"label":"food","keywords":["pizza"]}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("replace status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/transactions/recategorize", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("recategorize status = %d (%s)", rr.Code, rr.Body.String())
	}
	report := decode[services.RecategorizeReport](t, rr)
	if report.Updated != 1 || report.Scanned != 3 {
		t.Fatalf("report = %+v", report)
	}

	list := decode[transactionListResponse](t, env.do(t, http.MethodGet, "/transactions?category=transport", ""))
	if len(list.Transactions) != 1 || list.Transactions[0].Description != "Uber ride" {
		t.Fatalf("transport = %+v", list)
	}

	if rr := env.do(t, http.MethodPost, "/transactions/recategorize", `{"only_missing":"yes"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", rr.Code)
	}
}

func TestTransactions_RecategorizeOnlyMissing(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodPost, "/transactions", `{"date":"2024-02-01","description":"weird thing","amount":"4.20"}`)
	created := decode[transactionResponse](t, rr)
	if created.Category != "others" {
		t.Fatalf("created category = %q", created.Category)
	}
	env.do(t, http.MethodPost, "/transactions", `{"date":"2024-02-02","description":"weird pizza","amount":"8"}`)

	rr = env.do(t, http.MethodPut, "/categorization-rules", `{"rules":[{"label":"misc","keywords":["weird"]}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("replace status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/transactions/recategorize", `{"only_missing":true}`)
	report := decode[services.RecategorizeReport](t, rr)
	if rr.Code != http.StatusOK || report.Scanned != 2 || report.Updated != 1 || report.Skipped != 1 {
		t.Fatalf("report = %d %+v", rr.Code, report)
	}

	got := decode[transactionResponse](t, env.do(t, http.MethodGet, "/transactions/"+formatID(created.ID), ""))
	if got.Category != "misc" {
		t.Errorf("category = %q, want misc", got.Category)
	}
}

func TestTransactions_ExportStatusOnlyOnSingleRead(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	created := decode[transactionResponse](t, env.do(t, http.MethodPost, "/transactions",
		`{"date":"2024-02-01","description":"Pizza","amount":"9"}`))

	list := decode[struct {
		Transactions []map[string]any `json:"transactions"`
	}](t, env.do(t, http.MethodGet, "/transactions", ""))
	if len(list.Transactions) != 1 {
		t.Fatalf("list = %v", list)
	}
	if _, ok := list.Transactions[0]["export_status"]; ok {
		t.Errorf("list entry carries export_status: %v", list.Transactions[0])
	}

	if err := env.store.MarkExported(context.Background(), created.ID); err != nil {
		t.Fatal(err)
	}
	got := decode[transactionResponse](t, env.do(t, http.MethodGet, "/transactions/"+formatID(created.ID), ""))
	if got.ExportStatus != "exported" {
		t.Errorf("export_status = %q, want exported", got.ExportStatus)
	}
}

func TestSavingsGoals(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodPost, "/savings-goals", `{"goal_name":"Holiday","target_amount":"1500"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rr.Code, rr.Body.String())
	}
	goal := decode[goalResponse](t, rr)
	if goal.Target != "1500.00" || goal.Progress != "0.00" || goal.Remaining != "1500.00" {
		t.Fatalf("goal = %+v", goal)
	}

	rr = env.do(t, http.MethodPatch, "/savings-goals/"+formatID(goal.ID), `{"progress":250.5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d (%s)", rr.Code, rr.Body.String())
	}
	if got := decode[goalResponse](t, rr); got.Progress != "250.50" || got.Remaining != "1249.50" {
		t.Fatalf("patched = %+v", got)
	}

	if rr := env.do(t, http.MethodPatch, "/savings-goals/"+formatID(goal.ID), `{"progress":"-5"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("negative progress status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPatch, "/savings-goals/404", `{"progress":"5"}`); rr.Code != http.StatusNotFound {
		t.Errorf("missing goal status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/savings-goals", `{"goal_name":"","target_amount":"10"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/savings-goals", `{"goal_name":"x","target_amount":"0"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("zero target status = %d", rr.Code)
	}

	if rr := env.do(t, http.MethodGet, "/savings-goals/"+formatID(goal.ID), ""); rr.Code != http.StatusOK {
		t.Errorf("get status = %d", rr.Code)
	}
	list := decode[map[string][]goalResponse](t, env.do(t, http.MethodGet, "/savings-goals", ""))
	if len(list["savings_goals"]) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodPost, "/users", `{"email":"ana@example.com"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPost, "/users", `{"email":"ANA@example.com"}`); rr.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/users", `{"email":"not-an-email"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid email status = %d", rr.Code)
	}
	if got := decode[ErrorBody](t, rr); got.Details["email"] != "must be a valid email address" {
		t.Errorf("details = %v", got.Details)
	}

	list := decode[map[string][]userResponse](t, env.do(t, http.MethodGet, "/users", ""))
	if len(list["users"]) != 2 {
		t.Errorf("users = %+v", list)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}

	env.srv.svc.Store = failingPinger{}
	env.srv.Handler = env.srv.routes(nil)
	rr := env.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "database is locked") {
		t.Fatalf("readyz = %d %s", rr.Code, rr.Body.String())
	}
}

func TestMiddlewareChain(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})

	rr := env.do(t, http.MethodGet, "/categories", "")
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", rr.Header().Get("X-Request-ID"))
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if env.srv.Metrics().TotalRequests != 1 {
		t.Errorf("metrics = %+v", env.srv.Metrics())
	}

	req := httptest.NewRequest(http.MethodOptions, "/categorize", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	pre := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(pre, req)
	if pre.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("CORS allow origin = %q", pre.Header().Get("Access-Control-Allow-Origin"))
	}
	if pre.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("CORS credentials not allowed")
	}

	if rr := env.do(t, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound || decode[ErrorBody](t, rr).Error == "" {
		t.Errorf("not found = %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodDelete, "/categorize", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("method not allowed = %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, services.TaxonomyOptions{})
	env.srv.limiter.Stop()
	env.srv.limiter = ratelimit.New(ratelimit.Config{RPS: 0.1, Burst: 2})
	env.srv.Handler = env.srv.routes(nil)

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodPost, "/categorize", `{"description":"pizza"}`); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/categorize", `{"description":"pizza"}`)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d, Retry-After = %q", rr.Code, rr.Header().Get("Retry-After"))
	}

	// health checks are not limited
	if rr := env.do(t, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rr.Code)
	}
}
