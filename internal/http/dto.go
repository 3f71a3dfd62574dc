package http

import (
	"time"

	"fintrack/internal/categorize"
	"fintrack/internal/core"
)

type categorizeRequest struct {
	Description *string `json:"description"`
}

type categorizeResponse struct {
	Category string `json:"category"`
	// Set only when ?explain=true.
	RuleIndex *int   `json:"rule_index,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
	Fallback   string   `json:"fallback"`
}

type ruleDTO struct {
	Label    string   `json:"label" validate:"required,max=64"`
	Keywords []string `json:"keywords" validate:"required,min=1,dive,required,max=64"`
}

type rulesResponse struct {
	Rules  []ruleDTO `json:"rules"`
	Source string    `json:"source"`
}

type replaceRulesRequest struct {
	Rules []ruleDTO `json:"rules" validate:"required,max=500,dive"`
}

type reloadResponse struct {
	Rules  int    `json:"rules"`
	Source string `json:"source"`
}

func toRuleDTOs(rules []categorize.Rule) []ruleDTO {
	out := make([]ruleDTO, len(rules))
	for i, r := range rules {
		out[i] = ruleDTO{Label: r.Label, Keywords: r.Keywords}
	}
	return out
}

func fromRuleDTOs(in []ruleDTO) []categorize.Rule {
	out := make([]categorize.Rule, len(in))
	for i, r := range in {
		out[i] = categorize.Rule{Label: r.Label, Keywords: r.Keywords}
	}
	return out
}

type createTransactionRequest struct {
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"required,max=200"`
	Amount      Amount `json:"amount" validate:"required"`
	Category    string `json:"category" validate:"omitempty,max=64"`
}

type transactionResponse struct {
	ID             int64     `json:"id"`
	Date           string    `json:"date"`
	Description    string    `json:"description"`
	Amount         string    `json:"amount"`
	AmountCents    int64     `json:"amount_cents"`
	Category       string    `json:"category"`
	CategorySource string    `json:"category_source,omitempty"`
	ExportStatus   string    `json:"export_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:             t.ID,
		Date:           t.Date.String(),
		Description:    t.Description,
		Amount:         t.Amount.String(),
		AmountCents:    t.Amount.Cents,
		Category:       t.Category,
		CategorySource: string(t.CategorySource),
		ExportStatus:   string(t.ExportStatus),
		CreatedAt:      t.CreatedAt,
	}
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type recategorizeRequest struct {
	OnlyMissing bool `json:"only_missing"`
}

type createGoalRequest struct {
	Name     string `json:"goal_name" validate:"required,max=100"`
	Target   Amount `json:"target_amount" validate:"required"`
	Progress Amount `json:"progress"`
}

type updateProgressRequest struct {
	Progress Amount `json:"progress" validate:"required"`
}

type goalResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"goal_name"`
	Target    string    `json:"target_amount"`
	Progress  string    `json:"progress"`
	Remaining string    `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}

func toGoalResponse(g core.SavingsGoal) goalResponse {
	return goalResponse{
		ID:        g.ID,
		Name:      g.Name,
		Target:    g.Target.String(),
		Progress:  g.Progress.String(),
		Remaining: g.Remaining().String(),
		CreatedAt: g.CreatedAt,
	}
}

type createUserRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u core.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}
