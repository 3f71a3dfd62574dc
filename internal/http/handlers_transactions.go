package http

import (
	"errors"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = badRequest("request body is required")
		}
		writeError(w, r, err)
		return
	}
	req.Description = sanitizeInput(req.Description)
	req.Category = sanitizeInput(req.Category)
	if err := s.validator.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	date := core.Date{Time: time.Now().UTC().Truncate(24 * time.Hour)}
	if req.Date != "" {
		d, err := core.ParseDate(req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		date = d
	}

	cents, err := core.ParseSignedDecimalToCents(string(req.Amount))
	if err != nil {
		writeError(w, r, fieldError("amount", "must be a non-zero decimal amount"))
		return
	}

	saved, err := s.svc.Transactions.Create(r.Context(), core.Transaction{
		Date:        date,
		Description: req.Description,
		Amount:      core.Money{Cents: cents},
		Category:    req.Category,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/transactions/"+formatID(saved.ID)).
		Body(toTransactionResponse(saved)).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	params, err := ParseListParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	params = services.NormalizeFilter(params)

	txs, err := s.svc.Transactions.List(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := transactionListResponse{
		Transactions: make([]transactionResponse, len(txs)),
		Limit:        params.Limit,
		Offset:       params.Offset,
	}
	for i, t := range txs {
		resp.Transactions[i] = toTransactionResponse(t)
		// lists are cached; the worker moves export status underneath them
		resp.Transactions[i].ExportStatus = ""
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.svc.Transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

// handleRecategorize reapplies the current rules to stored transactions.
// The body is optional.
func (s *Server) handleRecategorize(w http.ResponseWriter, r *http.Request) {
	var req recategorizeRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, err)
		return
	}

	report, err := s.svc.Transactions.Recategorize(r.Context(), req.OnlyMissing)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
