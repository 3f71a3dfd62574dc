package http

import (
	"errors"
	"net/http"
	"strconv"

	"fintrack/internal/categorize"
	"fintrack/internal/log"
)

// handleCategorize answers POST /categorize. An empty body or a missing
// description is categorized like an empty string, which always yields the
// fallback label.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, err)
		return
	}

	description := ""
	if req.Description != nil {
		description = *req.Description
	}

	res := s.svc.Transactions.Match(description)
	resp := categorizeResponse{Category: res.Category}
	if explain, _ := strconv.ParseBool(r.URL.Query().Get("explain")); explain {
		idx := res.RuleIndex
		resp.RuleIndex = &idx
		resp.Keyword = res.Keyword
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Description categorized",
		log.FieldCategory, res.Category, "rule_index", res.RuleIndex)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	labels := s.svc.Taxonomy.Labels()
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: labels, Fallback: categorize.Fallback})
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rulesResponse{
		Rules:  toRuleDTOs(s.svc.Taxonomy.Rules()),
		Source: string(s.svc.Taxonomy.Source()),
	})
}

// handleReplaceRules swaps the whole ordered taxonomy in one step.
func (s *Server) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	var req replaceRulesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = badRequest("request body is required")
		}
		writeError(w, r, err)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := s.svc.Taxonomy.Replace(r.Context(), fromRuleDTOs(req.Rules))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rulesResponse{
		Rules:  toRuleDTOs(t.Rules()),
		Source: string(s.svc.Taxonomy.Source()),
	})
}

func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Taxonomy.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Rules: n, Source: string(s.svc.Taxonomy.Source())})
}
