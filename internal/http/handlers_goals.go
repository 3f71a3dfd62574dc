package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/core"
)

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = badRequest("request body is required")
		}
		writeError(w, r, err)
		return
	}
	req.Name = sanitizeInput(req.Name)
	if err := s.validator.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	target, err := core.ParseDecimalToCents(string(req.Target))
	if err != nil {
		writeError(w, r, fieldError("target_amount", "must be a positive decimal amount"))
		return
	}
	var progress int64
	if req.Progress != "" {
		if progress, err = core.ParseNonNegativeDecimalToCents(string(req.Progress)); err != nil {
			writeError(w, r, fieldError("progress", "must be a non-negative decimal amount"))
			return
		}
	}

	g, err := s.svc.Goals.Create(r.Context(), core.SavingsGoal{
		Name:     req.Name,
		Target:   core.Money{Cents: target},
		Progress: core.Money{Cents: progress},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/savings-goals/"+formatID(g.ID)).
		Body(toGoalResponse(g)).
		Write(w)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.svc.Goals.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]goalResponse, len(goals))
	for i, g := range goals {
		out[i] = toGoalResponse(g)
	}
	writeJSON(w, http.StatusOK, map[string]any{"savings_goals": out})
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.svc.Goals.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(g))
}

func (s *Server) handleUpdateGoalProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateProgressRequest
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

	progress, err := core.ParseNonNegativeDecimalToCents(string(req.Progress))
	if err != nil {
		writeError(w, r, fieldError("progress", "must be a non-negative decimal amount"))
		return
	}

	g, err := s.svc.Goals.UpdateProgress(r.Context(), id, core.Money{Cents: progress})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(g))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = badRequest("request body is required")
		}
		writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := s.svc.Users.Create(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}
