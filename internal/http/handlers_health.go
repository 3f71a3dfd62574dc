package http

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the store and that a rule snapshot is installed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if s.svc.Store != nil {
		if err := s.svc.Store.Ping(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	if s.svc.Taxonomy != nil {
		checks["taxonomy"] = string(s.svc.Taxonomy.Source()) + " (" + strconv.Itoa(len(s.svc.Taxonomy.Rules())) + " rules)"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Message: "validation failed", Fields: map[string]string{field: msg}}
}
