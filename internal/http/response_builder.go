// Package http provides HTTP server and handler implementations.
//
// This file implements a small builder for JSON responses and the single
// place where service errors are mapped to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/categorize"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(b.body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

// validationErrors are the domain errors caused by bad client input.
var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidDay,
	core.ErrInvalidMonth,
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrDescriptionTooLong,
	core.ErrEmptyGoalName,
	core.ErrInvalidProgress,
	core.ErrInvalidEmail,
	categorize.ErrInvalidRule,
}

// statusFor maps an error to its HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "already exists"
	case errors.Is(err, services.ErrManagedByFile):
		return http.StatusConflict, err.Error()
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeError writes err as a JSON error. Unknown errors are logged and
// reported as 500 without leaking their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	body := ErrorBody{Error: message}

	var verr *ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Fields
	}

	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).
			LogError(r.Context(), "Request failed", err, r.Method+" "+r.URL.Path, log.ErrorTypeInternal)
	}

	NewJSONResponse().Status(status).Body(body).Write(w)
}
