// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, amounts given as strings or numbers, list query parameters and
// path IDs.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/storage"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// errEmptyBody is returned by decodeJSON when the body has no content.
var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a single JSON value from the body into dst. Type
// mismatches and syntax errors become a *ValidationError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return badRequest("failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}

	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		var syntaxErr *json.SyntaxError
		switch {
		case errors.As(err, &typeErr):
			field := typeErr.Field
			if field == "" {
				return badRequest("request body must be a JSON object")
			}
			msg := "must be a " + jsonKind(typeErr.Type.Kind().String())
			if typeErr.Type == amountType {
				msg = "must be a decimal amount"
			}
			return &ValidationError{Message: "validation failed", Fields: map[string]string{field: msg}}
		case errors.As(err, &syntaxErr):
			return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
		default:
			return badRequest("malformed JSON: %v", err)
		}
	}
	return nil
}

func jsonKind(kind string) string {
	switch {
	case kind == "string":
		return "string"
	case kind == "bool":
		return "boolean"
	case strings.HasPrefix(kind, "int"), strings.HasPrefix(kind, "float"):
		return "number"
	case kind == "slice":
		return "list"
	default:
		return "value of the right type"
	}
}

// Amount is a money value accepted either as a JSON string ("12,34") or a
// JSON number (12.34). The decimal text is kept for the domain parsers.
type Amount string

var amountType = reflect.TypeOf(Amount(""))

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	// Reported with the field path filled in by encoding/json.
	invalid := &json.UnmarshalTypeError{Value: string(data), Type: amountType}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return invalid
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil || strings.ContainsAny(n.String(), "eE") {
		return invalid
	}
	*a = Amount(n.String())
	return nil
}

// ListParams holds parsed transaction list query parameters.
type ListParams = storage.TransactionFilter

// ParseListParams extracts year, month, category, limit and offset.
// Unparseable numbers are reported instead of silently ignored.
func ParseListParams(query url.Values) (ListParams, error) {
	var params ListParams
	fields := map[string]string{}

	intParam := func(key string, min, max int) int {
		v := strings.TrimSpace(query.Get(key))
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < min || n > max {
			fields[key] = fmt.Sprintf("must be a number between %d and %d", min, max)
			return 0
		}
		return n
	}

	params.Year = intParam("year", 1900, 9999)
	params.Month = intParam("month", 1, 12)
	params.Limit = intParam("limit", 1, 1<<20)
	params.Offset = intParam("offset", 0, 1<<30)
	params.Category = strings.TrimSpace(query.Get("category"))

	if params.Month != 0 && params.Year == 0 {
		fields["year"] = "is required when month is set"
	}
	if len(fields) > 0 {
		return ListParams{}, &ValidationError{Message: "invalid query parameters", Fields: fields}
	}
	return params, nil
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}
