// Package categorize maps free-text transaction descriptions to a single
// category label using an ordered list of keyword rules.
//
// Matching is case-insensitive substring containment: a rule matches when the
// lower-cased description contains any of its keywords anywhere, so the keyword
// "bus" matches "business". Rules are tried in order and the first match wins.
// When no rule matches, the label Fallback is returned.
package categorize

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fallback is the label returned when no rule matches a description.
const Fallback = "others"

// ErrInvalidRule is matched by every *ConfigError returned while building rules.
var ErrInvalidRule = errors.New("invalid category rule")

// ConfigError reports a rule that cannot be part of a taxonomy.
type ConfigError struct {
	// Index is the position of the rule in the input list, or -1 for a single rule.
	Index  int
	Label  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("category rule %q: %s", e.Label, e.Reason)
	}
	return fmt.Sprintf("category rule %d (%q): %s", e.Index, e.Label, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidRule
}

// Rule associates a category label with the keywords that select it.
type Rule struct {
	Label    string   `json:"label" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// NewRule validates and normalizes a single rule. The label is trimmed,
// keywords are lower-cased and de-duplicated keeping first-seen order.
func NewRule(label string, keywords ...string) (Rule, error) {
	r, reason := normalizeRule(label, keywords)
	if reason != "" {
		return Rule{}, &ConfigError{Index: -1, Label: label, Reason: reason}
	}
	return r, nil
}

func normalizeRule(label string, keywords []string) (Rule, string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Rule{}, "label must not be empty"
	}
	if len(keywords) == 0 {
		return Rule{}, "at least one keyword is required"
	}

	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for i, kw := range keywords {
		// Whitespace-only keywords would match nearly every description.
		if strings.TrimSpace(kw) == "" {
			return Rule{}, fmt.Sprintf("keyword %d must not be empty", i)
		}
		kw = fold(kw)
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}

	return Rule{Label: label, Keywords: out}, ""
}

// fold lower-cases s with full Unicode case mapping. A Caser keeps state
// between calls, so a fresh one is built each time.
func fold(s string) string {
	return cases.Lower(language.Und).String(s)
}

func (r Rule) clone() Rule {
	return Rule{Label: r.Label, Keywords: append([]string(nil), r.Keywords...)}
}
