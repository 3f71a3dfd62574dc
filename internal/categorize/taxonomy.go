package categorize

import "strings"

// Taxonomy is an immutable, ordered list of rules. Rule order is priority:
// the first rule with a keyword hit decides the category.
//
// A nil *Taxonomy is valid and categorizes everything as Fallback.
type Taxonomy struct {
	rules []Rule
}

// Result describes how a description was categorized.
type Result struct {
	Category string `json:"category"`
	// RuleIndex is the position of the matching rule, -1 when Fallback was used.
	RuleIndex int    `json:"rule_index"`
	Keyword   string `json:"keyword,omitempty"`
}

// Matched reports whether a rule produced the category.
func (r Result) Matched() bool {
	return r.RuleIndex >= 0
}

// NewTaxonomy validates rules and builds a taxonomy from them. Every rule is
// normalized again, so hand-built Rule literals are checked too. An empty list
// is accepted.
func NewTaxonomy(rules []Rule) (*Taxonomy, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		nr, reason := normalizeRule(r.Label, r.Keywords)
		if reason != "" {
			return nil, &ConfigError{Index: i, Label: r.Label, Reason: reason}
		}
		out = append(out, nr)
	}
	return &Taxonomy{rules: out}, nil
}

// MustTaxonomy is like NewTaxonomy but panics on invalid rules.
func MustTaxonomy(rules []Rule) *Taxonomy {
	t, err := NewTaxonomy(rules)
	if err != nil {
		panic(err)
	}
	return t
}

// Categorize returns the label of the first rule matching description, or
// Fallback. It never fails and has no side effects.
func (t *Taxonomy) Categorize(description string) string {
	return t.Match(description).Category
}

// Match runs the same algorithm as Categorize and reports which rule and
// keyword decided the result.
func (t *Taxonomy) Match(description string) Result {
	if t == nil || len(t.rules) == 0 {
		return Result{Category: Fallback, RuleIndex: -1}
	}

	text := fold(description)
	for i, r := range t.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				return Result{Category: r.Label, RuleIndex: i, Keyword: kw}
			}
		}
	}

	return Result{Category: Fallback, RuleIndex: -1}
}

// Rules returns a copy of the rules in priority order.
func (t *Taxonomy) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.clone()
	}
	return out
}

// Labels returns the distinct labels in priority order.
func (t *Taxonomy) Labels() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(t.rules))
	out := make([]string, 0, len(t.rules))
	for _, r := range t.rules {
		if _, ok := seen[r.Label]; ok {
			continue
		}
		seen[r.Label] = struct{}{}
		out = append(out, r.Label)
	}
	return out
}

// Len returns the number of rules.
func (t *Taxonomy) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}
