package categorize

import (
	"fmt"
	"strings"
)

// Names of the built-in tables.
const (
	BuiltinDefault = "default"
	BuiltinBasic   = "basic"
)

// Default returns the seven-category table used when no other source is
// configured.
func Default() *Taxonomy {
	return MustTaxonomy([]Rule{
		{Label: "food", Keywords: []string{"pizza", "burger", "restaurant", "coffee", "meal", "dining", "snack", "food"}},
		{Label: "travel", Keywords: []string{"uber", "taxi", "bus", "train", "flight", "cab", "ola", "hotel", "travel", "ticket", "fuel"}},
		{Label: "entertainment", Keywords: []string{"movie", "netflix", "concert", "game", "theatre", "music", "spotify", "youtube", "show"}},
		{Label: "shopping", Keywords: []string{"mall", "clothes", "shoes", "amazon", "store", "shopping", "flipkart", "myntra", "electronics", "accessories"}},
		{Label: "healthcare", Keywords: []string{"doctor", "hospital", "medicine", "pharmacy", "healthcare", "clinic", "dental", "eye", "insurance"}},
		{Label: "education", Keywords: []string{"books", "pen", "course", "tuition", "school", "college", "university", "training", "exam", "education", "calculator"}},
		{Label: "bills", Keywords: []string{"electricity", "water", "internet", "rent", "phone"}},
	})
}

// Basic returns the minimal three-keyword table.
func Basic() *Taxonomy {
	return MustTaxonomy([]Rule{
		{Label: "food", Keywords: []string{"pizza"}},
		{Label: "travel", Keywords: []string{"uber"}},
		{Label: "entertainment", Keywords: []string{"movie"}},
	})
}

// Builtin returns the built-in table with the given name.
func Builtin(name string) (*Taxonomy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BuiltinDefault, "":
		return Default(), nil
	case BuiltinBasic:
		return Basic(), nil
	default:
		return nil, fmt.Errorf("unknown built-in taxonomy %q: must be %q or %q", name, BuiltinDefault, BuiltinBasic)
	}
}
