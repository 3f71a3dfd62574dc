// Package sheets defines the outbound port used to mirror transactions into
// an external ledger.
package sheets

import (
	"context"
	"strconv"

	"fintrack/internal/core"
)

// TransactionExporter appends one transaction to the ledger and returns a
// reference to the written row.
type TransactionExporter interface {
	Export(ctx context.Context, t core.Transaction) (rowRef string, err error)
}

// Row is the column layout shared by every exporter:
// date, description, amount, category, id.
func Row(t core.Transaction) []any {
	category := t.Category
	if category == "" {
		category = "uncategorized"
	}
	return []any{
		t.Date.String(),
		t.Description,
		core.FormatCents(t.Amount.Cents),
		category,
		strconv.FormatInt(t.ID, 10),
	}
}
