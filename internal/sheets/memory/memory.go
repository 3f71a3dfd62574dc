// Package memory is an in-process TransactionExporter used in tests and
// when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows [][]any
	// Fail, when set, is returned by Export instead of storing the row.
	Fail error
}

var _ ports.TransactionExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// Export stores the row and returns a synthetic row reference.
func (e *Exporter) Export(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Fail != nil {
		return "", e.Fail
	}
	e.rows = append(e.rows, ports.Row(t))
	return fmt.Sprintf("mem:%d", len(e.rows)), nil
}

// Rows returns a copy of every exported row.
func (e *Exporter) Rows() [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]any, len(e.rows))
	for i, r := range e.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

// SetFail changes the injected failure.
func (e *Exporter) SetFail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Fail = err
}
