package categorize

import "sync/atomic"

// Engine serves categorization from the current taxonomy snapshot and lets
// callers publish a new snapshot at any time. Readers never block and always
// see one whole taxonomy.
type Engine struct {
	current atomic.Pointer[Taxonomy]
}

// NewEngine returns an engine serving t. t may be nil.
func NewEngine(t *Taxonomy) *Engine {
	e := &Engine{}
	e.current.Store(t)
	return e
}

// Categorize categorizes description with the current snapshot.
func (e *Engine) Categorize(description string) string {
	return e.current.Load().Categorize(description)
}

// Match is Categorize with match details.
func (e *Engine) Match(description string) Result {
	return e.current.Load().Match(description)
}

// Taxonomy returns the current snapshot.
func (e *Engine) Taxonomy() *Taxonomy {
	return e.current.Load()
}

// Swap publishes t and returns the snapshot it replaced.
func (e *Engine) Swap(t *Taxonomy) *Taxonomy {
	return e.current.Swap(t)
}
