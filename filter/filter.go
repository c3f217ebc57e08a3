// Package filter implements the ValueSet concept-filter algebra.
//
// A Registry maps filter operators to factories; each factory turns a
// model.Filter into a Predicate bound to one code system index. The default
// registry knows every operator FHIR R4 defines, and callers may register
// additional operators or override existing ones.
package filter

import (
	"fmt"
	"sync"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/model"
)

// Predicate decides whether a concept passes a filter.
type Predicate interface {
	Match(e *codesystem.Entry) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(e *codesystem.Entry) bool

// Match calls f(e).
func (f PredicateFunc) Match(e *codesystem.Entry) bool { return f(e) }

// Factory builds a Predicate for a filter against an index.
type Factory func(idx *codesystem.Index, f model.Filter) (Predicate, error)

// Registry maps filter operators to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.FilterOperator]Factory
}

// NewRegistry creates a registry holding the built-in operators.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[model.FilterOperator]Factory)}
	r.Register(model.OpEquals, equalsFactory)
	r.Register(model.OpIsA, isAFactory)
	r.Register(model.OpDescendentOf, descendentOfFactory)
	r.Register(model.OpIsNotA, isNotAFactory)
	r.Register(model.OpGeneralizes, generalizesFactory)
	r.Register(model.OpRegex, regexFactory)
	r.Register(model.OpIn, inFactory)
	r.Register(model.OpNotIn, notInFactory)
	r.Register(model.OpExists, existsFactory)
	return r
}

// Register adds or replaces the factory for op.
func (r *Registry) Register(op model.FilterOperator, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[op] = factory
}

// Operators returns the registered operators.
func (r *Registry) Operators() []model.FilterOperator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]model.FilterOperator, 0, len(r.factories))
	for op := range r.factories {
		ops = append(ops, op)
	}
	return ops
}

// Build creates a predicate for f.
func (r *Registry) Build(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	r.mu.RLock()
	factory, ok := r.factories[f.Op]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("operator %q: %w", f.Op, ft.ErrUnsupportedFilter)
	}
	return factory(idx, f)
}

// Select returns the concepts of idx that match all filters, in document order.
func (r *Registry) Select(idx *codesystem.Index, filters []model.Filter) ([]*codesystem.Entry, error) {
	preds := make([]Predicate, 0, len(filters))
	for _, f := range filters {
		p, err := r.Build(idx, f)
		if err != nil {
			return nil, fmt.Errorf("filter %q on %s: %w", f.String(), idx.URL(), err)
		}
		preds = append(preds, p)
	}

	var out []*codesystem.Entry
	for _, e := range idx.Concepts() {
		if matchAll(preds, e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func matchAll(preds []Predicate, e *codesystem.Entry) bool {
	for _, p := range preds {
		if !p.Match(e) {
			return false
		}
	}
	return true
}
