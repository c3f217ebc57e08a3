package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/normalize"
)

// Filter properties with built-in meaning.
const (
	PropertyConcept = "concept"
	PropertyCode    = "code"
	PropertyDisplay = "display"
)

func isConceptProperty(p string) bool {
	return p == PropertyConcept || p == PropertyCode
}

// values returns the values the filter's property takes on e.
func values(idx *codesystem.Index, e *codesystem.Entry, property string) []string {
	switch {
	case isConceptProperty(property):
		return []string{e.Code}
	case property == PropertyDisplay:
		if e.Display == "" {
			return nil
		}
		return []string{e.Display}
	default:
		return idx.PropertyValues(e.Code, property)
	}
}

// hierarchical builds predicates for the hierarchy operators, which only
// apply to the concept property.
func hierarchical(f model.Filter, idx *codesystem.Index, test func(code, value string) bool) (Predicate, error) {
	if !isConceptProperty(f.Property) {
		return nil, fmt.Errorf("operator %q on property %q: %w", f.Op, f.Property, ft.ErrUnsupportedFilter)
	}
	value := strings.TrimSpace(f.Value)
	if value == "" {
		return nil, fmt.Errorf("operator %q needs a value: %w", f.Op, ft.ErrInvalidFilter)
	}
	return PredicateFunc(func(e *codesystem.Entry) bool {
		return test(e.Code, value)
	}), nil
}

func isAFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	return hierarchical(f, idx, idx.IsA)
}

func descendentOfFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	return hierarchical(f, idx, idx.DescendantOf)
}

func isNotAFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	return hierarchical(f, idx, func(code, value string) bool {
		return !idx.IsA(code, value)
	})
}

func generalizesFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	return hierarchical(f, idx, func(code, value string) bool {
		return idx.IsA(value, code)
	})
}

func equalsFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	switch {
	case isConceptProperty(f.Property):
		target, ok := idx.Lookup(f.Value)
		return PredicateFunc(func(e *codesystem.Entry) bool {
			return ok && e == target
		}), nil
	case f.Property == PropertyDisplay:
		return PredicateFunc(func(e *codesystem.Entry) bool {
			return normalize.Equal(e.Display, f.Value, false)
		}), nil
	default:
		return PredicateFunc(func(e *codesystem.Entry) bool {
			for _, v := range idx.PropertyValues(e.Code, f.Property) {
				if v == f.Value {
					return true
				}
			}
			return false
		}), nil
	}
}

// regexTimeout bounds a single match of a user-supplied pattern.
const regexTimeout = 100 * time.Millisecond

func regexFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	// \z anchors at the very end; $ would also accept a trailing newline.
	re, err := regexp2.Compile(`^(?:`+f.Value+`)\z`, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("regex %q: %v: %w", f.Value, err, ft.ErrInvalidFilter)
	}
	re.MatchTimeout = regexTimeout
	return PredicateFunc(func(e *codesystem.Entry) bool {
		for _, v := range values(idx, e, f.Property) {
			if ok, err := re.MatchString(v); err == nil && ok {
				return true
			}
		}
		return false
	}), nil
}

// memberSet resolves an in/not-in value list. Concept values are resolved
// to their canonical codes so case-insensitive systems match.
func memberSet(idx *codesystem.Index, f model.Filter) map[string]struct{} {
	set := make(map[string]struct{})
	for _, v := range f.Values() {
		if isConceptProperty(f.Property) {
			if e, ok := idx.Lookup(v); ok {
				v = e.Code
			}
		}
		set[v] = struct{}{}
	}
	return set
}

func inFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	set := memberSet(idx, f)
	return PredicateFunc(func(e *codesystem.Entry) bool {
		for _, v := range values(idx, e, f.Property) {
			if _, ok := set[v]; ok {
				return true
			}
		}
		return false
	}), nil
}

func notInFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	in, _ := inFactory(idx, f)
	return PredicateFunc(func(e *codesystem.Entry) bool {
		return !in.Match(e)
	}), nil
}

func existsFactory(idx *codesystem.Index, f model.Filter) (Predicate, error) {
	var want bool
	switch strings.ToLower(strings.TrimSpace(f.Value)) {
	case "true":
		want = true
	case "false":
		want = false
	default:
		return nil, fmt.Errorf("exists needs true or false, got %q: %w", f.Value, ft.ErrInvalidFilter)
	}
	return PredicateFunc(func(e *codesystem.Entry) bool {
		return (len(values(idx, e, f.Property)) > 0) == want
	}), nil
}
