// Package codesystem builds searchable, immutable indexes over CodeSystem
// resources and answers hierarchy questions (is-a, subsumption) on them.
package codesystem

import (
	"fmt"
	"sort"
	"sync"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/normalize"
)

// Outcome is the result of a subsumption test.
type Outcome string

// Subsumption outcomes.
const (
	OutcomeEquivalent  Outcome = "equivalent"
	OutcomeSubsumes    Outcome = "subsumes"
	OutcomeSubsumedBy  Outcome = "subsumed-by"
	OutcomeNotSubsumed Outcome = "not-subsumed"
)

// Entry is one concept of the indexed code system, flattened out of the
// concept tree. Entries are shared and must not be modified.
type Entry struct {
	Code        string
	Display     string
	Definition  string
	Designation []model.Designation
	Property    []model.ConceptProperty
}

// Coding returns the entry as a Coding of the given system.
func (e *Entry) Coding(system, version string) model.Coding {
	return model.Coding{System: system, Version: version, Code: e.Code, Display: e.Display}
}

// Index is an immutable view of one CodeSystem version.
// It is safe for concurrent use.
type Index struct {
	url              string
	version          string
	name             string
	content          model.ContentMode
	hierarchyMeaning model.HierarchyMeaning
	caseSensitive    bool
	properties       []model.PropertyDefinition
	supplements      []model.Canonical

	entries  []*Entry
	byCode   map[string]*Entry
	byFolded map[string]*Entry
	pos      map[string]int
	parents  map[string][]string
	children map[string][]string

	mu          sync.RWMutex
	descendants map[string]map[string]struct{}
	ancestors   map[string]map[string]struct{}
}

// NewIndex flattens cs and merges the given supplements into it.
func NewIndex(cs *model.CodeSystem, supplements ...*model.CodeSystem) (*Index, error) {
	if cs == nil || cs.URL == "" {
		return nil, fmt.Errorf("code system without url: %w", ft.ErrInvalidResource)
	}
	if cs.IsSupplement() {
		return nil, fmt.Errorf("%s is a supplement and cannot be indexed on its own: %w", cs.URL, ft.ErrInvalidResource)
	}

	idx := &Index{
		url:              cs.URL,
		version:          cs.Version,
		name:             cs.Name,
		content:          cs.Content,
		hierarchyMeaning: cs.HierarchyMeaning,
		caseSensitive:    cs.IsCaseSensitive(),
		properties:       cs.Property,
		byCode:           make(map[string]*Entry),
		byFolded:         make(map[string]*Entry),
		pos:              make(map[string]int),
		parents:          make(map[string][]string),
		children:         make(map[string][]string),
		descendants:      make(map[string]map[string]struct{}),
		ancestors:        make(map[string]map[string]struct{}),
	}

	if err := idx.addConcepts(cs.Concept, ""); err != nil {
		return nil, err
	}
	idx.linkProperties()

	for _, sup := range supplements {
		if sup == nil {
			continue
		}
		idx.merge(sup.Concept)
		idx.supplements = append(idx.supplements, sup.Canonical())
	}

	return idx, nil
}

func (idx *Index) addConcepts(concepts []model.Concept, parent string) error {
	for i := range concepts {
		c := &concepts[i]
		if _, dup := idx.byCode[c.Code]; dup {
			return fmt.Errorf("code %q appears twice in %s: %w", c.Code, idx.url, ft.ErrDuplicateCode)
		}

		e := &Entry{
			Code:        c.Code,
			Display:     c.Display,
			Definition:  c.Definition,
			Designation: append([]model.Designation(nil), c.Designation...),
			Property:    append([]model.ConceptProperty(nil), c.Property...),
		}
		idx.pos[c.Code] = len(idx.entries)
		idx.entries = append(idx.entries, e)
		idx.byCode[c.Code] = e
		if !idx.caseSensitive {
			key := normalize.String(c.Code)
			if _, taken := idx.byFolded[key]; !taken {
				idx.byFolded[key] = e
			}
		}

		if parent != "" {
			idx.link(parent, c.Code)
		}
		if err := idx.addConcepts(c.Concept, c.Code); err != nil {
			return err
		}
	}
	return nil
}

// linkProperties adds hierarchy edges declared through properties.
func (idx *Index) linkProperties() {
	for _, e := range idx.entries {
		for _, p := range e.Property {
			switch p.Code {
			case model.PropertyParent, model.PropertySubsumedBy:
				if _, ok := idx.byCode[p.Text()]; ok {
					idx.link(p.Text(), e.Code)
				}
			case model.PropertyChild:
				if _, ok := idx.byCode[p.Text()]; ok {
					idx.link(e.Code, p.Text())
				}
			}
		}
	}
}

func (idx *Index) link(parent, child string) {
	if parent == child || contains(idx.children[parent], child) {
		return
	}
	idx.children[parent] = append(idx.children[parent], child)
	idx.parents[child] = append(idx.parents[child], parent)
}

// merge adds supplement designations and properties to matching concepts.
func (idx *Index) merge(concepts []model.Concept) {
	for i := range concepts {
		c := &concepts[i]
		if e, ok := idx.byCode[c.Code]; ok {
			e.Designation = append(e.Designation, c.Designation...)
			e.Property = append(e.Property, c.Property...)
			if e.Display == "" && c.Display != "" {
				e.Display = c.Display
			}
		}
		idx.merge(c.Concept)
	}
}

// URL returns the code system url.
func (idx *Index) URL() string { return idx.url }

// Version returns the code system version.
func (idx *Index) Version() string { return idx.version }

// Name returns the code system name.
func (idx *Index) Name() string { return idx.name }

// Canonical returns url|version.
func (idx *Index) Canonical() model.Canonical {
	return model.Canonical{URL: idx.url, Version: idx.version}
}

// Content returns the content mode.
func (idx *Index) Content() model.ContentMode { return idx.content }

// HierarchyMeaning returns the declared hierarchy meaning, possibly empty.
func (idx *Index) HierarchyMeaning() model.HierarchyMeaning { return idx.hierarchyMeaning }

// CaseSensitive reports whether codes compare case-sensitively.
func (idx *Index) CaseSensitive() bool { return idx.caseSensitive }

// Properties returns the declared property definitions.
func (idx *Index) Properties() []model.PropertyDefinition { return idx.properties }

// Supplements returns the canonicals of the merged supplements.
func (idx *Index) Supplements() []model.Canonical { return idx.supplements }

// Len returns the number of concepts.
func (idx *Index) Len() int { return len(idx.entries) }

// Concepts returns all concepts in document order. The slice must not be modified.
func (idx *Index) Concepts() []*Entry { return idx.entries }

// Lookup finds a concept by code. Case-insensitive systems fall back to
// normalized matching, so the returned entry carries the canonical code.
func (idx *Index) Lookup(code string) (*Entry, bool) {
	if e, ok := idx.byCode[code]; ok {
		return e, true
	}
	if idx.caseSensitive {
		return nil, false
	}
	e, ok := idx.byFolded[normalize.String(code)]
	return e, ok
}

// resolve maps a code to its canonical spelling.
func (idx *Index) resolve(code string) (string, bool) {
	e, ok := idx.Lookup(code)
	if !ok {
		return "", false
	}
	return e.Code, true
}

// Position returns the document order of a code, or -1.
func (idx *Index) Position(code string) int {
	if c, ok := idx.resolve(code); ok {
		return idx.pos[c]
	}
	return -1
}

// Parents returns the direct parents of code.
func (idx *Index) Parents(code string) []string {
	c, ok := idx.resolve(code)
	if !ok {
		return nil
	}
	return append([]string(nil), idx.parents[c]...)
}

// Children returns the direct children of code.
func (idx *Index) Children(code string) []string {
	c, ok := idx.resolve(code)
	if !ok {
		return nil
	}
	return append([]string(nil), idx.children[c]...)
}

// Descendants returns the transitive children of code, excluding code
// itself, in document order.
func (idx *Index) Descendants(code string) []string {
	c, ok := idx.resolve(code)
	if !ok {
		return nil
	}
	return idx.ordered(idx.closure(c, idx.children, idx.descendants))
}

// Ancestors returns the transitive parents of code, excluding code itself,
// in document order.
func (idx *Index) Ancestors(code string) []string {
	c, ok := idx.resolve(code)
	if !ok {
		return nil
	}
	return idx.ordered(idx.closure(c, idx.parents, idx.ancestors))
}

// IsA reports whether code equals ancestor or descends from it.
func (idx *Index) IsA(code, ancestor string) bool {
	c, ok := idx.resolve(code)
	if !ok {
		return false
	}
	a, ok := idx.resolve(ancestor)
	if !ok {
		return false
	}
	if c == a {
		return true
	}
	_, found := idx.closure(a, idx.children, idx.descendants)[c]
	return found
}

// DescendantOf reports whether code strictly descends from ancestor.
func (idx *Index) DescendantOf(code, ancestor string) bool {
	c, ok := idx.resolve(code)
	if !ok {
		return false
	}
	a, ok := idx.resolve(ancestor)
	if !ok || c == a {
		return false
	}
	_, found := idx.closure(a, idx.children, idx.descendants)[c]
	return found
}

// Subsumes tests the relationship between codeA and codeB.
func (idx *Index) Subsumes(codeA, codeB string) (Outcome, error) {
	if idx.hierarchyMeaning != "" && idx.hierarchyMeaning != model.HierarchyIsA {
		return "", fmt.Errorf("subsumption on %s with hierarchy meaning %q: %w", idx.url, idx.hierarchyMeaning, ft.ErrNotSupported)
	}
	a, ok := idx.resolve(codeA)
	if !ok {
		return "", fmt.Errorf("code %q in %s: %w", codeA, idx.url, ft.ErrCodeNotFound)
	}
	b, ok := idx.resolve(codeB)
	if !ok {
		return "", fmt.Errorf("code %q in %s: %w", codeB, idx.url, ft.ErrCodeNotFound)
	}

	switch {
	case a == b:
		return OutcomeEquivalent, nil
	case idx.IsA(b, a):
		return OutcomeSubsumes, nil
	case idx.IsA(a, b):
		return OutcomeSubsumedBy, nil
	default:
		return OutcomeNotSubsumed, nil
	}
}

// closure walks edges from code and memoizes the reachable set.
// Visited-set traversal tolerates cycles.
func (idx *Index) closure(code string, edges map[string][]string, memo map[string]map[string]struct{}) map[string]struct{} {
	idx.mu.RLock()
	set, ok := memo[code]
	idx.mu.RUnlock()
	if ok {
		return set
	}

	set = make(map[string]struct{})
	stack := append([]string(nil), edges[code]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == code {
			continue
		}
		if _, seen := set[n]; seen {
			continue
		}
		set[n] = struct{}{}
		stack = append(stack, edges[n]...)
	}

	idx.mu.Lock()
	if existing, ok := memo[code]; ok {
		set = existing
	} else {
		memo[code] = set
	}
	idx.mu.Unlock()
	return set
}

func (idx *Index) ordered(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return idx.pos[out[i]] < idx.pos[out[j]] })
	return out
}

// Inactive reports whether the concept is marked inactive or retired.
func (idx *Index) Inactive(code string) bool {
	e, ok := idx.Lookup(code)
	if !ok {
		return false
	}
	for _, p := range e.Property {
		switch p.Code {
		case model.PropertyInactive:
			if p.ValueBoolean != nil && *p.ValueBoolean {
				return true
			}
		case model.PropertyStatus:
			if p.Text() == string(model.StatusRetired) || p.Text() == "inactive" {
				return true
			}
		}
	}
	return false
}

// Abstract reports whether the concept is not selectable.
func (idx *Index) Abstract(code string) bool {
	e, ok := idx.Lookup(code)
	if !ok {
		return false
	}
	for _, p := range e.Property {
		if p.Code == model.PropertyNotSelectable || p.Code == model.PropertyAbstract {
			if p.ValueBoolean != nil && *p.ValueBoolean {
				return true
			}
		}
	}
	return false
}

// PropertyValues returns the values of property on code, rendered as text.
// The parent and child pseudo-properties reflect the hierarchy.
func (idx *Index) PropertyValues(code, property string) []string {
	e, ok := idx.Lookup(code)
	if !ok {
		return nil
	}
	switch property {
	case model.PropertyParent:
		return idx.Parents(e.Code)
	case model.PropertyChild:
		return idx.Children(e.Code)
	}

	var out []string
	for _, p := range e.Property {
		if p.Code == property && p.HasValue() {
			out = append(out, p.Text())
		}
	}
	return out
}

// HasProperty reports whether code carries a value for property.
func (idx *Index) HasProperty(code, property string) bool {
	return len(idx.PropertyValues(code, property)) > 0
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
