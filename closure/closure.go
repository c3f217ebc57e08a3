// Package closure maintains closure tables: named sets of concepts for which
// every subsumption relation between members is tracked incrementally.
//
// A client initializes a table, then adds concepts as it encounters them.
// Each add returns only the relations that are new, so the client can keep
// its own transitive closure table in step. Tables are versioned and any
// range of versions can be replayed.
package closure

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/cache"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/registry"
)

// Relation records that Narrower is subsumed by Broader. Version is the
// table version in which the relation was discovered.
type Relation struct {
	Version  int
	Narrower model.Coding
	Broader  model.Coding
}

type table struct {
	version   int
	concepts  []model.Coding
	seen      map[string]bool
	relations []Relation
}

type memoKey struct {
	system     string
	generation uint64
	a, b       string
}

// Manager holds the closure tables.
type Manager struct {
	reg     *registry.Registry
	metrics *ft.Metrics
	log     *logger.Logger

	mu     sync.Mutex
	tables map[string]*table

	memo *cache.Cache[memoKey, codesystem.Outcome]
}

// NewManager creates a manager that answers subsumption from reg.
func NewManager(reg *registry.Registry, options *ft.Options, metrics *ft.Metrics) *Manager {
	if options == nil {
		options = ft.DefaultOptions()
	}
	if metrics == nil {
		metrics = ft.NewMetrics()
	}
	return &Manager{
		reg:     reg,
		metrics: metrics,
		log:     options.Logger.With("closure"),
		tables:  make(map[string]*table),
		memo:    cache.New[memoKey, codesystem.Outcome](options.ValidationCacheSize),
	}
}

// Init creates the named table, or empties it if it exists.
func (m *Manager) Init(name string) error {
	if name == "" {
		return fmt.Errorf("closure table needs a name: %w", ft.ErrInvalidResource)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = &table{seen: make(map[string]bool)}
	m.log.Debug("initialized closure table %s", name)
	return nil
}

// Names returns the names of the existing tables.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tables))
	for name := range m.tables {
		out = append(out, name)
	}
	return out
}

// Version returns the current version of a table.
func (m *Manager) Version(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return 0, fmt.Errorf("closure table %s: %w", name, ft.ErrNotFound)
	}
	return t.version, nil
}

// Concepts returns the concepts in a table in the order they were added.
func (m *Manager) Concepts(name string) ([]model.Coding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("closure table %s: %w", name, ft.ErrNotFound)
	}
	return append([]model.Coding(nil), t.concepts...), nil
}

// Add adds codings to a table and returns the relations they introduce as a
// ConceptMap. Codings already in the table are ignored. An add that brings
// in at least one new concept increments the table version.
func (m *Manager) Add(ctx context.Context, name string, codings []model.Coding) (*model.ConceptMap, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("closure table %s: %w", name, ft.ErrNotFound)
	}

	var fresh []model.Coding
	for _, c := range codings {
		if c.System == "" || c.Code == "" {
			m.log.Warn("closure %s: ignoring coding without system or code", name)
			continue
		}
		key := c.System + "|" + c.Code
		if t.seen[key] {
			continue
		}
		t.seen[key] = true
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return m.conceptMap(name, t.version, nil), nil
	}

	version := t.version + 1
	var found []Relation
	for _, c := range fresh {
		idx, err := m.reg.Index(ctx, model.Canonical{URL: c.System, Version: c.Version}.String())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.log.Warn("closure %s: no code system for %s: %v", name, c.System, err)
		}
		for _, other := range t.concepts {
			if idx == nil || other.System != c.System {
				continue
			}
			switch m.subsumes(idx, other.Code, c.Code) {
			case codesystem.OutcomeSubsumes:
				found = append(found, Relation{Version: version, Narrower: c, Broader: other})
			case codesystem.OutcomeSubsumedBy:
				found = append(found, Relation{Version: version, Narrower: other, Broader: c})
			}
		}
		t.concepts = append(t.concepts, c)
	}

	t.version = version
	t.relations = append(t.relations, found...)
	return m.conceptMap(name, version, found), nil
}

// Replay returns the relations recorded after version since, stamped with
// the current table version.
func (m *Manager) Replay(name string, since int) (*model.ConceptMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("closure table %s: %w", name, ft.ErrNotFound)
	}
	var out []Relation
	for _, r := range t.relations {
		if r.Version > since {
			out = append(out, r)
		}
	}
	return m.conceptMap(name, t.version, out), nil
}

// Relations returns every relation in a table.
func (m *Manager) Relations(name string) ([]Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("closure table %s: %w", name, ft.ErrNotFound)
	}
	return append([]Relation(nil), t.relations...), nil
}

func (m *Manager) subsumes(idx *codesystem.Index, a, b string) codesystem.Outcome {
	key := memoKey{system: idx.Canonical().String(), generation: m.reg.Generation(), a: a, b: b}
	if out, ok := m.memo.Get(key); ok {
		m.metrics.RecordCacheHit(ft.CacheClosure)
		return out
	}
	m.metrics.RecordCacheMiss(ft.CacheClosure)

	out, err := idx.Subsumes(a, b)
	if err != nil {
		m.log.Debug("subsumption %s/%s in %s: %v", a, b, idx.URL(), err)
		out = codesystem.OutcomeNotSubsumed
	}
	m.memo.Set(key, out)
	return out
}

func (m *Manager) conceptMap(name string, version int, relations []Relation) *model.ConceptMap {
	cm := &model.ConceptMap{
		ResourceType: model.ResourceConceptMap,
		ID:           name,
		Name:         name,
		Version:      strconv.Itoa(version),
		Status:       model.StatusActive,
	}

	groups := make(map[string]int)
	for _, r := range relations {
		gi, ok := groups[r.Narrower.System]
		if !ok {
			gi = len(cm.Group)
			groups[r.Narrower.System] = gi
			cm.Group = append(cm.Group, model.ConceptMapGroup{Source: r.Narrower.System, Target: r.Broader.System})
		}
		g := &cm.Group[gi]
		g.Element = append(g.Element, model.SourceElement{
			Code:    r.Narrower.Code,
			Display: r.Narrower.Display,
			Target: []model.TargetElement{{
				Code:        r.Broader.Code,
				Display:     r.Broader.Display,
				Equivalence: model.EquivalenceSubsumes,
			}},
		})
	}
	return cm
}
