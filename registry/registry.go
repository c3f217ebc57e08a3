// Package registry stores the terminology resources known to the engine and
// hands out cached CodeSystem indexes.
//
// Resources are keyed by canonical URL and business version. Lookups accept
// either "url|version" for an exact match or a bare URL, which resolves to
// the latest version. Every mutation bumps a generation counter; caches
// further up key on it, so they never serve content from before a change.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/cache"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/pkg/logger"
)

// indexKey identifies a built index.
type indexKey struct {
	url        string
	version    string
	generation uint64
}

// Registry holds CodeSystems, supplements, ValueSets and ConceptMaps.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	codeSystems map[string]map[string]*model.CodeSystem
	supplements map[string][]*model.CodeSystem
	valueSets   map[string]map[string]*model.ValueSet
	conceptMaps map[string]map[string]*model.ConceptMap

	generation atomic.Uint64

	indexes *cache.Cache[indexKey, *codesystem.Index]
	group   singleflight.Group
	metrics *ft.Metrics
	log     *logger.Logger
}

// New creates an empty registry.
func New(options *ft.Options, metrics *ft.Metrics) *Registry {
	if options == nil {
		options = ft.DefaultOptions()
	}
	if metrics == nil {
		metrics = ft.NewMetrics()
	}
	return &Registry{
		codeSystems: make(map[string]map[string]*model.CodeSystem),
		supplements: make(map[string][]*model.CodeSystem),
		valueSets:   make(map[string]map[string]*model.ValueSet),
		conceptMaps: make(map[string]map[string]*model.ConceptMap),
		indexes:     cache.NewWithTTL[indexKey, *codesystem.Index](options.IndexCacheSize, options.CacheTTL),
		metrics:     metrics,
		log:         options.Logger.With("registry"),
	}
}

// Generation returns a counter that changes on every mutation.
func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

func (r *Registry) bump() {
	r.generation.Add(1)
}

// AddCodeSystem registers a CodeSystem or a supplement.
// A resource with the same url and version replaces the previous one.
func (r *Registry) AddCodeSystem(cs *model.CodeSystem) error {
	if cs == nil || cs.URL == "" {
		return fmt.Errorf("code system without url: %w", ft.ErrInvalidResource)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cs.IsSupplement() {
		base := model.ParseCanonical(cs.Supplements).URL
		if base == "" {
			return fmt.Errorf("supplement %s names no base system: %w", cs.URL, ft.ErrInvalidResource)
		}
		list := r.supplements[base][:0:0]
		for _, s := range r.supplements[base] {
			if s.URL != cs.URL || s.Version != cs.Version {
				list = append(list, s)
			}
		}
		r.supplements[base] = append(list, cs)
	} else {
		put(r.codeSystems, cs.URL, cs.Version, cs)
	}
	r.bump()
	return nil
}

// AddValueSet registers a ValueSet.
func (r *Registry) AddValueSet(vs *model.ValueSet) error {
	if vs == nil || vs.URL == "" {
		return fmt.Errorf("value set without url: %w", ft.ErrInvalidResource)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	put(r.valueSets, vs.URL, vs.Version, vs)
	r.bump()
	return nil
}

// AddConceptMap registers a ConceptMap.
func (r *Registry) AddConceptMap(cm *model.ConceptMap) error {
	if cm == nil || cm.URL == "" {
		return fmt.Errorf("concept map without url: %w", ft.ErrInvalidResource)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	put(r.conceptMaps, cm.URL, cm.Version, cm)
	r.bump()
	return nil
}

// RemoveCodeSystem removes a CodeSystem or supplement. It reports whether
// anything was removed.
func (r *Registry) RemoveCodeSystem(canonical string) bool {
	c := model.ParseCanonical(canonical)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := remove(r.codeSystems, c)
	for base, list := range r.supplements {
		kept := list[:0:0]
		for _, s := range list {
			if s.URL == c.URL && (c.Version == "" || s.Version == c.Version) {
				removed = true
				continue
			}
			kept = append(kept, s)
		}
		r.supplements[base] = kept
	}
	if removed {
		r.bump()
	}
	return removed
}

// RemoveValueSet removes a ValueSet.
func (r *Registry) RemoveValueSet(canonical string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := remove(r.valueSets, model.ParseCanonical(canonical))
	if removed {
		r.bump()
	}
	return removed
}

// RemoveConceptMap removes a ConceptMap.
func (r *Registry) RemoveConceptMap(canonical string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := remove(r.conceptMaps, model.ParseCanonical(canonical))
	if removed {
		r.bump()
	}
	return removed
}

// CodeSystem resolves a CodeSystem by url or url|version.
func (r *Registry) CodeSystem(canonical string) (*model.CodeSystem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cs, ok := resolve(r.codeSystems, model.ParseCanonical(canonical)); ok {
		return cs, nil
	}
	return nil, fmt.Errorf("code system %s: %w", canonical, ft.ErrNotFound)
}

// HasCodeSystem reports whether a CodeSystem resolves.
func (r *Registry) HasCodeSystem(canonical string) bool {
	_, err := r.CodeSystem(canonical)
	return err == nil
}

// ValueSet resolves a ValueSet by url or url|version.
func (r *Registry) ValueSet(canonical string) (*model.ValueSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if vs, ok := resolve(r.valueSets, model.ParseCanonical(canonical)); ok {
		return vs, nil
	}
	return nil, fmt.Errorf("value set %s: %w", canonical, ft.ErrNotFound)
}

// ConceptMap resolves a ConceptMap by url or url|version.
func (r *Registry) ConceptMap(canonical string) (*model.ConceptMap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cm, ok := resolve(r.conceptMaps, model.ParseCanonical(canonical)); ok {
		return cm, nil
	}
	return nil, fmt.Errorf("concept map %s: %w", canonical, ft.ErrNotFound)
}

// Supplements returns the supplements registered for a base system url.
func (r *Registry) Supplements(url string) []*model.CodeSystem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*model.CodeSystem(nil), r.supplements[url]...)
}

// CodeSystems returns every registered CodeSystem ordered by url and version.
func (r *Registry) CodeSystems() []*model.CodeSystem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return all(r.codeSystems)
}

// ValueSets returns every registered ValueSet ordered by url and version.
func (r *Registry) ValueSets() []*model.ValueSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return all(r.valueSets)
}

// ConceptMaps returns every registered ConceptMap ordered by url and version.
func (r *Registry) ConceptMaps() []*model.ConceptMap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return all(r.conceptMaps)
}

// Index returns the index of a CodeSystem, building it on first use.
// Supplements registered for the system are merged in.
func (r *Registry) Index(ctx context.Context, canonical string) (*codesystem.Index, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cs, err := r.CodeSystem(canonical)
	if err != nil {
		return nil, err
	}

	key := indexKey{url: cs.URL, version: cs.Version, generation: r.Generation()}
	if idx, ok := r.indexes.Get(key); ok {
		r.metrics.RecordCacheHit(ft.CacheIndex)
		return idx, nil
	}
	r.metrics.RecordCacheMiss(ft.CacheIndex)

	v, err, _ := r.group.Do(cs.Canonical().String()+"#"+strconv.FormatUint(key.generation, 10), func() (any, error) {
		return r.indexes.GetOrLoad(key, func() (*codesystem.Index, error) {
			var sups []*model.CodeSystem
			for _, s := range r.Supplements(cs.URL) {
				if v := model.ParseCanonical(s.Supplements).Version; v == "" || v == cs.Version {
					sups = append(sups, s)
				}
			}
			idx, err := codesystem.NewIndex(cs, sups...)
			if err != nil {
				return nil, err
			}
			r.log.Debug("indexed %s (%d concepts, %d supplements)", cs.Canonical(), idx.Len(), len(sups))
			return idx, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*codesystem.Index), nil
}

// Stats reports resource counts.
type Stats struct {
	CodeSystems int
	Supplements int
	ValueSets   int
	ConceptMaps int
	Generation  uint64
}

// Stats returns resource counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Generation: r.Generation()}
	for _, versions := range r.codeSystems {
		s.CodeSystems += len(versions)
	}
	for _, list := range r.supplements {
		s.Supplements += len(list)
	}
	for _, versions := range r.valueSets {
		s.ValueSets += len(versions)
	}
	for _, versions := range r.conceptMaps {
		s.ConceptMaps += len(versions)
	}
	return s
}

func put[T any](m map[string]map[string]T, url, version string, v T) {
	versions, ok := m[url]
	if !ok {
		versions = make(map[string]T)
		m[url] = versions
	}
	versions[version] = v
}

func remove[T any](m map[string]map[string]T, c model.Canonical) bool {
	versions, ok := m[c.URL]
	if !ok {
		return false
	}
	if c.Version == "" {
		delete(m, c.URL)
		return true
	}
	if _, ok := versions[c.Version]; !ok {
		return false
	}
	delete(versions, c.Version)
	if len(versions) == 0 {
		delete(m, c.URL)
	}
	return true
}

// resolve finds an exact version, or the latest one when none is given.
func resolve[T any](m map[string]map[string]T, c model.Canonical) (T, bool) {
	var zero T
	versions, ok := m[c.URL]
	if !ok || len(versions) == 0 {
		return zero, false
	}
	if c.Version != "" {
		v, ok := versions[c.Version]
		return v, ok
	}
	return versions[Latest(keys(versions))], true
}

func keys[T any](versions map[string]T) []string {
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	return out
}

func all[T any](m map[string]map[string]T) []T {
	urls := make([]string, 0, len(m))
	for u := range m {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var out []T
	for _, u := range urls {
		versions := keys(m[u])
		sort.Slice(versions, func(i, j int) bool { return CompareVersions(versions[i], versions[j]) < 0 })
		for _, v := range versions {
			out = append(out, m[u][v])
		}
	}
	return out
}

// Latest returns the highest version in the list.
func Latest(versions []string) string {
	best := ""
	for i, v := range versions {
		if i == 0 || CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return best
}

// CompareVersions compares dotted versions. Numeric segments compare as
// numbers, others lexically; a missing segment sorts first.
func CompareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		if i >= len(as) {
			return -1
		}
		if i >= len(bs) {
			return 1
		}
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return 0
}
