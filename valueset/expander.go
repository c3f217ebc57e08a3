// Package valueset expands ValueSets and validates codes against them.
//
// Expansion evaluates the compose definition as set algebra: every include
// contributes the concepts it selects from its code system, intersected
// with the expansions of the value sets it references; the result is the
// union of all includes minus the union of all excludes. Members are
// deduplicated by (system, version, code) and keep first-seen order.
package valueset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/cache"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/filter"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/normalize"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/registry"
)

// Params controls how an expansion is filtered and paged.
type Params struct {
	// Filter keeps members whose display or code contains the text,
	// compared without case and diacritics.
	Filter string

	// Offset and Count page the result. Count 0 means no limit.
	Offset int
	Count  int

	// ActiveOnly drops inactive members.
	ActiveOnly bool

	// ExcludeNotForUI drops abstract (not selectable) members.
	ExcludeNotForUI bool

	// IncludeDesignations keeps designations in the output.
	IncludeDesignations bool

	// DisplayLanguage picks the display from a designation in this language
	// when one exists.
	DisplayLanguage string
}

// expansion is a cached, unpaged expansion. It is shared and must not be modified.
type expansion struct {
	members []Member
	exact   map[string][]int
	folded  map[string][]int
}

func newExpansion(members []Member) *expansion {
	x := &expansion{
		members: members,
		exact:   make(map[string][]int, len(members)),
		folded:  make(map[string][]int, len(members)),
	}
	for i, m := range members {
		x.exact[m.Code] = append(x.exact[m.Code], i)
		key := normalize.String(m.Code)
		x.folded[key] = append(x.folded[key], i)
	}
	return x
}

// Expander expands ValueSets held in a registry.
type Expander struct {
	reg     *registry.Registry
	filters *filter.Registry
	opts    *ft.Options
	metrics *ft.Metrics
	log     *logger.Logger

	conceptSets *cache.Cache[string, []Member]
	expansions  *cache.Cache[string, *expansion]
	group       singleflight.Group

	now func() time.Time
}

// NewExpander creates an expander over reg using the given filter registry.
func NewExpander(reg *registry.Registry, filters *filter.Registry, options *ft.Options, metrics *ft.Metrics) *Expander {
	if options == nil {
		options = ft.DefaultOptions()
	}
	if filters == nil {
		filters = filter.NewRegistry()
	}
	if metrics == nil {
		metrics = ft.NewMetrics()
	}
	return &Expander{
		reg:         reg,
		filters:     filters,
		opts:        options,
		metrics:     metrics,
		log:         options.Logger.With("valueset"),
		conceptSets: cache.NewWithTTL[string, []Member](options.ConceptSetCacheSize, options.CacheTTL),
		expansions:  cache.NewWithTTL[string, *expansion](options.ExpansionCacheSize, options.CacheTTL),
		now:         time.Now,
	}
}

// Expand expands a registered ValueSet by url or url|version.
func (e *Expander) Expand(ctx context.Context, canonical string, params Params) (*model.ValueSet, error) {
	start := time.Now()
	vs, err := e.reg.ValueSet(canonical)
	if err != nil {
		e.metrics.RecordExpansion(time.Since(start), 0, err)
		return nil, err
	}

	x, err := e.expandShared(ctx, vs)
	if err != nil {
		e.metrics.RecordExpansion(time.Since(start), 0, err)
		return nil, err
	}
	out := e.render(vs, x, params)
	e.metrics.RecordExpansion(time.Since(start), out.Expansion.Total, nil)
	return out, nil
}

// ExpandValueSet expands a ValueSet that need not be registered. Value sets
// it references are resolved through the registry.
func (e *Expander) ExpandValueSet(ctx context.Context, vs *model.ValueSet, params Params) (*model.ValueSet, error) {
	start := time.Now()
	if vs == nil {
		err := fmt.Errorf("nil value set: %w", ft.ErrInvalidResource)
		e.metrics.RecordExpansion(time.Since(start), 0, err)
		return nil, err
	}

	members, err := e.evaluate(ctx, vs, nil)
	if err != nil {
		e.metrics.RecordExpansion(time.Since(start), 0, err)
		return nil, err
	}
	out := e.render(vs, newExpansion(members), params)
	e.metrics.RecordExpansion(time.Since(start), out.Expansion.Total, nil)
	return out, nil
}

// IsExpandable reports whether a registered ValueSet can be expanded.
func (e *Expander) IsExpandable(ctx context.Context, canonical string) bool {
	vs, err := e.reg.ValueSet(canonical)
	if err != nil {
		return false
	}
	_, err = e.expandShared(ctx, vs)
	return err == nil
}

// Members returns the unpaged members of a registered ValueSet.
func (e *Expander) Members(ctx context.Context, canonical string) ([]Member, error) {
	vs, err := e.reg.ValueSet(canonical)
	if err != nil {
		return nil, err
	}
	x, err := e.expandShared(ctx, vs)
	if err != nil {
		return nil, err
	}
	return x.members, nil
}

// Purge drops every cached concept set and expansion.
func (e *Expander) Purge() {
	e.conceptSets.Purge()
	e.expansions.Purge()
}

func (e *Expander) expansionKey(vs *model.ValueSet) string {
	return vs.Canonical().String() + "#" + strconv.FormatUint(e.reg.Generation(), 10)
}

// expandShared serves top-level expansions from the expansion cache and
// coalesces concurrent identical requests.
func (e *Expander) expandShared(ctx context.Context, vs *model.ValueSet) (*expansion, error) {
	key := e.expansionKey(vs)
	if x, ok := e.expansions.Get(key); ok {
		e.metrics.RecordCacheHit(ft.CacheExpansion)
		return x, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The flight outlives any one caller; each waiter honours its own ctx.
	ch := e.group.DoChan(key, func() (any, error) {
		return e.expandCached(context.WithoutCancel(ctx), vs, nil)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*expansion), nil
	}
}

// expandCached evaluates vs through the expansion cache. Nested expansions
// come through here directly; coalescing them could deadlock on cycles that
// span concurrent requests.
func (e *Expander) expandCached(ctx context.Context, vs *model.ValueSet, stack []string) (*expansion, error) {
	key := e.expansionKey(vs)
	if x, ok := e.expansions.Get(key); ok {
		e.metrics.RecordCacheHit(ft.CacheExpansion)
		return x, nil
	}
	e.metrics.RecordCacheMiss(ft.CacheExpansion)

	members, err := e.evaluate(ctx, vs, stack)
	if err != nil {
		return nil, err
	}
	x := newExpansion(members)
	e.expansions.Set(key, x)
	return x, nil
}

// evaluate computes the members of vs. stack holds the canonicals being
// expanded above this one.
func (e *Expander) evaluate(ctx context.Context, vs *model.ValueSet, stack []string) ([]Member, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if vs.URL != "" {
		self := vs.Canonical().String()
		for _, c := range stack {
			if c == self {
				return nil, fmt.Errorf("value set %s includes itself (%s): %w",
					self, strings.Join(append(stack, self), " -> "), ft.ErrCyclicReference)
			}
		}
		stack = append(stack[:len(stack):len(stack)], self)
	}

	if vs.Compose == nil {
		if vs.Expansion != nil {
			return setOf(flatten(nil, vs.Expansion.Contains)).list(), nil
		}
		return nil, fmt.Errorf("value set %s has neither compose nor expansion: %w", vs.URL, ft.ErrNotExpandable)
	}

	result := newConceptSet()
	for i := range vs.Compose.Include {
		s, err := e.include(ctx, &vs.Compose.Include[i], stack)
		if err != nil {
			return nil, err
		}
		result.union(s)
		if err := e.checkSize(vs, result.len()); err != nil {
			return nil, err
		}
	}

	if len(vs.Compose.Exclude) > 0 {
		excluded := newConceptSet()
		for i := range vs.Compose.Exclude {
			s, err := e.include(ctx, &vs.Compose.Exclude[i], stack)
			if err != nil {
				return nil, err
			}
			excluded.union(s)
		}
		result = result.subtract(excluded)
	}

	if vs.Compose.Inactive != nil && !*vs.Compose.Inactive {
		result = result.filter(func(m Member) bool { return !m.Inactive })
	}

	e.log.Debug("expanded %s: %d members", vs.Canonical(), result.len())
	return result.list(), nil
}

func (e *Expander) checkSize(vs *model.ValueSet, n int) error {
	if limit := e.opts.MaxExpansionSize; limit > 0 && n > limit {
		return fmt.Errorf("value set %s exceeds %d members: %w", vs.URL, limit, ft.ErrTooCostly)
	}
	return nil
}

// include evaluates one include or exclude.
func (e *Expander) include(ctx context.Context, inc *model.Include, stack []string) (*conceptSet, error) {
	var result *conceptSet

	if inc.System != "" {
		members, err := e.systemPart(ctx, inc)
		if err != nil {
			return nil, err
		}
		result = setOf(members)
	}

	for _, ref := range inc.ValueSet {
		vs, err := e.reg.ValueSet(ref)
		if err != nil {
			return nil, fmt.Errorf("included value set: %w", err)
		}
		x, err := e.expandCached(ctx, vs, stack)
		if err != nil {
			return nil, err
		}
		s := setOf(x.members)
		if result == nil {
			result = s
		} else {
			result = result.intersect(s)
		}
	}

	if result == nil {
		return newConceptSet(), nil
	}
	return result, nil
}

func systemCanonical(inc *model.Include) string {
	return model.Canonical{URL: inc.System, Version: inc.Version}.String()
}

// systemPart selects the concepts an include takes from its code system.
func (e *Expander) systemPart(ctx context.Context, inc *model.Include) ([]Member, error) {
	if len(inc.Concept) > 0 && len(inc.Filter) == 0 {
		return e.listed(ctx, inc)
	}

	idx, err := e.reg.Index(ctx, systemCanonical(inc))
	if err != nil {
		return nil, fmt.Errorf("include of %s: %w", systemCanonical(inc), err)
	}
	switch idx.Content() {
	case model.ContentNotPresent:
		return nil, fmt.Errorf("code system %s has no content: %w", idx.Canonical(), ft.ErrNotExpandable)
	case model.ContentFragment, model.ContentExample:
		e.log.Warn("expanding from %s code system %s", idx.Content(), idx.Canonical())
	}

	members, err := e.selection(idx, inc.Filter)
	if err != nil {
		return nil, err
	}
	if len(inc.Concept) == 0 {
		return members, nil
	}

	// Listed concepts narrow the shared selection and keep their display
	// overrides.
	listed, err := e.listed(ctx, inc)
	if err != nil {
		return nil, err
	}
	return setOf(listed).intersect(setOf(members)).list(), nil
}

// selection returns the concepts of idx that pass filters, through the
// concept-set cache.
func (e *Expander) selection(idx *codesystem.Index, filters []model.Filter) ([]Member, error) {
	key := e.conceptSetKey(idx, filters)
	if members, ok := e.conceptSets.Get(key); ok {
		e.metrics.RecordCacheHit(ft.CacheConceptSet)
		return members, nil
	}
	e.metrics.RecordCacheMiss(ft.CacheConceptSet)

	entries := idx.Concepts()
	if len(filters) > 0 {
		var err error
		if entries, err = e.filters.Select(idx, filters); err != nil {
			return nil, err
		}
	}

	members := make([]Member, 0, len(entries))
	for _, entry := range entries {
		members = append(members, fromEntry(idx, entry))
	}
	e.conceptSets.Set(key, members)
	return members, nil
}

func (e *Expander) conceptSetKey(idx *codesystem.Index, filters []model.Filter) string {
	var b strings.Builder
	b.WriteString(idx.Canonical().String())
	b.WriteString("#")
	b.WriteString(strconv.FormatUint(e.reg.Generation(), 10))
	for _, f := range filters {
		b.WriteString("#")
		b.WriteString(f.String())
	}
	return b.String()
}

// listed resolves explicitly listed concepts. Codes unknown to an available
// code system are skipped; without the code system they are taken as given.
func (e *Expander) listed(ctx context.Context, inc *model.Include) ([]Member, error) {
	idx, err := e.reg.Index(ctx, systemCanonical(inc))
	if err != nil && !errors.Is(err, ft.ErrNotFound) {
		return nil, err
	}

	members := make([]Member, 0, len(inc.Concept))
	for _, c := range inc.Concept {
		if idx == nil || idx.Content() == model.ContentNotPresent {
			members = append(members, Member{
				System:      inc.System,
				Version:     inc.Version,
				Code:        c.Code,
				Display:     c.Display,
				Designation: c.Designation,
			})
			continue
		}

		entry, ok := idx.Lookup(c.Code)
		if !ok {
			e.log.Warn("code %q is not defined in %s; skipped", c.Code, idx.Canonical())
			continue
		}
		m := fromEntry(idx, entry)
		if c.Display != "" {
			m.Display = c.Display
		}
		if len(c.Designation) > 0 {
			m.Designation = append(append([]model.Designation(nil), c.Designation...), m.Designation...)
		}
		members = append(members, m)
	}
	return members, nil
}

func fromEntry(idx *codesystem.Index, entry *codesystem.Entry) Member {
	return Member{
		System:      idx.URL(),
		Version:     idx.Version(),
		Code:        entry.Code,
		Display:     entry.Display,
		Abstract:    idx.Abstract(entry.Code),
		Inactive:    idx.Inactive(entry.Code),
		Designation: entry.Designation,
	}
}

// flatten collects the members of a nested contains list.
func flatten(out []Member, contains []model.Contains) []Member {
	for _, c := range contains {
		if c.Code != "" {
			out = append(out, Member{
				System:      c.System,
				Version:     c.Version,
				Code:        c.Code,
				Display:     c.Display,
				Abstract:    c.Abstract,
				Inactive:    c.Inactive,
				Designation: c.Designation,
			})
		}
		out = flatten(out, c.Contains)
	}
	return out
}

// render applies params to an expansion and builds the output ValueSet.
func (e *Expander) render(vs *model.ValueSet, x *expansion, params Params) *model.ValueSet {
	members := make([]Member, 0, len(x.members))
	for _, m := range x.members {
		if params.ActiveOnly && m.Inactive {
			continue
		}
		if params.ExcludeNotForUI && m.Abstract {
			continue
		}
		if params.DisplayLanguage != "" {
			m.Display = displayFor(m, params.DisplayLanguage)
		}
		if params.Filter != "" && !normalize.Contains(m.Display, params.Filter) && !normalize.Contains(m.Code, params.Filter) {
			continue
		}
		members = append(members, m)
	}

	total := len(members)
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if params.Count > 0 && offset+params.Count < end {
		end = offset + params.Count
	}

	contains := make([]model.Contains, 0, end-offset)
	for _, m := range members[offset:end] {
		contains = append(contains, m.Contains(params.IncludeDesignations))
	}

	out := *vs
	out.Expansion = &model.Expansion{
		Identifier: "urn:uuid:" + uuid.NewString(),
		Timestamp:  e.now().UTC().Format(time.RFC3339),
		Total:      total,
		Offset:     offset,
		Parameter:  expansionParameters(params, x.members),
		Contains:   contains,
	}
	return &out
}

func displayFor(m Member, language string) string {
	for _, d := range m.Designation {
		if d.Language == language || strings.HasPrefix(d.Language, language+"-") {
			return d.Value
		}
	}
	return m.Display
}

func expansionParameters(params Params, members []Member) []model.ExpansionParameter {
	var out []model.ExpansionParameter
	str := func(name, v string) {
		out = append(out, model.ExpansionParameter{Name: name, ValueString: &v})
	}
	boolean := func(name string, v bool) {
		out = append(out, model.ExpansionParameter{Name: name, ValueBoolean: &v})
	}
	integer := func(name string, v int) {
		out = append(out, model.ExpansionParameter{Name: name, ValueInteger: &v})
	}

	if params.Filter != "" {
		str("filter", params.Filter)
	}
	if params.Offset > 0 {
		integer("offset", params.Offset)
	}
	if params.Count > 0 {
		integer("count", params.Count)
	}
	if params.ActiveOnly {
		boolean("activeOnly", true)
	}
	if params.ExcludeNotForUI {
		boolean("excludeNotForUI", true)
	}
	if params.IncludeDesignations {
		boolean("includeDesignations", true)
	}
	if params.DisplayLanguage != "" {
		code := params.DisplayLanguage
		out = append(out, model.ExpansionParameter{Name: "displayLanguage", ValueCode: &code})
	}

	seen := make(map[string]bool)
	for _, m := range members {
		c := model.Canonical{URL: m.System, Version: m.Version}.String()
		if m.System == "" || seen[c] {
			continue
		}
		seen[c] = true
		uri := c
		out = append(out, model.ExpansionParameter{Name: "used-codesystem", ValueURI: &uri})
	}
	return out
}
