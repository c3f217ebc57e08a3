package valueset

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/filter"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/registry"
)

const (
	animals = "http://example.org/animals"
	colors  = "http://example.org/colors"
)

func vsURL(name string) string { return "http://example.org/ValueSet/" + name }

func fixture(t *testing.T, opts ...ft.Option) (*Expander, *registry.Registry) {
	t.Helper()
	opts = append([]ft.Option{ft.WithLogger(logger.New(io.Discard, logger.LevelNone))}, opts...)
	o := ft.Apply(opts...)
	metrics := ft.NewMetrics()
	reg := registry.New(o, metrics)

	yes := true
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	must(reg.AddCodeSystem(&model.CodeSystem{
		URL: animals, Version: "1.0", Content: model.ContentComplete,
		Concept: []model.Concept{
			{Code: "animal", Display: "Animal", Property: []model.ConceptProperty{model.BoolProperty(model.PropertyNotSelectable, true)},
				Concept: []model.Concept{
					{Code: "mammal", Display: "Mammal", Concept: []model.Concept{
						{Code: "dog", Display: "Dog", Designation: []model.Designation{{Language: "de", Value: "Hund"}}},
						{Code: "cat", Display: "Cat"},
						{Code: "mammoth", Display: "Mammoth", Property: []model.ConceptProperty{model.BoolProperty(model.PropertyInactive, true)}},
					}},
					{Code: "bird", Display: "Bird"},
				}},
			{Code: "Élan", Display: "Élan vital"},
		},
	}))
	must(reg.AddCodeSystem(&model.CodeSystem{
		URL: colors, Content: model.ContentComplete, CaseSensitive: &yes,
		Concept: []model.Concept{{Code: "Red", Display: "Red"}, {Code: "green", Display: "Green"}},
	}))
	must(reg.AddCodeSystem(&model.CodeSystem{URL: "http://example.org/empty", Content: model.ContentNotPresent}))

	valueSets := map[string]*model.Compose{
		"all":     {Include: []model.Include{{System: animals}}},
		"mammals": {Include: []model.Include{{System: animals, Filter: []model.Filter{{Property: "concept", Op: model.OpIsA, Value: "mammal"}}}}},
		"listed": {Include: []model.Include{{System: animals, Concept: []model.IncludeConcept{
			{Code: "DOG"}, {Code: "bird", Display: "Birdie"}, {Code: "unicorn"},
		}}}},
		"external": {Include: []model.Include{{System: "http://example.org/unknown", Concept: []model.IncludeConcept{{Code: "X", Display: "Ex"}}}}},
		"intersect": {Include: []model.Include{{ValueSet: []string{vsURL("mammals"), vsURL("listed")}}}},
		"system-and-vs": {Include: []model.Include{{
			System: animals, Filter: []model.Filter{{Property: "concept", Op: model.OpDescendentOf, Value: "animal"}},
			ValueSet: []string{vsURL("listed")},
		}}},
		"exclude": {
			Include: []model.Include{{System: animals}, {System: colors}},
			Exclude: []model.Include{{System: animals, Filter: []model.Filter{{Property: "concept", Op: model.OpIsA, Value: "mammal"}}}},
		},
		"union": {Include: []model.Include{{ValueSet: []string{vsURL("mammals")}}, {ValueSet: []string{vsURL("listed")}}}},
		"cycle-a":     {Include: []model.Include{{ValueSet: []string{vsURL("cycle-b")}}}},
		"cycle-b":     {Include: []model.Include{{ValueSet: []string{vsURL("cycle-a")}}}},
		"not-present": {Include: []model.Include{{System: "http://example.org/empty"}}},
		"missing":     {Include: []model.Include{{System: "http://example.org/unknown"}}},
		"bad-filter":  {Include: []model.Include{{System: animals, Filter: []model.Filter{{Property: "concept", Op: "sounds-like", Value: "x"}}}}},
	}
	for name, compose := range valueSets {
		must(reg.AddValueSet(&model.ValueSet{URL: vsURL(name), Compose: compose}))
	}
	must(reg.AddValueSet(&model.ValueSet{URL: vsURL("precomputed"), Expansion: &model.Expansion{
		Contains: []model.Contains{
			{System: colors, Code: "Red", Contains: []model.Contains{{System: colors, Code: "green"}}},
			{System: colors, Code: "Red"},
		},
	}}))
	must(reg.AddValueSet(&model.ValueSet{URL: vsURL("nothing")}))

	return NewExpander(reg, filter.NewRegistry(), o, metrics), reg
}

func codesOf(vs *model.ValueSet) []string {
	var out []string
	for _, c := range vs.Expansion.Contains {
		out = append(out, c.Code)
	}
	return out
}

func TestExpander_Expand(t *testing.T) {
	e, _ := fixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		want []string
	}{
		{"all", []string{"animal", "mammal", "dog", "cat", "mammoth", "bird", "Élan"}},
		{"mammals", []string{"mammal", "dog", "cat", "mammoth"}},
		{"listed", []string{"dog", "bird"}},
		{"external", []string{"X"}},
		{"intersect", []string{"dog"}},
		{"system-and-vs", []string{"dog", "bird"}},
		{"exclude", []string{"animal", "bird", "Élan", "Red", "green"}},
		{"union", []string{"mammal", "dog", "cat", "mammoth", "bird"}},
		{"precomputed", []string{"Red", "green"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs, err := e.Expand(ctx, vsURL(tt.name), Params{})
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, codesOf(vs)); diff != "" {
				t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
			}
			if vs.Expansion.Total != len(tt.want) {
				t.Errorf("Total = %d; want %d", vs.Expansion.Total, len(tt.want))
			}
		})
	}
}

func TestExpander_ListedDisplays(t *testing.T) {
	e, _ := fixture(t)
	vs, err := e.Expand(context.Background(), vsURL("listed"), Params{})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	want := []model.Contains{
		{System: animals, Version: "1.0", Code: "dog", Display: "Dog"},
		{System: animals, Version: "1.0", Code: "bird", Display: "Birdie"},
	}
	if diff := cmp.Diff(want, vs.Expansion.Contains); diff != "" {
		t.Errorf("Contains mismatch (-want +got):\n%s", diff)
	}
}

func TestExpander_Errors(t *testing.T) {
	e, _ := fixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		want error
	}{
		{"cycle-a", ft.ErrCyclicReference},
		{"not-present", ft.ErrNotExpandable},
		{"missing", ft.ErrNotFound},
		{"nothing", ft.ErrNotExpandable},
		{"bad-filter", ft.ErrUnsupportedFilter},
		{"no-such-valueset", ft.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Expand(ctx, vsURL(tt.name), Params{}); !errors.Is(err, tt.want) {
				t.Errorf("Expand() error = %v; want %v", err, tt.want)
			}
			if e.IsExpandable(ctx, vsURL(tt.name)) {
				t.Error("IsExpandable() = true; want false")
			}
		})
	}

	if !e.IsExpandable(ctx, vsURL("all")) {
		t.Error("IsExpandable(all) = false; want true")
	}
}

func TestExpander_TooCostly(t *testing.T) {
	e, _ := fixture(t, ft.WithMaxExpansionSize(3))
	if _, err := e.Expand(context.Background(), vsURL("all"), Params{}); !errors.Is(err, ft.ErrTooCostly) {
		t.Errorf("Expand() error = %v; want ErrTooCostly", err)
	}
}

func TestExpander_Params(t *testing.T) {
	e, _ := fixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params Params
		want   []string
		total  int
	}{
		{"filter text", Params{Filter: "MAM"}, []string{"mammal", "mammoth"}, 2},
		{"filter diacritics", Params{Filter: "elan"}, []string{"Élan"}, 1},
		{"active only", Params{ActiveOnly: true}, []string{"animal", "mammal", "dog", "cat", "bird", "Élan"}, 6},
		{"not for ui", Params{ExcludeNotForUI: true}, []string{"mammal", "dog", "cat", "mammoth", "bird", "Élan"}, 6},
		{"paging", Params{Offset: 2, Count: 2}, []string{"dog", "cat"}, 7},
		{"offset past end", Params{Offset: 50}, nil, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs, err := e.Expand(ctx, vsURL("all"), tt.params)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, codesOf(vs)); diff != "" {
				t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
			}
			if vs.Expansion.Total != tt.total {
				t.Errorf("Total = %d; want %d", vs.Expansion.Total, tt.total)
			}
		})
	}
}

func TestExpander_OutputMetadata(t *testing.T) {
	e, _ := fixture(t)
	vs, err := e.Expand(context.Background(), vsURL("exclude"), Params{
		Count: 1, IncludeDesignations: true, DisplayLanguage: "de",
	})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	if !strings.HasPrefix(vs.Expansion.Identifier, "urn:uuid:") {
		t.Errorf("Identifier = %q", vs.Expansion.Identifier)
	}
	if vs.Expansion.Timestamp == "" {
		t.Error("Timestamp not set")
	}
	if vs.URL != vsURL("exclude") || vs.Compose == nil {
		t.Error("output should be a copy of the value set")
	}

	used := map[string]bool{}
	names := map[string]bool{}
	for _, p := range vs.Expansion.Parameter {
		names[p.Name] = true
		if p.Name == "used-codesystem" {
			used[p.Text()] = true
		}
	}
	if !used[animals+"|1.0"] || !used[colors] {
		t.Errorf("used-codesystem parameters = %v", used)
	}
	for _, n := range []string{"count", "includeDesignations", "displayLanguage"} {
		if !names[n] {
			t.Errorf("parameter %s not echoed", n)
		}
	}
}

func TestExpander_DisplayLanguage(t *testing.T) {
	e, _ := fixture(t)
	vs, err := e.Expand(context.Background(), vsURL("mammals"), Params{DisplayLanguage: "de", Filter: "hund"})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(vs.Expansion.Contains) != 1 || vs.Expansion.Contains[0].Display != "Hund" {
		t.Errorf("Contains = %+v", vs.Expansion.Contains)
	}
	if vs.Expansion.Contains[0].Designation != nil {
		t.Error("designations should be omitted unless requested")
	}
}

func TestExpander_Caching(t *testing.T) {
	e, reg := fixture(t)
	ctx := context.Background()

	first, _ := e.Expand(ctx, vsURL("mammals"), Params{})
	second, _ := e.Expand(ctx, vsURL("mammals"), Params{})
	if first.Expansion.Identifier == second.Expansion.Identifier {
		t.Error("each expansion gets a fresh identifier")
	}
	if e.metrics.CacheHits(ft.CacheExpansion) == 0 {
		t.Error("second expansion should hit the expansion cache")
	}

	// A registry change is visible to the next expansion.
	_ = reg.AddCodeSystem(&model.CodeSystem{
		URL: animals, Version: "1.0", Content: model.ContentComplete,
		Concept: []model.Concept{{Code: "mammal", Concept: []model.Concept{{Code: "whale"}}}},
	})
	third, err := e.Expand(ctx, vsURL("mammals"), Params{})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if diff := cmp.Diff([]string{"mammal", "whale"}, codesOf(third)); diff != "" {
		t.Errorf("Expand() after change mismatch (-want +got):\n%s", diff)
	}
}

func TestExpander_ExpandValueSet(t *testing.T) {
	e, _ := fixture(t)
	inline := &model.ValueSet{Compose: &model.Compose{
		Include: []model.Include{{ValueSet: []string{vsURL("mammals")}}},
		Exclude: []model.Include{{System: animals, Concept: []model.IncludeConcept{{Code: "cat"}}}},
	}}
	vs, err := e.ExpandValueSet(context.Background(), inline, Params{})
	if err != nil {
		t.Fatalf("ExpandValueSet() error = %v", err)
	}
	if diff := cmp.Diff([]string{"mammal", "dog", "mammoth"}, codesOf(vs)); diff != "" {
		t.Errorf("ExpandValueSet() mismatch (-want +got):\n%s", diff)
	}

	if _, err := e.ExpandValueSet(context.Background(), nil, Params{}); !errors.Is(err, ft.ErrInvalidResource) {
		t.Errorf("ExpandValueSet(nil) error = %v", err)
	}
}

func TestExpander_Concurrent(t *testing.T) {
	e, _ := fixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := []string{"all", "mammals", "union", "intersect"}[i%4]
			if _, err := e.Expand(ctx, vsURL(name), Params{}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Expand() error = %v", err)
	}
}

func TestExpander_Cancelled(t *testing.T) {
	e, _ := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Expand(ctx, vsURL("all"), Params{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expand() error = %v; want context.Canceled", err)
	}
}

func TestExpander_ListedWithFilterDoesNotLeak(t *testing.T) {
	narrow := &model.ValueSet{URL: vsURL("dog-only"), Compose: &model.Compose{Include: []model.Include{{
		System:  animals,
		Filter:  []model.Filter{{Property: "concept", Op: model.OpIsA, Value: "mammal"}},
		Concept: []model.IncludeConcept{{Code: "dog", Display: "Doggy"}},
	}}}}
	wide := []string{"mammal", "dog", "cat", "mammoth"}

	for _, order := range [][]string{{"dog-only", "mammals"}, {"mammals", "dog-only"}} {
		t.Run(strings.Join(order, "-then-"), func(t *testing.T) {
			e, reg := fixture(t)
			if err := reg.AddValueSet(narrow); err != nil {
				t.Fatal(err)
			}
			for _, name := range order {
				vs, err := e.Expand(context.Background(), vsURL(name), Params{})
				if err != nil {
					t.Fatalf("Expand(%s) error = %v", name, err)
				}
				if name == "mammals" {
					if diff := cmp.Diff(wide, codesOf(vs)); diff != "" {
						t.Errorf("Expand(mammals) mismatch (-want +got):\n%s", diff)
					}
					continue
				}
				want := []model.Contains{{System: animals, Version: "1.0", Code: "dog", Display: "Doggy"}}
				if diff := cmp.Diff(want, vs.Expansion.Contains); diff != "" {
					t.Errorf("Expand(dog-only) mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestExpander_CancelledWaiterLeavesFlight(t *testing.T) {
	e, reg := fixture(t)
	started, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	e.filters.Register("slow", func(_ *codesystem.Index, _ model.Filter) (filter.Predicate, error) {
		once.Do(func() { close(started) })
		<-release
		return filter.PredicateFunc(func(*codesystem.Entry) bool { return true }), nil
	})
	if err := reg.AddValueSet(&model.ValueSet{URL: vsURL("slow"), Compose: &model.Compose{Include: []model.Include{{
		System: animals, Filter: []model.Filter{{Property: "concept", Op: "slow", Value: "x"}},
	}}}}); err != nil {
		t.Fatal(err)
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.Expand(first, vsURL("slow"), Params{})
		firstErr <- err
	}()
	<-started

	second := make(chan *model.ValueSet, 1)
	secondErr := make(chan error, 1)
	go func() {
		vs, err := e.Expand(context.Background(), vsURL("slow"), Params{})
		second <- vs
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Expand() error = %v; want context.Canceled", err)
	}
	close(release)

	vs := <-second
	if err := <-secondErr; err != nil {
		t.Fatalf("live Expand() error = %v", err)
	}
	if vs.Expansion.Total != 7 {
		t.Errorf("Total = %d; want 7", vs.Expansion.Total)
	}
}
