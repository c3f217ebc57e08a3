package codesystem

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
)

// testCodeSystem builds:
//
//	animal
//	├── mammal
//	│   ├── dog
//	│   └── cat
//	└── bird
//	penguin (parent=bird via property)
//	Café
func testCodeSystem() *model.CodeSystem {
	return &model.CodeSystem{
		URL:     "http://example.org/animals",
		Version: "1.0",
		Content: model.ContentComplete,
		Concept: []model.Concept{
			{
				Code: "animal", Display: "Animal",
				Property: []model.ConceptProperty{model.BoolProperty(model.PropertyNotSelectable, true)},
				Concept: []model.Concept{
					{Code: "mammal", Display: "Mammal", Concept: []model.Concept{
						{Code: "dog", Display: "Dog"},
						{Code: "cat", Display: "Cat", Property: []model.ConceptProperty{
							model.StringProperty("color", "black"),
						}},
					}},
					{Code: "bird", Display: "Bird"},
				},
			},
			{Code: "penguin", Display: "Penguin", Property: []model.ConceptProperty{
				model.CodeProperty(model.PropertyParent, "bird"),
				model.BoolProperty(model.PropertyInactive, true),
			}},
			{Code: "Café", Display: "Coffee shop", Property: []model.ConceptProperty{
				model.CodeProperty(model.PropertyStatus, "retired"),
			}},
		},
	}
}

func mustIndex(t *testing.T, cs *model.CodeSystem, sup ...*model.CodeSystem) *Index {
	t.Helper()
	idx, err := NewIndex(cs, sup...)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	return idx
}

func TestNewIndex_Errors(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if _, err := NewIndex(nil); !errors.Is(err, ft.ErrInvalidResource) {
			t.Errorf("NewIndex(nil) error = %v; want ErrInvalidResource", err)
		}
	})

	t.Run("supplement", func(t *testing.T) {
		cs := &model.CodeSystem{URL: "http://x", Content: model.ContentSupplement, Supplements: "http://y"}
		if _, err := NewIndex(cs); !errors.Is(err, ft.ErrInvalidResource) {
			t.Errorf("NewIndex(supplement) error = %v; want ErrInvalidResource", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		cs := &model.CodeSystem{URL: "http://x", Concept: []model.Concept{
			{Code: "a", Concept: []model.Concept{{Code: "a"}}},
		}}
		if _, err := NewIndex(cs); !errors.Is(err, ft.ErrDuplicateCode) {
			t.Errorf("NewIndex(dup) error = %v; want ErrDuplicateCode", err)
		}
	})
}

func TestIndex_Lookup(t *testing.T) {
	idx := mustIndex(t, testCodeSystem())

	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{"dog", "dog", true},
		{"DOG", "dog", true},
		{"cafe", "Café", true},
		{"CAFÉ", "Café", true},
		{"horse", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e, ok := idx.Lookup(tt.code)
			if ok != tt.ok {
				t.Fatalf("Lookup(%q) ok = %v; want %v", tt.code, ok, tt.ok)
			}
			if ok && e.Code != tt.want {
				t.Errorf("Lookup(%q) = %q; want %q", tt.code, e.Code, tt.want)
			}
		})
	}

	cs := testCodeSystem()
	yes := true
	cs.CaseSensitive = &yes
	strict := mustIndex(t, cs)
	if _, ok := strict.Lookup("DOG"); ok {
		t.Error("case-sensitive system must not match DOG")
	}
}

func TestIndex_Hierarchy(t *testing.T) {
	idx := mustIndex(t, testCodeSystem())

	if diff := cmp.Diff([]string{"mammal", "dog", "cat", "bird", "penguin"}, idx.Descendants("animal")); diff != "" {
		t.Errorf("Descendants(animal) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"animal", "bird"}, idx.Ancestors("penguin")); diff != "" {
		t.Errorf("Ancestors(penguin) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bird"}, idx.Parents("penguin")); diff != "" {
		t.Errorf("Parents(penguin) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"penguin"}, idx.Children("bird")); diff != "" {
		t.Errorf("Children(bird) mismatch (-want +got):\n%s", diff)
	}

	if !idx.IsA("dog", "dog") || !idx.IsA("dog", "animal") || idx.IsA("animal", "dog") {
		t.Error("IsA gave wrong answers")
	}
	if idx.DescendantOf("dog", "dog") || !idx.DescendantOf("dog", "mammal") {
		t.Error("DescendantOf gave wrong answers")
	}
}

func TestIndex_Subsumes(t *testing.T) {
	idx := mustIndex(t, testCodeSystem())

	tests := []struct {
		a, b string
		want Outcome
	}{
		{"dog", "dog", OutcomeEquivalent},
		{"animal", "dog", OutcomeSubsumes},
		{"dog", "mammal", OutcomeSubsumedBy},
		{"dog", "cat", OutcomeNotSubsumed},
		{"bird", "penguin", OutcomeSubsumes},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got, err := idx.Subsumes(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Subsumes() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Subsumes(%s, %s) = %s; want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if _, err := idx.Subsumes("dog", "horse"); !errors.Is(err, ft.ErrCodeNotFound) {
		t.Errorf("Subsumes(unknown) error = %v; want ErrCodeNotFound", err)
	}

	cs := testCodeSystem()
	cs.HierarchyMeaning = model.HierarchyPartOf
	partOf := mustIndex(t, cs)
	if _, err := partOf.Subsumes("animal", "dog"); !errors.Is(err, ft.ErrNotSupported) {
		t.Errorf("Subsumes(part-of) error = %v; want ErrNotSupported", err)
	}
}

func TestIndex_Cycle(t *testing.T) {
	cs := &model.CodeSystem{URL: "http://x", Concept: []model.Concept{
		{Code: "a", Property: []model.ConceptProperty{model.CodeProperty(model.PropertyParent, "b")}},
		{Code: "b", Property: []model.ConceptProperty{model.CodeProperty(model.PropertyParent, "a")}},
	}}
	idx := mustIndex(t, cs)

	if diff := cmp.Diff([]string{"b"}, idx.Descendants("a")); diff != "" {
		t.Errorf("Descendants(a) mismatch (-want +got):\n%s", diff)
	}
}

func TestIndex_Status(t *testing.T) {
	idx := mustIndex(t, testCodeSystem())

	if !idx.Abstract("animal") || idx.Abstract("dog") {
		t.Error("Abstract gave wrong answers")
	}
	if !idx.Inactive("penguin") || !idx.Inactive("cafe") || idx.Inactive("dog") {
		t.Error("Inactive gave wrong answers")
	}
}

func TestIndex_PropertyValues(t *testing.T) {
	idx := mustIndex(t, testCodeSystem())

	if diff := cmp.Diff([]string{"black"}, idx.PropertyValues("cat", "color")); diff != "" {
		t.Errorf("PropertyValues(cat, color) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"mammal"}, idx.PropertyValues("cat", model.PropertyParent)); diff != "" {
		t.Errorf("PropertyValues(cat, parent) mismatch (-want +got):\n%s", diff)
	}
	if idx.HasProperty("dog", "color") {
		t.Error("dog has no color")
	}
}

func TestIndex_Supplements(t *testing.T) {
	sup := &model.CodeSystem{
		URL:         "http://example.org/animals-de",
		Content:     model.ContentSupplement,
		Supplements: "http://example.org/animals",
		Concept: []model.Concept{
			{Code: "dog", Designation: []model.Designation{{Language: "de", Value: "Hund"}}},
			{Code: "unicorn", Designation: []model.Designation{{Language: "de", Value: "Einhorn"}}},
		},
	}
	idx := mustIndex(t, testCodeSystem(), sup)

	e, _ := idx.Lookup("dog")
	if len(e.Designation) != 1 || e.Designation[0].Value != "Hund" {
		t.Errorf("dog designations = %+v", e.Designation)
	}
	if _, ok := idx.Lookup("unicorn"); ok {
		t.Error("supplements must not add concepts")
	}
	if len(idx.Supplements()) != 1 {
		t.Errorf("Supplements() = %v", idx.Supplements())
	}
}
