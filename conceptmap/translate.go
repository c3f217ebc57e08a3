// Package conceptmap translates codes through ConceptMaps, forwards from
// source to target or in reverse.
package conceptmap

import (
	"context"
	"fmt"
	"maps"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/registry"
)

// Request describes a translation.
type Request struct {
	// ConceptMap names the map to use. When empty, every registered map
	// whose scopes fit Source and Target is consulted.
	ConceptMap string

	// Source and Target restrict candidate maps by their value set scopes.
	Source string
	Target string

	// TargetSystem keeps only translations into this code system.
	TargetSystem string

	System  string
	Version string
	Code    string

	// Reverse translates from target codes back to source codes.
	Reverse bool
}

// Match is one translation of the requested code.
type Match struct {
	Equivalence model.Equivalence
	Concept     model.Coding
	Source      string
	Comment     string
	Product     []model.OtherElement
}

// Result is the outcome of a translation.
type Result struct {
	Result  bool
	Message string
	Matches []Match
}

// Translator translates codes using the ConceptMaps in a registry.
type Translator struct {
	reg     *registry.Registry
	metrics *ft.Metrics
	log     *logger.Logger
}

// NewTranslator creates a translator over reg.
func NewTranslator(reg *registry.Registry, options *ft.Options, metrics *ft.Metrics) *Translator {
	if options == nil {
		options = ft.DefaultOptions()
	}
	if metrics == nil {
		metrics = ft.NewMetrics()
	}
	return &Translator{reg: reg, metrics: metrics, log: options.Logger.With("conceptmap")}
}

// Translate runs a translation. A code without translations is a negative
// result; errors mean a named map could not be found.
func (t *Translator) Translate(ctx context.Context, req Request) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if req.Code == "" {
		return t.record(&Result{Message: "No code provided"}), nil
	}

	cms, err := t.candidates(req)
	if err != nil {
		return nil, err
	}
	if len(cms) == 0 {
		return t.record(&Result{Message: "No ConceptMap applies to the request"}), nil
	}

	var matches []Match
	for _, cm := range cms {
		if req.Reverse {
			matches = append(matches, reverse(cm, req)...)
		} else {
			matches = append(matches, t.forward(cm, req, map[string]bool{})...)
		}
	}

	res := &Result{Matches: matches}
	for _, m := range matches {
		if m.Equivalence.IsMatch() {
			res.Result = true
			break
		}
	}
	if !res.Result {
		res.Message = fmt.Sprintf("No translations found for code '%s' in system '%s'", req.Code, req.System)
	}
	return t.record(res), nil
}

func (t *Translator) record(res *Result) *Result {
	t.metrics.RecordTranslation(res.Result)
	return res
}

func (t *Translator) candidates(req Request) ([]*model.ConceptMap, error) {
	if req.ConceptMap != "" {
		cm, err := t.reg.ConceptMap(req.ConceptMap)
		if err != nil {
			return nil, err
		}
		return []*model.ConceptMap{cm}, nil
	}

	var out []*model.ConceptMap
	for _, cm := range t.reg.ConceptMaps() {
		if req.Source != "" && !sameScope(cm.SourceScope(), req.Source) {
			continue
		}
		if req.Target != "" && !sameScope(cm.TargetScope(), req.Target) {
			continue
		}
		out = append(out, cm)
	}
	return out, nil
}

// sameScope compares value set scopes, ignoring a version on either side.
func sameScope(a, b string) bool {
	return model.ParseCanonical(a).URL == model.ParseCanonical(b).URL
}

func versionMatches(want, have string) bool {
	return want == "" || have == "" || want == have
}

// forward translates source codes. visited guards other-map recursion.
func (t *Translator) forward(cm *model.ConceptMap, req Request, visited map[string]bool) []Match {
	visited[cm.Canonical().String()] = true

	var out []Match
	for _, g := range cm.Group {
		if req.System != "" && g.Source != req.System {
			continue
		}
		if !versionMatches(req.Version, g.SourceVersion) {
			continue
		}
		if req.TargetSystem != "" && g.Target != req.TargetSystem {
			continue
		}

		found := false
		for _, el := range g.Element {
			if el.Code != req.Code {
				continue
			}
			found = true
			for _, tgt := range el.Target {
				out = append(out, Match{
					Equivalence: tgt.Equivalence,
					Concept:     model.Coding{System: g.Target, Version: g.TargetVersion, Code: tgt.Code, Display: tgt.Display},
					Source:      cm.URL,
					Comment:     tgt.Comment,
					Product:     tgt.Product,
				})
			}
		}
		if !found && g.Unmapped != nil {
			// Each group follows its own chain of maps.
			out = append(out, t.unmapped(cm, g, req, maps.Clone(visited))...)
		}
	}
	return out
}

func (t *Translator) unmapped(cm *model.ConceptMap, g model.ConceptMapGroup, req Request, visited map[string]bool) []Match {
	u := g.Unmapped
	switch u.Mode {
	case model.UnmappedProvided:
		return []Match{{
			Equivalence: model.EquivalenceEqual,
			Concept:     model.Coding{System: g.Target, Version: g.TargetVersion, Code: req.Code},
			Source:      cm.URL,
		}}
	case model.UnmappedFixed:
		return []Match{{
			Equivalence: model.EquivalenceInexact,
			Concept:     model.Coding{System: g.Target, Version: g.TargetVersion, Code: u.Code, Display: u.Display},
			Source:      cm.URL,
		}}
	case model.UnmappedOtherMap:
		other, err := t.reg.ConceptMap(u.URL)
		if err != nil {
			t.log.Warn("unmapped other-map of %s: %v", cm.URL, err)
			return nil
		}
		if visited[other.Canonical().String()] {
			t.log.Warn("unmapped other-map of %s loops back to %s", cm.URL, other.URL)
			return nil
		}
		return t.forward(other, req, visited)
	}
	return nil
}

// reverse translates target codes back to their sources.
func reverse(cm *model.ConceptMap, req Request) []Match {
	var out []Match
	for _, g := range cm.Group {
		if req.System != "" && g.Target != req.System {
			continue
		}
		if !versionMatches(req.Version, g.TargetVersion) {
			continue
		}
		if req.TargetSystem != "" && g.Source != req.TargetSystem {
			continue
		}
		for _, el := range g.Element {
			for _, tgt := range el.Target {
				if tgt.Code != req.Code {
					continue
				}
				out = append(out, Match{
					Equivalence: tgt.Equivalence.Inverse(),
					Concept:     model.Coding{System: g.Source, Version: g.SourceVersion, Code: el.Code, Display: el.Display},
					Source:      cm.URL,
					Comment:     tgt.Comment,
				})
			}
		}
	}
	return out
}
