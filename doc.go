// Package fhirterminology provides a FHIR terminology engine: ValueSet
// expansion, CodeSystem lookup and subsumption, ConceptMap translation and
// closure tables.
//
// The root package holds what every subpackage shares: functional options,
// sentinel errors, OperationOutcome-style issues and metrics. The engine
// package wires everything together.
//
// # Quick Start
//
//	import (
//	    ft "github.com/gofhir/terminology"
//	    "github.com/gofhir/terminology/engine"
//	    "github.com/gofhir/terminology/valueset"
//	)
//
//	eng, err := engine.New(
//	    ft.WithExpansionCacheSize(500),
//	    ft.WithMaxExpansionSize(10000),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := eng.Loader().LoadDirectory(ctx, "package/"); err != nil {
//	    log.Fatal(err)
//	}
//
//	vs, err := eng.Expand(ctx, "http://hl7.org/fhir/ValueSet/administrative-gender", valueset.Params{})
//	for _, c := range vs.Expansion.Contains {
//	    fmt.Println(c.System, c.Code, c.Display)
//	}
//
// # Expansion
//
// A ValueSet compose is evaluated as set algebra over concepts identified by
// (system, version, code):
//
//   - Each include contributes the listed concepts, the concepts selected by
//     its filters, or the whole code system, intersected with every ValueSet
//     it references.
//   - The expansion is the union of all includes minus the union of all excludes.
//
// # Filters
//
// Filters are pluggable. The built-in operators are =, in, not-in, is-a,
// is-not-a, descendent-of, generalizes, regex and exists. Additional
// operators can be registered with engine.RegisterFilter.
//
// # Caching
//
// Three cache levels sit in front of the algorithms: built CodeSystem
// indexes, include-level concept selections and full expansions. All keys
// carry the registry generation, so loading new content invalidates stale
// entries without explicit purging.
package fhirterminology
