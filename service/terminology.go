// Package service defines the small interfaces through which terminology
// operations are consumed, plus chaining and caching wrappers.
//
// Consumers that only need part of the functionality, such as a validator
// that checks codes against bindings, depend on the narrowest interface.
package service

import (
	"context"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/conceptmap"
	"github.com/gofhir/terminology/model"
)

// ValidateCodeResult holds the result of code validation.
type ValidateCodeResult struct {
	Valid   bool
	Message string
	System  string
	Version string
	Code    string
	Display string
	Issues  []ft.Issue
}

// Property is a concept property rendered as text.
type Property struct {
	Code  string
	Value string
}

// CodeInfo holds information about a code lookup result.
type CodeInfo struct {
	System      string
	Version     string
	Name        string
	Code        string
	Display     string
	Definition  string
	Abstract    bool
	Inactive    bool
	Parents     []string
	Children    []string
	Designation []model.Designation
	Properties  []Property
}

// --- Small Interfaces ---

// CodeValidator validates codes against ValueSets.
type CodeValidator interface {
	ValidateCode(ctx context.Context, system, code, valueSetURL string) (*ValidateCodeResult, error)
}

// CodingValidator validates Coding values against ValueSets.
type CodingValidator interface {
	ValidateCoding(ctx context.Context, coding model.Coding, valueSetURL string) (*ValidateCodeResult, error)
}

// CodeableConceptValidator validates CodeableConcept values against ValueSets.
type CodeableConceptValidator interface {
	ValidateCodeableConcept(ctx context.Context, concept model.CodeableConcept, valueSetURL string) (*ValidateCodeResult, error)
}

// ValueSetExpander expands ValueSets.
type ValueSetExpander interface {
	ExpandValueSet(ctx context.Context, url string) (*model.ValueSet, error)
}

// CodeLookup looks up code information.
type CodeLookup interface {
	LookupCode(ctx context.Context, system, code string) (*CodeInfo, error)
}

// Subsumer tests subsumption between two codes of one system.
type Subsumer interface {
	Subsumes(ctx context.Context, system, codeA, codeB string) (codesystem.Outcome, error)
}

// Translator translates codes through ConceptMaps.
type Translator interface {
	Translate(ctx context.Context, req conceptmap.Request) (*conceptmap.Result, error)
}

// TerminologyService combines the common terminology operations.
type TerminologyService interface {
	CodeValidator
	ValueSetExpander
}

// FullTerminologyService includes all terminology functionality.
type FullTerminologyService interface {
	CodeValidator
	CodingValidator
	CodeableConceptValidator
	ValueSetExpander
	CodeLookup
	Subsumer
	Translator
}

// ValidationCache caches validation results.
type ValidationCache interface {
	Get(key string) (*ValidateCodeResult, bool)
	Set(key string, result *ValidateCodeResult)
}

// ExpansionCache caches expansions.
type ExpansionCache interface {
	Get(url string) (*model.ValueSet, bool)
	Set(url string, expansion *model.ValueSet)
}

// ValidationKey builds the cache key of a validation request.
func ValidationKey(system, code, valueSetURL string) string {
	return system + "|" + code + "|" + valueSetURL
}
