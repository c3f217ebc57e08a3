// Package binding checks the coded values of a FHIR resource against a
// ValueSet binding. The coded element is located with a FHIRPath expression.
package binding

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofhir/fhirpath"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/cache"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/valueset"
)

// expressionCacheSize bounds the number of compiled expressions kept.
const expressionCacheSize = 256

// CodeValidator validates a single code against a ValueSet.
type CodeValidator interface {
	ValidateCode(ctx context.Context, req valueset.ValidateRequest) (*valueset.ValidateResult, error)
}

// CodingResult is the validation outcome of one coding found in the resource.
type CodingResult struct {
	Coding model.Coding
	Result *valueset.ValidateResult
}

// Result is the outcome of a binding check.
type Result struct {
	// Valid is true when at least one selected coding is in the ValueSet.
	Valid    bool
	Path     string
	ValueSet string
	Codings  []CodingResult
	Issues   []ft.Issue
}

// Checker evaluates bindings. It is safe for concurrent use.
type Checker struct {
	validator CodeValidator
	exprs     *cache.Cache[string, *fhirpath.Expression]
	log       *logger.Logger
}

// NewChecker creates a checker that validates codings with v.
func NewChecker(v CodeValidator, options *ft.Options) *Checker {
	if options == nil {
		options = ft.DefaultOptions()
	}
	return &Checker{
		validator: v,
		exprs:     cache.New[string, *fhirpath.Expression](expressionCacheSize),
		log:       options.Logger.With("binding"),
	}
}

// selector turns a path to Coding or CodeableConcept elements into an
// expression yielding "system|code" strings.
func selector(path string) string {
	return fmt.Sprintf("(%[1]s).select(system & '|' & code) | (%[1]s).coding.select(system & '|' & code)", path)
}

// Check evaluates path against resource and validates every coding it
// selects against valueSet. The path must select Coding or CodeableConcept
// elements.
func (c *Checker) Check(ctx context.Context, resource []byte, path, valueSet string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	codings, err := c.Codings(resource, path)
	if err != nil {
		return nil, err
	}

	res := &Result{Path: path, ValueSet: valueSet}
	if len(codings) == 0 {
		res.Issues = append(res.Issues, ft.Warning(ft.IssueTypeNotFound).
			Diagnostics(fmt.Sprintf("No coded value found at %s", path)).
			At(path).
			Build())
		return res, nil
	}

	for _, coding := range codings {
		vr, err := c.validator.ValidateCode(ctx, valueset.ValidateRequest{
			ValueSet: valueSet,
			System:   coding.System,
			Code:     coding.Code,
		})
		if err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", path, valueSet, err)
		}
		res.Codings = append(res.Codings, CodingResult{Coding: coding, Result: vr})
		if vr.Result {
			res.Valid = true
		}
	}

	if !res.Valid {
		res.Issues = append(res.Issues, ft.Error(ft.IssueTypeCodeInvalid).
			Diagnostics(fmt.Sprintf("None of the codings at %s are in the value set '%s'", path, valueSet)).
			At(path).
			Build())
	}
	return res, nil
}

// Codings returns the codings path selects in resource, in document order.
// Elements without a code are skipped.
func (c *Checker) Codings(resource []byte, path string) ([]model.Coding, error) {
	expr := selector(path)
	compiled, err := c.exprs.GetOrLoad(expr, func() (*fhirpath.Expression, error) {
		c.log.Debug("compiling %s", expr)
		return fhirpath.Compile(expr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile FHIRPath expression '%s': %w", path, err)
	}

	values, err := compiled.Evaluate(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate FHIRPath expression '%s': %w", path, err)
	}

	var out []model.Coding
	for _, v := range values {
		system, code, _ := strings.Cut(fmt.Sprint(v), "|")
		if code == "" {
			continue
		}
		out = append(out, model.Coding{System: system, Code: code})
	}
	return out, nil
}

// CompiledExpressions returns the number of cached compiled expressions.
func (c *Checker) CompiledExpressions() int {
	return c.exprs.Len()
}
