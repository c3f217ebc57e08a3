// Package engine provides the main FHIR terminology engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/binding"
	"github.com/gofhir/terminology/builtin"
	"github.com/gofhir/terminology/cache"
	"github.com/gofhir/terminology/closure"
	"github.com/gofhir/terminology/codesystem"
	"github.com/gofhir/terminology/conceptmap"
	"github.com/gofhir/terminology/filter"
	"github.com/gofhir/terminology/loader"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/normalize"
	"github.com/gofhir/terminology/packages"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/registry"
	"github.com/gofhir/terminology/service"
	"github.com/gofhir/terminology/valueset"
	"github.com/gofhir/terminology/worker"
)

// Engine is the main terminology engine. It coordinates the registry, the
// expansion engine, translation, closure tables and binding checks.
// It is safe for concurrent use.
type Engine struct {
	// Configuration
	options *ft.Options
	log     *logger.Logger

	// Content
	reg    *registry.Registry
	loader *loader.Loader

	// Operations
	filters    *filter.Registry
	expander   *valueset.Expander
	translator *conceptmap.Translator
	closures   *closure.Manager
	checker    *binding.Checker

	// Validation results keyed by request and registry generation
	validations *cache.Cache[string, *service.ValidateCodeResult]

	// Package client, created on first use
	clientMu sync.Mutex
	client   *packages.Client

	metrics *ft.Metrics
}

// New creates a new Engine with the given options. The registry starts
// empty; load content with Loader, LoadPackage or LoadBuiltins.
func New(opts ...ft.Option) (*Engine, error) {
	options := ft.Apply(opts...)
	if options.Logger == nil {
		options.Logger = logger.Default()
	}

	e := &Engine{
		options: options,
		log:     options.Logger.With("engine"),
		metrics: ft.NewMetrics(),
		filters: filter.NewRegistry(),
	}
	e.reg = registry.New(options, e.metrics)
	e.loader = loader.New(e.reg, options)
	e.expander = valueset.NewExpander(e.reg, e.filters, options, e.metrics)
	e.translator = conceptmap.NewTranslator(e.reg, options, e.metrics)
	e.closures = closure.NewManager(e.reg, options, e.metrics)
	e.checker = binding.NewChecker(e.expander, options)
	e.validations = cache.NewWithTTL[string, *service.ValidateCodeResult](options.ValidationCacheSize, options.CacheTTL)

	return e, nil
}

// Registry returns the resource registry.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Loader returns a loader that fills the engine's registry.
func (e *Engine) Loader() *loader.Loader {
	return e.loader
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *ft.Metrics {
	return e.metrics
}

// Options returns the engine's options.
func (e *Engine) Options() *ft.Options {
	return e.options
}

// RegisterFilter adds or replaces a ValueSet filter operator.
func (e *Engine) RegisterFilter(op model.FilterOperator, factory filter.Factory) {
	e.filters.Register(op, factory)
}

// LoadBuiltins registers the built-in code systems and value sets.
func (e *Engine) LoadBuiltins() (int, error) {
	n, err := builtin.Register(e.reg)
	if err != nil {
		return n, fmt.Errorf("failed to register built-in terminology: %w", err)
	}
	e.log.Debug("registered %d built-in resources", n)
	return n, nil
}

// SetPackageClient replaces the client used by LoadPackage.
func (e *Engine) SetPackageClient(c *packages.Client) {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()
	e.client = c
}

func (e *Engine) packageClient() *packages.Client {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()
	if e.client == nil {
		e.client = packages.NewClient(packages.WithLogger(e.options.Logger))
	}
	return e.client
}

// LoadPackage fetches a FHIR package ("name#version") and loads its
// terminology resources.
func (e *Engine) LoadPackage(ctx context.Context, ref string) (*loader.LoadStats, error) {
	return e.loader.LoadPackage(ctx, e.packageClient(), packages.ParseRef(ref))
}

// LoadCorePackage loads the HL7 terminology package for a FHIR version.
func (e *Engine) LoadCorePackage(ctx context.Context, version ft.FHIRVersion) (*loader.LoadStats, error) {
	ref, ok := packages.TerminologyRef(version)
	if !ok {
		return nil, fmt.Errorf("no terminology package for FHIR %s: %w", version, ft.ErrNotSupported)
	}
	return e.loader.LoadPackage(ctx, e.packageClient(), ref)
}

// --- Expansion ---

// Expand expands a registered ValueSet.
func (e *Engine) Expand(ctx context.Context, canonical string, params valueset.Params) (*model.ValueSet, error) {
	return e.expander.Expand(ctx, canonical, params)
}

// ExpandValueSet expands a registered ValueSet with default parameters.
func (e *Engine) ExpandValueSet(ctx context.Context, url string) (*model.ValueSet, error) {
	return e.expander.Expand(ctx, url, valueset.Params{})
}

// ExpandResource expands a ValueSet that is not registered.
func (e *Engine) ExpandResource(ctx context.Context, vs *model.ValueSet, params valueset.Params) (*model.ValueSet, error) {
	return e.expander.ExpandValueSet(ctx, vs, params)
}

// --- Validation ---

// Validate checks a code against a ValueSet with all request details.
func (e *Engine) Validate(ctx context.Context, req valueset.ValidateRequest) (*valueset.ValidateResult, error) {
	return e.expander.ValidateCode(ctx, req)
}

// ValidateCode checks a code against a registered ValueSet. Results are
// cached until the registry changes or the cache TTL expires.
func (e *Engine) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*service.ValidateCodeResult, error) {
	key := fmt.Sprintf("%s#%d", service.ValidationKey(system, code, valueSetURL), e.reg.Generation())
	if res, ok := e.validations.Get(key); ok {
		e.metrics.RecordCacheHit(ft.CacheValidation)
		return res, nil
	}
	e.metrics.RecordCacheMiss(ft.CacheValidation)

	res, err := e.ValidateCoding(ctx, model.Coding{System: system, Code: code}, valueSetURL)
	if err != nil {
		return nil, err
	}
	e.validations.Set(key, res)
	return res, nil
}

// ValidateCoding checks a Coding, including its version and display. With
// an empty valueSetURL the coding is checked against its CodeSystem alone.
func (e *Engine) ValidateCoding(ctx context.Context, coding model.Coding, valueSetURL string) (*service.ValidateCodeResult, error) {
	if valueSetURL == "" {
		return e.validateInSystem(ctx, coding)
	}
	res, err := e.expander.ValidateCode(ctx, valueset.ValidateRequest{
		ValueSet: valueSetURL,
		System:   coding.System,
		Version:  coding.Version,
		Code:     coding.Code,
		Display:  coding.Display,
	})
	if err != nil {
		return nil, err
	}
	return toServiceResult(res), nil
}

func (e *Engine) validateInSystem(ctx context.Context, coding model.Coding) (*service.ValidateCodeResult, error) {
	if coding.System == "" || coding.Code == "" {
		msg := "A system and a code are required when no value set is given"
		e.metrics.RecordValidation(false)
		return &service.ValidateCodeResult{
			System:  coding.System,
			Code:    coding.Code,
			Message: msg,
			Issues:  []ft.Issue{ft.Error(ft.IssueTypeInvalid).Diagnostics(msg).At("code").Build()},
		}, nil
	}

	idx, err := e.reg.Index(ctx, model.Canonical{URL: coding.System, Version: coding.Version}.String())
	if err != nil {
		return nil, err
	}
	entry, ok := idx.Lookup(coding.Code)
	if !ok {
		msg := fmt.Sprintf("Unknown code '%s' in the code system '%s'", coding.Code, idx.Canonical())
		e.metrics.RecordValidation(false)
		return &service.ValidateCodeResult{
			System:  coding.System,
			Version: coding.Version,
			Code:    coding.Code,
			Message: msg,
			Issues:  []ft.Issue{ft.Error(ft.IssueTypeCodeInvalid).Diagnostics(msg).At("code").Build()},
		}, nil
	}

	res := &service.ValidateCodeResult{
		Valid:   true,
		System:  idx.URL(),
		Version: idx.Version(),
		Code:    entry.Code,
		Display: entry.Display,
	}
	if idx.Inactive(entry.Code) {
		res.Issues = append(res.Issues, ft.Warning(ft.IssueTypeCodeInvalid).
			Diagnostics(fmt.Sprintf("The concept '%s' is inactive", entry.Code)).
			At("code").
			Build())
	}
	if coding.Display != "" && !displayMatches(entry, coding.Display) {
		msg := valueset.DisplayMismatch(coding.Display, entry.Code, idx.URL())
		if e.options.StrictDisplay {
			res.Valid = false
			res.Message = msg
			res.Issues = append(res.Issues, ft.Error(ft.IssueTypeInvalid).Diagnostics(msg).At("display").Build())
		} else {
			res.Issues = append(res.Issues, ft.Warning(ft.IssueTypeInvalid).Diagnostics(msg).At("display").Build())
		}
	}
	e.metrics.RecordValidation(res.Valid)
	return res, nil
}

func displayMatches(entry *codesystem.Entry, display string) bool {
	if normalize.Equal(entry.Display, display, false) {
		return true
	}
	for _, d := range entry.Designation {
		if normalize.Equal(d.Value, display, false) {
			return true
		}
	}
	return false
}

// ValidateCodeableConcept is valid when any of the concept's codings is.
// The first valid coding answers; otherwise the messages of all codings
// are combined. A coding whose code system or code cannot be found is
// reported under its own path; the error is returned only when no coding
// could be evaluated.
func (e *Engine) ValidateCodeableConcept(ctx context.Context, concept model.CodeableConcept, valueSetURL string) (*service.ValidateCodeResult, error) {
	if len(concept.Coding) == 0 {
		msg := "No coding provided"
		return &service.ValidateCodeResult{
			Message: msg,
			Issues:  []ft.Issue{ft.Error(ft.IssueTypeInvalid).Diagnostics(msg).At("coding").Build()},
		}, nil
	}

	if valueSetURL != "" {
		if _, err := e.reg.ValueSet(valueSetURL); err != nil {
			return nil, err
		}
	}

	var messages []string
	var issues []ft.Issue
	var firstErr error
	evaluated := 0
	for i, c := range concept.Coding {
		res, err := e.ValidateCoding(ctx, c, valueSetURL)
		if err != nil {
			if !errors.Is(err, ft.ErrNotFound) && !errors.Is(err, ft.ErrCodeNotFound) {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			kind := ft.IssueTypeCodeInvalid
			if errors.Is(err, ft.ErrNotFound) {
				kind = ft.IssueTypeNotFound
			}
			messages = append(messages, err.Error())
			issues = append(issues, ft.Error(kind).Diagnostics(err.Error()).At(fmt.Sprintf("coding[%d].code", i)).Build())
			continue
		}
		evaluated++
		if res.Valid {
			return res, nil
		}
		messages = append(messages, res.Message)
		for _, is := range res.Issues {
			expr := make([]string, len(is.Expression))
			for j, x := range is.Expression {
				expr[j] = fmt.Sprintf("coding[%d].%s", i, x)
			}
			is.Expression = expr
			issues = append(issues, is)
		}
	}
	if evaluated == 0 {
		return nil, firstErr
	}
	return &service.ValidateCodeResult{
		Message: strings.Join(messages, "; "),
		Issues:  issues,
	}, nil
}

// ValidateBatch validates requests in parallel on the configured number of
// workers. Results are in request order.
func (e *Engine) ValidateBatch(ctx context.Context, reqs []valueset.ValidateRequest) *worker.BatchResult[*valueset.ValidateResult] {
	return worker.Map(ctx, e.options.WorkerCount, reqs, e.expander.ValidateCode)
}

func toServiceResult(res *valueset.ValidateResult) *service.ValidateCodeResult {
	return &service.ValidateCodeResult{
		Valid:   res.Result,
		Message: res.Message,
		System:  res.System,
		Version: res.Version,
		Code:    res.Code,
		Display: res.Display,
		Issues:  res.Issues,
	}
}

// --- Code systems ---

// LookupCode returns the details of a code. system may carry a version
// ("url|version").
func (e *Engine) LookupCode(ctx context.Context, system, code string) (*service.CodeInfo, error) {
	idx, err := e.reg.Index(ctx, system)
	if err != nil {
		return nil, err
	}
	entry, ok := idx.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("code %q in %s: %w", code, idx.URL(), ft.ErrCodeNotFound)
	}

	info := &service.CodeInfo{
		System:      idx.URL(),
		Version:     idx.Version(),
		Name:        idx.Name(),
		Code:        entry.Code,
		Display:     entry.Display,
		Definition:  entry.Definition,
		Abstract:    idx.Abstract(entry.Code),
		Inactive:    idx.Inactive(entry.Code),
		Parents:     idx.Parents(entry.Code),
		Children:    idx.Children(entry.Code),
		Designation: entry.Designation,
	}
	for _, p := range entry.Property {
		info.Properties = append(info.Properties, service.Property{Code: p.Code, Value: p.Text()})
	}
	return info, nil
}

// Subsumes tests whether codeA subsumes codeB in system.
func (e *Engine) Subsumes(ctx context.Context, system, codeA, codeB string) (codesystem.Outcome, error) {
	idx, err := e.reg.Index(ctx, system)
	if err != nil {
		return "", err
	}
	e.metrics.RecordSubsumption()
	return idx.Subsumes(codeA, codeB)
}

// --- Concept maps ---

// Translate translates a code through the registered ConceptMaps.
func (e *Engine) Translate(ctx context.Context, req conceptmap.Request) (*conceptmap.Result, error) {
	return e.translator.Translate(ctx, req)
}

// --- Closure tables ---

// InitClosure creates or resets a closure table.
func (e *Engine) InitClosure(name string) error {
	return e.closures.Init(name)
}

// Closure adds concepts to a closure table and returns the new relations.
func (e *Engine) Closure(ctx context.Context, name string, codings []model.Coding) (*model.ConceptMap, error) {
	return e.closures.Add(ctx, name, codings)
}

// ReplayClosure returns the relations of a closure table added after version since.
func (e *Engine) ReplayClosure(name string, since int) (*model.ConceptMap, error) {
	return e.closures.Replay(name, since)
}

// --- Bindings ---

// CheckBinding validates the codings path selects in resource against valueSet.
func (e *Engine) CheckBinding(ctx context.Context, resource []byte, path, valueSet string) (*binding.Result, error) {
	return e.checker.Check(ctx, resource, path, valueSet)
}

// Purge drops every cached expansion and validation result.
func (e *Engine) Purge() {
	e.expander.Purge()
	e.validations.Purge()
}

// Close releases resources held by the engine.
func (e *Engine) Close() error {
	e.Purge()
	return nil
}

var _ service.FullTerminologyService = (*Engine)(nil)
