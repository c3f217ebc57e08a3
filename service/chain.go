package service

import (
	"context"
	"errors"
	"fmt"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
)

// --- Terminology Chain ---

// TerminologyChain implements TerminologyService by trying multiple services
// in order. A service that answers ErrNotFound or ErrNotSupported passes the
// request on to the next one; any other error stops the chain.
type TerminologyChain struct {
	services []TerminologyService
}

// NewTerminologyChain creates a new terminology chain.
func NewTerminologyChain(services ...TerminologyService) *TerminologyChain {
	return &TerminologyChain{services: services}
}

// Add appends a service to the chain.
func (c *TerminologyChain) Add(service TerminologyService) {
	c.services = append(c.services, service)
}

// Len returns the number of services in the chain.
func (c *TerminologyChain) Len() int {
	return len(c.services)
}

func fallThrough(err error) bool {
	return errors.Is(err, ft.ErrNotFound) || errors.Is(err, ft.ErrNotSupported)
}

// ValidateCode tries each service until one answers.
func (c *TerminologyChain) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*ValidateCodeResult, error) {
	for _, svc := range c.services {
		result, err := svc.ValidateCode(ctx, system, code, valueSetURL)
		if err == nil {
			return result, nil
		}
		if !fallThrough(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("validate %s|%s in %s: %w", system, code, valueSetURL, ft.ErrNotSupported)
}

// ExpandValueSet tries each service until one answers.
func (c *TerminologyChain) ExpandValueSet(ctx context.Context, url string) (*model.ValueSet, error) {
	for _, svc := range c.services {
		vs, err := svc.ExpandValueSet(ctx, url)
		if err == nil {
			return vs, nil
		}
		if !fallThrough(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("expand %s: %w", url, ft.ErrNotSupported)
}

// LookupCode asks the services that support lookups, in order.
func (c *TerminologyChain) LookupCode(ctx context.Context, system, code string) (*CodeInfo, error) {
	for _, svc := range c.services {
		lookup, ok := svc.(CodeLookup)
		if !ok {
			continue
		}
		info, err := lookup.LookupCode(ctx, system, code)
		if err == nil {
			return info, nil
		}
		if !fallThrough(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("lookup %s|%s: %w", system, code, ft.ErrNotFound)
}

// --- Caching Wrapper ---

// CachingTerminologyService wraps a TerminologyService with caching. Either
// cache may be nil. Only successful answers are cached.
type CachingTerminologyService struct {
	service         TerminologyService
	validationCache ValidationCache
	expansionCache  ExpansionCache
	metrics         *ft.Metrics
}

// NewCachingTerminologyService creates a caching wrapper.
func NewCachingTerminologyService(service TerminologyService, validationCache ValidationCache, expansionCache ExpansionCache) *CachingTerminologyService {
	return &CachingTerminologyService{
		service:         service,
		validationCache: validationCache,
		expansionCache:  expansionCache,
	}
}

// WithMetrics records cache hits and misses at the validation level.
func (c *CachingTerminologyService) WithMetrics(m *ft.Metrics) *CachingTerminologyService {
	c.metrics = m
	return c
}

func (c *CachingTerminologyService) hit(ok bool) {
	if c.metrics == nil {
		return
	}
	if ok {
		c.metrics.RecordCacheHit(ft.CacheValidation)
	} else {
		c.metrics.RecordCacheMiss(ft.CacheValidation)
	}
}

// ValidateCode checks cache first, then calls the wrapped service.
func (c *CachingTerminologyService) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*ValidateCodeResult, error) {
	key := ValidationKey(system, code, valueSetURL)
	if c.validationCache != nil {
		result, ok := c.validationCache.Get(key)
		c.hit(ok)
		if ok {
			return result, nil
		}
	}

	result, err := c.service.ValidateCode(ctx, system, code, valueSetURL)
	if err != nil {
		return nil, err
	}

	if c.validationCache != nil {
		c.validationCache.Set(key, result)
	}
	return result, nil
}

// ExpandValueSet checks cache first, then calls the wrapped service.
func (c *CachingTerminologyService) ExpandValueSet(ctx context.Context, url string) (*model.ValueSet, error) {
	if c.expansionCache != nil {
		if expansion, ok := c.expansionCache.Get(url); ok {
			return expansion, nil
		}
	}

	expansion, err := c.service.ExpandValueSet(ctx, url)
	if err != nil {
		return nil, err
	}

	if c.expansionCache != nil {
		c.expansionCache.Set(url, expansion)
	}
	return expansion, nil
}

// --- Null Implementation ---

// NullTerminologyService is a no-op implementation.
type NullTerminologyService struct{}

// ValidateCode always returns valid (permissive default).
func (NullTerminologyService) ValidateCode(_ context.Context, system, code, _ string) (*ValidateCodeResult, error) {
	return &ValidateCodeResult{Valid: true, System: system, Code: code}, nil
}

// ExpandValueSet always returns ErrNotSupported.
func (NullTerminologyService) ExpandValueSet(_ context.Context, url string) (*model.ValueSet, error) {
	return nil, fmt.Errorf("expand %s: %w", url, ft.ErrNotSupported)
}

var (
	_ TerminologyService = (*TerminologyChain)(nil)
	_ CodeLookup         = (*TerminologyChain)(nil)
	_ TerminologyService = (*CachingTerminologyService)(nil)
	_ TerminologyService = NullTerminologyService{}
)
