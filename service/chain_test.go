package service

import (
	"context"
	"errors"
	"testing"
	"time"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/cache"
	"github.com/gofhir/terminology/model"
)

// mockTerminology is a test implementation of TerminologyService.
type mockTerminology struct {
	results    map[string]*ValidateCodeResult
	expansions map[string]*model.ValueSet
	err        error
	calls      int
}

func (m *mockTerminology) ValidateCode(_ context.Context, system, code, valueSetURL string) (*ValidateCodeResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if result, ok := m.results[ValidationKey(system, code, valueSetURL)]; ok {
		return result, nil
	}
	return nil, ft.ErrNotSupported
}

func (m *mockTerminology) ExpandValueSet(_ context.Context, url string) (*model.ValueSet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if vs, ok := m.expansions[url]; ok {
		return vs, nil
	}
	return nil, ft.ErrNotFound
}

// mockLookup adds code lookups to mockTerminology.
type mockLookup struct {
	mockTerminology
	info map[string]*CodeInfo
}

func (m *mockLookup) LookupCode(_ context.Context, system, code string) (*CodeInfo, error) {
	if info, ok := m.info[system+"|"+code]; ok {
		return info, nil
	}
	return nil, ft.ErrNotFound
}

func TestTerminologyChain(t *testing.T) {
	first := &mockTerminology{
		results: map[string]*ValidateCodeResult{
			"sys1|code1|vs1": {Valid: true, Display: "Display1"},
		},
	}
	second := &mockTerminology{
		results: map[string]*ValidateCodeResult{
			"sys2|code2|vs2": {Valid: true, Display: "Display2"},
		},
		expansions: map[string]*model.ValueSet{"vs2": {URL: "vs2"}},
	}

	chain := NewTerminologyChain(first, second)
	ctx := context.Background()

	result, err := chain.ValidateCode(ctx, "sys1", "code1", "vs1")
	if err != nil {
		t.Fatalf("ValidateCode failed: %v", err)
	}
	if result.Display != "Display1" {
		t.Errorf("Display = %q; want %q", result.Display, "Display1")
	}

	result, err = chain.ValidateCode(ctx, "sys2", "code2", "vs2")
	if err != nil {
		t.Fatalf("ValidateCode failed: %v", err)
	}
	if result.Display != "Display2" {
		t.Errorf("Display = %q; want %q", result.Display, "Display2")
	}

	if _, err = chain.ValidateCode(ctx, "sys", "code", "vs"); !errors.Is(err, ft.ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}

	vs, err := chain.ExpandValueSet(ctx, "vs2")
	if err != nil || vs.URL != "vs2" {
		t.Errorf("ExpandValueSet = %v, %v", vs, err)
	}
	if _, err := chain.ExpandValueSet(ctx, "vs9"); !errors.Is(err, ft.ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}
}

func TestTerminologyChain_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	failing := &mockTerminology{err: boom}
	never := &mockTerminology{}

	chain := NewTerminologyChain(failing)
	chain.Add(never)
	if chain.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", chain.Len())
	}

	if _, err := chain.ValidateCode(context.Background(), "s", "c", "v"); !errors.Is(err, boom) {
		t.Errorf("error = %v; want boom", err)
	}
	if never.calls != 0 {
		t.Error("chain continued after a hard error")
	}
}

func TestTerminologyChain_LookupCode(t *testing.T) {
	plain := &mockTerminology{}
	lookup := &mockLookup{info: map[string]*CodeInfo{"sys|a": {Code: "a", Display: "A"}}}
	chain := NewTerminologyChain(plain, lookup)

	info, err := chain.LookupCode(context.Background(), "sys", "a")
	if err != nil || info.Display != "A" {
		t.Errorf("LookupCode = %+v, %v", info, err)
	}
	if _, err := chain.LookupCode(context.Background(), "sys", "b"); !errors.Is(err, ft.ErrNotFound) {
		t.Errorf("LookupCode(unknown) error = %v; want ErrNotFound", err)
	}
}

func TestCachingTerminologyService(t *testing.T) {
	inner := &mockTerminology{
		results: map[string]*ValidateCodeResult{
			"sys|code|vs": {Valid: true, Display: "Test"},
		},
		expansions: map[string]*model.ValueSet{"vs": {URL: "vs"}},
	}
	validations := cache.New[string, *ValidateCodeResult](10)
	expansions := cache.New[string, *model.ValueSet](10)
	metrics := ft.NewMetrics()

	svc := NewCachingTerminologyService(inner, validations, expansions).WithMetrics(metrics)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := svc.ValidateCode(ctx, "sys", "code", "vs")
		if err != nil {
			t.Fatalf("ValidateCode failed: %v", err)
		}
		if !result.Valid {
			t.Error("Expected valid result")
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d; want 1", inner.calls)
	}
	if metrics.CacheHits(ft.CacheValidation) != 2 || metrics.CacheMisses(ft.CacheValidation) != 1 {
		t.Errorf("hits/misses = %d/%d; want 2/1", metrics.CacheHits(ft.CacheValidation), metrics.CacheMisses(ft.CacheValidation))
	}

	cached, ok := validations.Get(ValidationKey("sys", "code", "vs"))
	if !ok || cached.Display != "Test" {
		t.Errorf("cached = %+v, %v", cached, ok)
	}

	if _, err := svc.ValidateCode(ctx, "sys", "other", "vs"); !errors.Is(err, ft.ErrNotSupported) {
		t.Errorf("error = %v; want ErrNotSupported", err)
	}
	if validations.Len() != 1 {
		t.Error("errors must not be cached")
	}

	_, _ = svc.ExpandValueSet(ctx, "vs")
	_, _ = svc.ExpandValueSet(ctx, "vs")
	if inner.calls != 3 {
		t.Errorf("inner calls = %d; want 3", inner.calls)
	}
}

func TestCachingTerminologyService_TTL(t *testing.T) {
	inner := &mockTerminology{results: map[string]*ValidateCodeResult{"s|c|v": {Valid: true}}}
	validations := cache.NewWithTTL[string, *ValidateCodeResult](10, time.Minute)
	now := time.Now()
	validations.SetClock(func() time.Time { return now })

	svc := NewCachingTerminologyService(inner, validations, nil)
	ctx := context.Background()

	_, _ = svc.ValidateCode(ctx, "s", "c", "v")
	now = now.Add(2 * time.Minute)
	_, _ = svc.ValidateCode(ctx, "s", "c", "v")

	if inner.calls != 2 {
		t.Errorf("inner calls = %d; want 2 after expiry", inner.calls)
	}
}

func TestNullTerminologyService(t *testing.T) {
	var svc NullTerminologyService
	result, err := svc.ValidateCode(context.Background(), "s", "c", "v")
	if err != nil || !result.Valid {
		t.Errorf("ValidateCode = %+v, %v", result, err)
	}
	if _, err := svc.ExpandValueSet(context.Background(), "v"); !errors.Is(err, ft.ErrNotSupported) {
		t.Errorf("ExpandValueSet error = %v; want ErrNotSupported", err)
	}
}
