package fhirterminology

import (
	"bytes"
	"runtime"
	"testing"
	"time"

	"github.com/gofhir/terminology/pkg/logger"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.IndexCacheSize != 200 {
		t.Errorf("IndexCacheSize = %d; want 200", opts.IndexCacheSize)
	}
	if opts.ConceptSetCacheSize != 1000 {
		t.Errorf("ConceptSetCacheSize = %d; want 1000", opts.ConceptSetCacheSize)
	}
	if opts.ExpansionCacheSize != 500 {
		t.Errorf("ExpansionCacheSize = %d; want 500", opts.ExpansionCacheSize)
	}
	if opts.ValidationCacheSize != 5000 {
		t.Errorf("ValidationCacheSize = %d; want 5000", opts.ValidationCacheSize)
	}
	if opts.CacheTTL != 0 {
		t.Errorf("CacheTTL = %v; want 0", opts.CacheTTL)
	}
	if opts.MaxExpansionSize != 100000 {
		t.Errorf("MaxExpansionSize = %d; want 100000", opts.MaxExpansionSize)
	}
	if opts.WorkerCount != runtime.NumCPU() {
		t.Errorf("WorkerCount = %d; want %d", opts.WorkerCount, runtime.NumCPU())
	}
	if !opts.StrictDisplay {
		t.Error("StrictDisplay should be true by default")
	}
	if opts.Logger == nil {
		t.Error("Logger should default to the package logger")
	}
}

func TestApply(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, logger.LevelDebug)

	opts := Apply(
		WithIndexCacheSize(10),
		WithConceptSetCacheSize(20),
		WithExpansionCacheSize(30),
		WithValidationCacheSize(40),
		WithCacheTTL(time.Minute),
		WithMaxExpansionSize(50),
		WithWorkerCount(3),
		WithStrictDisplay(false),
		WithLogger(l),
	)

	if opts.IndexCacheSize != 10 || opts.ConceptSetCacheSize != 20 ||
		opts.ExpansionCacheSize != 30 || opts.ValidationCacheSize != 40 {
		t.Errorf("cache sizes = %d/%d/%d/%d; want 10/20/30/40",
			opts.IndexCacheSize, opts.ConceptSetCacheSize, opts.ExpansionCacheSize, opts.ValidationCacheSize)
	}
	if opts.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v; want 1m", opts.CacheTTL)
	}
	if opts.MaxExpansionSize != 50 {
		t.Errorf("MaxExpansionSize = %d; want 50", opts.MaxExpansionSize)
	}
	if opts.WorkerCount != 3 {
		t.Errorf("WorkerCount = %d; want 3", opts.WorkerCount)
	}
	if opts.StrictDisplay {
		t.Error("StrictDisplay should be false")
	}
	if opts.Logger != l {
		t.Error("Logger was not applied")
	}
}

func TestOptions_IgnoreInvalidValues(t *testing.T) {
	opts := Apply(
		WithIndexCacheSize(0),
		WithExpansionCacheSize(-1),
		WithWorkerCount(0),
		WithCacheTTL(-time.Second),
		WithMaxExpansionSize(-5),
		WithLogger(nil),
	)
	def := DefaultOptions()

	if opts.IndexCacheSize != def.IndexCacheSize {
		t.Errorf("IndexCacheSize = %d; want default %d", opts.IndexCacheSize, def.IndexCacheSize)
	}
	if opts.ExpansionCacheSize != def.ExpansionCacheSize {
		t.Errorf("ExpansionCacheSize = %d; want default %d", opts.ExpansionCacheSize, def.ExpansionCacheSize)
	}
	if opts.WorkerCount != def.WorkerCount {
		t.Errorf("WorkerCount = %d; want default %d", opts.WorkerCount, def.WorkerCount)
	}
	if opts.CacheTTL != 0 {
		t.Errorf("CacheTTL = %v; want 0", opts.CacheTTL)
	}
	if opts.MaxExpansionSize != def.MaxExpansionSize {
		t.Errorf("MaxExpansionSize = %d; want default %d", opts.MaxExpansionSize, def.MaxExpansionSize)
	}
	if opts.Logger == nil {
		t.Error("Logger should not be nil")
	}
}
