package fhirterminology

import (
	"runtime"
	"time"

	"github.com/gofhir/terminology/pkg/logger"
)

// Option configures the terminology engine.
type Option func(*Options)

// Options holds all configuration for the terminology engine.
type Options struct {
	// Cache sizes, one per cache level
	IndexCacheSize      int
	ConceptSetCacheSize int
	ExpansionCacheSize  int
	ValidationCacheSize int

	// CacheTTL bounds the lifetime of cached validation results. Zero keeps
	// entries until they are evicted or invalidated by a registry change.
	CacheTTL time.Duration

	// MaxExpansionSize aborts expansions with more members (0 = unlimited).
	MaxExpansionSize int

	// WorkerCount is used for batch validation and parallel loading.
	WorkerCount int

	// StrictDisplay reports a wrong display as an invalid code rather than a warning.
	StrictDisplay bool

	Logger *logger.Logger
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		IndexCacheSize:      200,
		ConceptSetCacheSize: 1000,
		ExpansionCacheSize:  500,
		ValidationCacheSize: 5000,

		CacheTTL:         0,
		MaxExpansionSize: 100000,

		WorkerCount:   runtime.NumCPU(),
		StrictDisplay: true,

		Logger: logger.Default(),
	}
}

// Apply applies the options in order on top of the defaults.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// --- Cache Options ---

// WithIndexCacheSize sets how many built CodeSystem indexes are kept.
func WithIndexCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.IndexCacheSize = size
		}
	}
}

// WithConceptSetCacheSize sets how many include-level concept selections are kept.
func WithConceptSetCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ConceptSetCacheSize = size
		}
	}
}

// WithExpansionCacheSize sets how many full ValueSet expansions are kept.
func WithExpansionCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ExpansionCacheSize = size
		}
	}
}

// WithValidationCacheSize sets how many validate-code results are kept.
func WithValidationCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ValidationCacheSize = size
		}
	}
}

// WithCacheTTL sets the time-to-live for cached validation results.
// Use 0 to disable expiry.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl >= 0 {
			o.CacheTTL = ttl
		}
	}
}

// --- Expansion Options ---

// WithMaxExpansionSize limits the number of concepts an expansion may contain.
// Use 0 for unlimited.
func WithMaxExpansionSize(size int) Option {
	return func(o *Options) {
		if size >= 0 {
			o.MaxExpansionSize = size
		}
	}
}

// WithStrictDisplay controls whether a wrong display invalidates a code.
func WithStrictDisplay(strict bool) Option {
	return func(o *Options) {
		o.StrictDisplay = strict
	}
}

// --- Performance Options ---

// WithWorkerCount sets the number of workers for batch validation.
// Defaults to runtime.NumCPU().
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithLogger sets the logger used by the engine.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
