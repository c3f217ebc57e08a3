package fhirterminology

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheLevel names one of the engine's caches in metrics.
type CacheLevel string

// Cache levels.
const (
	CacheIndex      CacheLevel = "index"
	CacheConceptSet CacheLevel = "concept_set"
	CacheExpansion  CacheLevel = "expansion"
	CacheValidation CacheLevel = "validation"
	CacheClosure    CacheLevel = "closure"
)

// Metrics tracks terminology operation metrics using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	expansionsTotal  atomic.Uint64
	expansionsFailed atomic.Uint64
	expansionTime    atomic.Uint64 // nanoseconds
	expansionMembers atomic.Uint64

	validationsTotal atomic.Uint64
	validationsValid atomic.Uint64

	translationsTotal   atomic.Uint64
	translationsMatched atomic.Uint64

	subsumptionsTotal atomic.Uint64

	// Per-level cache counters (map access protected by sync.Map)
	caches sync.Map // map[CacheLevel]*cacheMetrics
}

type cacheMetrics struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// --- Recording Methods ---

// RecordExpansion records a completed (or failed) expansion.
func (m *Metrics) RecordExpansion(duration time.Duration, members int, err error) {
	m.expansionsTotal.Add(1)
	if err != nil {
		m.expansionsFailed.Add(1)
		return
	}
	m.expansionTime.Add(uint64(duration.Nanoseconds())) //nolint:gosec // durations are positive
	m.expansionMembers.Add(uint64(members))             //nolint:gosec // member counts are positive
}

// RecordValidation records a validate-code outcome.
func (m *Metrics) RecordValidation(valid bool) {
	m.validationsTotal.Add(1)
	if valid {
		m.validationsValid.Add(1)
	}
}

// RecordTranslation records a translate outcome.
func (m *Metrics) RecordTranslation(matched bool) {
	m.translationsTotal.Add(1)
	if matched {
		m.translationsMatched.Add(1)
	}
}

// RecordSubsumption records a subsumption test.
func (m *Metrics) RecordSubsumption() {
	m.subsumptionsTotal.Add(1)
}

// RecordCacheHit records a hit at the given cache level.
func (m *Metrics) RecordCacheHit(level CacheLevel) {
	m.cache(level).hits.Add(1)
}

// RecordCacheMiss records a miss at the given cache level.
func (m *Metrics) RecordCacheMiss(level CacheLevel) {
	m.cache(level).misses.Add(1)
}

func (m *Metrics) cache(level CacheLevel) *cacheMetrics {
	if v, ok := m.caches.Load(level); ok {
		return v.(*cacheMetrics)
	}
	cm := &cacheMetrics{}
	actual, _ := m.caches.LoadOrStore(level, cm)
	return actual.(*cacheMetrics)
}

// --- Query Methods ---

// ExpansionsTotal returns the number of expansions attempted.
func (m *Metrics) ExpansionsTotal() uint64 {
	return m.expansionsTotal.Load()
}

// ExpansionsFailed returns the number of expansions that failed.
func (m *Metrics) ExpansionsFailed() uint64 {
	return m.expansionsFailed.Load()
}

// AverageExpansionTime returns the mean duration of successful expansions.
func (m *Metrics) AverageExpansionTime() time.Duration {
	ok := m.expansionsTotal.Load() - m.expansionsFailed.Load()
	if ok == 0 {
		return 0
	}
	return time.Duration(m.expansionTime.Load() / ok) //nolint:gosec // nanoseconds within int64 range
}

// ValidationsTotal returns the number of validate-code calls.
func (m *Metrics) ValidationsTotal() uint64 {
	return m.validationsTotal.Load()
}

// ValidationsValid returns the number of validate-code calls that found the code valid.
func (m *Metrics) ValidationsValid() uint64 {
	return m.validationsValid.Load()
}

// TranslationsTotal returns the number of translate calls.
func (m *Metrics) TranslationsTotal() uint64 {
	return m.translationsTotal.Load()
}

// SubsumptionsTotal returns the number of subsumption tests.
func (m *Metrics) SubsumptionsTotal() uint64 {
	return m.subsumptionsTotal.Load()
}

// CacheHits returns the hits recorded for a cache level.
func (m *Metrics) CacheHits(level CacheLevel) uint64 {
	return m.cache(level).hits.Load()
}

// CacheMisses returns the misses recorded for a cache level.
func (m *Metrics) CacheMisses(level CacheLevel) uint64 {
	return m.cache(level).misses.Load()
}

// CacheHitRate returns the hit rate (0.0 to 1.0) for a cache level.
func (m *Metrics) CacheHitRate(level CacheLevel) float64 {
	cm := m.cache(level)
	hits := cm.hits.Load()
	total := hits + cm.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	ExpansionsTotal      uint64
	ExpansionsFailed     uint64
	AverageExpansionTime time.Duration
	ValidationsTotal     uint64
	ValidationsValid     uint64
	TranslationsTotal    uint64
	TranslationsMatched  uint64
	SubsumptionsTotal    uint64
	CacheHits            map[CacheLevel]uint64
	CacheMisses          map[CacheLevel]uint64
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		ExpansionsTotal:      m.expansionsTotal.Load(),
		ExpansionsFailed:     m.expansionsFailed.Load(),
		AverageExpansionTime: m.AverageExpansionTime(),
		ValidationsTotal:     m.validationsTotal.Load(),
		ValidationsValid:     m.validationsValid.Load(),
		TranslationsTotal:    m.translationsTotal.Load(),
		TranslationsMatched:  m.translationsMatched.Load(),
		SubsumptionsTotal:    m.subsumptionsTotal.Load(),
		CacheHits:            make(map[CacheLevel]uint64),
		CacheMisses:          make(map[CacheLevel]uint64),
	}
	m.caches.Range(func(k, v any) bool {
		cm := v.(*cacheMetrics)
		s.CacheHits[k.(CacheLevel)] = cm.hits.Load()
		s.CacheMisses[k.(CacheLevel)] = cm.misses.Load()
		return true
	})
	return s
}

// Reset resets all metrics to zero.
func (m *Metrics) Reset() {
	m.expansionsTotal.Store(0)
	m.expansionsFailed.Store(0)
	m.expansionTime.Store(0)
	m.expansionMembers.Store(0)
	m.validationsTotal.Store(0)
	m.validationsValid.Store(0)
	m.translationsTotal.Store(0)
	m.translationsMatched.Store(0)
	m.subsumptionsTotal.Store(0)
	m.caches.Range(func(k, _ any) bool {
		m.caches.Delete(k)
		return true
	})
}

// --- Prometheus export ---

var (
	descExpansions = prometheus.NewDesc(
		"fhirtx_expansions_total",
		"Total number of ValueSet expansions attempted",
		[]string{"outcome"}, nil)
	descExpansionSeconds = prometheus.NewDesc(
		"fhirtx_expansion_seconds_average",
		"Average duration of successful ValueSet expansions (in seconds)",
		nil, nil)
	descValidations = prometheus.NewDesc(
		"fhirtx_validations_total",
		"Total number of validate-code operations",
		[]string{"result"}, nil)
	descTranslations = prometheus.NewDesc(
		"fhirtx_translations_total",
		"Total number of ConceptMap translations",
		[]string{"result"}, nil)
	descSubsumptions = prometheus.NewDesc(
		"fhirtx_subsumptions_total",
		"Total number of subsumption tests",
		nil, nil)
	descCache = prometheus.NewDesc(
		"fhirtx_cache_requests_total",
		"Cache lookups per cache level",
		[]string{"level", "outcome"}, nil)
)

// Collector returns a prometheus.Collector exposing the metrics.
func (m *Metrics) Collector() prometheus.Collector {
	return metricsCollector{m: m}
}

type metricsCollector struct {
	m *Metrics
}

func (c metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descExpansions
	ch <- descExpansionSeconds
	ch <- descValidations
	ch <- descTranslations
	ch <- descSubsumptions
	ch <- descCache
}

func (c metricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	ch <- prometheus.MustNewConstMetric(descExpansions, prometheus.CounterValue,
		float64(s.ExpansionsTotal-s.ExpansionsFailed), "ok")
	ch <- prometheus.MustNewConstMetric(descExpansions, prometheus.CounterValue,
		float64(s.ExpansionsFailed), "failed")
	ch <- prometheus.MustNewConstMetric(descExpansionSeconds, prometheus.GaugeValue,
		s.AverageExpansionTime.Seconds())
	ch <- prometheus.MustNewConstMetric(descValidations, prometheus.CounterValue,
		float64(s.ValidationsValid), "valid")
	ch <- prometheus.MustNewConstMetric(descValidations, prometheus.CounterValue,
		float64(s.ValidationsTotal-s.ValidationsValid), "invalid")
	ch <- prometheus.MustNewConstMetric(descTranslations, prometheus.CounterValue,
		float64(s.TranslationsMatched), "matched")
	ch <- prometheus.MustNewConstMetric(descTranslations, prometheus.CounterValue,
		float64(s.TranslationsTotal-s.TranslationsMatched), "unmatched")
	ch <- prometheus.MustNewConstMetric(descSubsumptions, prometheus.CounterValue,
		float64(s.SubsumptionsTotal))
	for level, hits := range s.CacheHits {
		ch <- prometheus.MustNewConstMetric(descCache, prometheus.CounterValue,
			float64(hits), string(level), "hit")
		ch <- prometheus.MustNewConstMetric(descCache, prometheus.CounterValue,
			float64(s.CacheMisses[level]), string(level), "miss")
	}
}
