package fhirterminology

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Expansions(t *testing.T) {
	m := NewMetrics()

	if avg := m.AverageExpansionTime(); avg != 0 {
		t.Errorf("AverageExpansionTime() = %v; want 0", avg)
	}

	m.RecordExpansion(100*time.Millisecond, 10, nil)
	m.RecordExpansion(300*time.Millisecond, 20, nil)
	m.RecordExpansion(time.Second, 0, errors.New("boom"))

	if m.ExpansionsTotal() != 3 {
		t.Errorf("ExpansionsTotal() = %d; want 3", m.ExpansionsTotal())
	}
	if m.ExpansionsFailed() != 1 {
		t.Errorf("ExpansionsFailed() = %d; want 1", m.ExpansionsFailed())
	}
	if avg := m.AverageExpansionTime(); avg != 200*time.Millisecond {
		t.Errorf("AverageExpansionTime() = %v; want 200ms", avg)
	}
}

func TestMetrics_Validations(t *testing.T) {
	m := NewMetrics()

	m.RecordValidation(true)
	m.RecordValidation(true)
	m.RecordValidation(false)
	m.RecordTranslation(true)
	m.RecordSubsumption()

	if m.ValidationsTotal() != 3 {
		t.Errorf("ValidationsTotal() = %d; want 3", m.ValidationsTotal())
	}
	if m.ValidationsValid() != 2 {
		t.Errorf("ValidationsValid() = %d; want 2", m.ValidationsValid())
	}
	if m.TranslationsTotal() != 1 {
		t.Errorf("TranslationsTotal() = %d; want 1", m.TranslationsTotal())
	}
	if m.SubsumptionsTotal() != 1 {
		t.Errorf("SubsumptionsTotal() = %d; want 1", m.SubsumptionsTotal())
	}
}

func TestMetrics_CacheLevels(t *testing.T) {
	m := NewMetrics()

	if rate := m.CacheHitRate(CacheExpansion); rate != 0 {
		t.Errorf("CacheHitRate() = %f; want 0", rate)
	}

	m.RecordCacheHit(CacheExpansion)
	m.RecordCacheHit(CacheExpansion)
	m.RecordCacheHit(CacheExpansion)
	m.RecordCacheMiss(CacheExpansion)
	m.RecordCacheMiss(CacheIndex)

	if m.CacheHits(CacheExpansion) != 3 {
		t.Errorf("CacheHits(expansion) = %d; want 3", m.CacheHits(CacheExpansion))
	}
	if m.CacheMisses(CacheIndex) != 1 {
		t.Errorf("CacheMisses(index) = %d; want 1", m.CacheMisses(CacheIndex))
	}
	if rate := m.CacheHitRate(CacheExpansion); rate != 0.75 {
		t.Errorf("CacheHitRate(expansion) = %f; want 0.75", rate)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordExpansion(time.Millisecond, 1, nil)
	m.RecordValidation(true)
	m.RecordCacheHit(CacheIndex)

	m.Reset()

	s := m.Snapshot()
	if s.ExpansionsTotal != 0 || s.ValidationsTotal != 0 || len(s.CacheHits) != 0 {
		t.Errorf("Snapshot after Reset = %+v; want zero", s)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.RecordValidation(i%2 == 0)
			m.RecordCacheHit(CacheValidation)
		}(i)
	}
	wg.Wait()

	if m.ValidationsTotal() != 50 {
		t.Errorf("ValidationsTotal() = %d; want 50", m.ValidationsTotal())
	}
	if m.CacheHits(CacheValidation) != 50 {
		t.Errorf("CacheHits(validation) = %d; want 50", m.CacheHits(CacheValidation))
	}
}

func TestMetrics_Collector(t *testing.T) {
	m := NewMetrics()
	m.RecordValidation(true)
	m.RecordValidation(false)
	m.RecordCacheHit(CacheExpansion)

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(m.Collector()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	expected := `
# HELP fhirtx_validations_total Total number of validate-code operations
# TYPE fhirtx_validations_total counter
fhirtx_validations_total{result="invalid"} 1
fhirtx_validations_total{result="valid"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "fhirtx_validations_total"); err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}
}
