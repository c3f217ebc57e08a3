package binding

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/valueset"
)

const observation = `{
  "resourceType": "Observation",
  "status": "final",
  "code": {
    "coding": [
      {"system": "http://loinc.org", "code": "8867-4", "display": "Heart rate"},
      {"system": "http://example.org/local", "code": "HR"}
    ]
  },
  "interpretation": [
    {"coding": [{"system": "http://example.org/interp", "code": "N"}]}
  ],
  "valueQuantity": {"value": 72, "unit": "/min"}
}`

// members validates against a fixed set of system|code pairs.
type members struct {
	codes map[string]bool
	calls int
	err   error
}

func (m *members) ValidateCode(_ context.Context, req valueset.ValidateRequest) (*valueset.ValidateResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	ok := m.codes[req.System+"|"+req.Code]
	return &valueset.ValidateResult{Result: ok, System: req.System, Code: req.Code}, nil
}

func newChecker(v CodeValidator) *Checker {
	return NewChecker(v, ft.Apply(ft.WithLogger(logger.New(io.Discard, logger.LevelNone))))
}

func TestChecker_Codings(t *testing.T) {
	c := newChecker(&members{})

	tests := []struct {
		path string
		want []model.Coding
	}{
		{"Observation.code", []model.Coding{
			{System: "http://loinc.org", Code: "8867-4"},
			{System: "http://example.org/local", Code: "HR"},
		}},
		{"Observation.code.coding", []model.Coding{
			{System: "http://loinc.org", Code: "8867-4"},
			{System: "http://example.org/local", Code: "HR"},
		}},
		{"Observation.interpretation", []model.Coding{{System: "http://example.org/interp", Code: "N"}}},
		{"Observation.bodySite", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := c.Codings([]byte(observation), tt.path)
			if err != nil {
				t.Fatalf("Codings() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Codings() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChecker_Check(t *testing.T) {
	ctx := context.Background()
	v := &members{codes: map[string]bool{"http://loinc.org|8867-4": true}}
	c := newChecker(v)

	res, err := c.Check(ctx, []byte(observation), "Observation.code", "http://example.org/vs/vitals")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.Valid {
		t.Error("Valid = false; one coding is a member")
	}
	if len(res.Codings) != 2 || v.calls != 2 {
		t.Errorf("validated %d codings with %d calls; want 2", len(res.Codings), v.calls)
	}
	if len(res.Issues) != 0 {
		t.Errorf("Issues = %+v", res.Issues)
	}

	res, err = c.Check(ctx, []byte(observation), "Observation.interpretation", "http://example.org/vs/vitals")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.Valid || !ft.HasErrors(res.Issues) {
		t.Errorf("non-member binding = %+v", res)
	}

	res, err = c.Check(ctx, []byte(observation), "Observation.bodySite", "http://example.org/vs/vitals")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.Valid || len(res.Issues) != 1 || res.Issues[0].Severity != ft.SeverityWarning {
		t.Errorf("missing element = %+v", res)
	}
}

func TestChecker_ExpressionCache(t *testing.T) {
	c := newChecker(&members{})
	for i := 0; i < 3; i++ {
		if _, err := c.Codings([]byte(observation), "Observation.code"); err != nil {
			t.Fatal(err)
		}
	}
	if c.CompiledExpressions() != 1 {
		t.Errorf("CompiledExpressions() = %d; want 1", c.CompiledExpressions())
	}
}

func TestChecker_Errors(t *testing.T) {
	ctx := context.Background()

	c := newChecker(&members{err: ft.ErrNotFound})
	if _, err := c.Check(ctx, []byte(observation), "Observation.code", "http://example.org/vs/none"); !errors.Is(err, ft.ErrNotFound) {
		t.Errorf("Check(unknown vs) error = %v; want ErrNotFound", err)
	}

	if _, err := c.Check(ctx, []byte(observation), "Observation.code.where(", "http://example.org/vs"); err == nil {
		t.Error("Check(bad path) error = nil")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.Check(cancelled, []byte(observation), "Observation.code", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Check(cancelled) error = %v; want context.Canceled", err)
	}
}
