package loader

import (
	"encoding/json"
	"fmt"

	"github.com/gofhir/fhir/r4"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
)

// convert copies src into dst through their shared FHIR JSON representation.
func convert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

// FromR4CodeSystem converts a typed R4 CodeSystem.
func FromR4CodeSystem(cs *r4.CodeSystem) (*model.CodeSystem, error) {
	if cs == nil || cs.Url == nil {
		return nil, fmt.Errorf("code system without url: %w", ft.ErrInvalidResource)
	}
	var out model.CodeSystem
	if err := convert(cs, &out); err != nil {
		return nil, fmt.Errorf("code system %s: %w", *cs.Url, err)
	}
	out.ResourceType = model.ResourceCodeSystem
	return &out, nil
}

// FromR4ValueSet converts a typed R4 ValueSet.
func FromR4ValueSet(vs *r4.ValueSet) (*model.ValueSet, error) {
	if vs == nil || vs.Url == nil {
		return nil, fmt.Errorf("value set without url: %w", ft.ErrInvalidResource)
	}
	var out model.ValueSet
	if err := convert(vs, &out); err != nil {
		return nil, fmt.Errorf("value set %s: %w", *vs.Url, err)
	}
	out.ResourceType = model.ResourceValueSet
	return &out, nil
}

// FromR4ConceptMap converts a typed R4 ConceptMap.
func FromR4ConceptMap(cm *r4.ConceptMap) (*model.ConceptMap, error) {
	if cm == nil || cm.Url == nil {
		return nil, fmt.Errorf("concept map without url: %w", ft.ErrInvalidResource)
	}
	var out model.ConceptMap
	if err := convert(cm, &out); err != nil {
		return nil, fmt.Errorf("concept map %s: %w", *cm.Url, err)
	}
	out.ResourceType = model.ResourceConceptMap
	return &out, nil
}

// ToR4ValueSet converts a ValueSet, typically an expansion result, into the
// typed R4 model.
func ToR4ValueSet(vs *model.ValueSet) (*r4.ValueSet, error) {
	if vs == nil {
		return nil, fmt.Errorf("nil value set: %w", ft.ErrInvalidResource)
	}
	c := *vs
	c.ResourceType = model.ResourceValueSet
	var out r4.ValueSet
	if err := convert(&c, &out); err != nil {
		return nil, fmt.Errorf("value set %s: %w", vs.URL, err)
	}
	return &out, nil
}

// LoadR4CodeSystem registers a typed R4 CodeSystem.
func (l *Loader) LoadR4CodeSystem(cs *r4.CodeSystem) error {
	m, err := FromR4CodeSystem(cs)
	if err != nil {
		return err
	}
	return l.reg.AddCodeSystem(m)
}

// LoadR4ValueSet registers a typed R4 ValueSet.
func (l *Loader) LoadR4ValueSet(vs *r4.ValueSet) error {
	m, err := FromR4ValueSet(vs)
	if err != nil {
		return err
	}
	return l.reg.AddValueSet(m)
}

// LoadR4ConceptMap registers a typed R4 ConceptMap.
func (l *Loader) LoadR4ConceptMap(cm *r4.ConceptMap) error {
	m, err := FromR4ConceptMap(cm)
	if err != nil {
		return err
	}
	return l.reg.AddConceptMap(m)
}
