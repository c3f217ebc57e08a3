package model

import (
	"strconv"
	"strings"
)

// FilterOperator is the operator of a ValueSet include filter.
type FilterOperator string

// Filter operators defined by FHIR.
const (
	OpEquals       FilterOperator = "="
	OpIsA          FilterOperator = "is-a"
	OpDescendentOf FilterOperator = "descendent-of"
	OpIsNotA       FilterOperator = "is-not-a"
	OpRegex        FilterOperator = "regex"
	OpIn           FilterOperator = "in"
	OpNotIn        FilterOperator = "not-in"
	OpGeneralizes  FilterOperator = "generalizes"
	OpExists       FilterOperator = "exists"
)

// ValueSet is a FHIR ValueSet resource.
type ValueSet struct {
	ResourceType string            `json:"resourceType,omitempty"`
	ID           string            `json:"id,omitempty"`
	URL          string            `json:"url,omitempty"`
	Version      string            `json:"version,omitempty"`
	Name         string            `json:"name,omitempty"`
	Title        string            `json:"title,omitempty"`
	Status       PublicationStatus `json:"status,omitempty"`
	Immutable    *bool             `json:"immutable,omitempty"`
	Compose      *Compose          `json:"compose,omitempty"`
	Expansion    *Expansion        `json:"expansion,omitempty"`
}

// Canonical returns the ValueSet's url|version.
func (vs *ValueSet) Canonical() Canonical {
	return Canonical{URL: vs.URL, Version: vs.Version}
}

// Compose is the content logical definition of a ValueSet.
type Compose struct {
	LockedDate string    `json:"lockedDate,omitempty"`
	Inactive   *bool     `json:"inactive,omitempty"`
	Include    []Include `json:"include,omitempty"`
	Exclude    []Include `json:"exclude,omitempty"`
}

// Include selects concepts from a code system and/or other value sets.
type Include struct {
	System   string           `json:"system,omitempty"`
	Version  string           `json:"version,omitempty"`
	Concept  []IncludeConcept `json:"concept,omitempty"`
	Filter   []Filter         `json:"filter,omitempty"`
	ValueSet []string         `json:"valueSet,omitempty"`
}

// IncludeConcept is a concept listed explicitly in an include.
type IncludeConcept struct {
	Code        string        `json:"code"`
	Display     string        `json:"display,omitempty"`
	Designation []Designation `json:"designation,omitempty"`
}

// Filter selects concepts by property.
type Filter struct {
	Property string         `json:"property"`
	Op       FilterOperator `json:"op"`
	Value    string         `json:"value"`
}

// String renders the filter as "property op value".
func (f Filter) String() string {
	return f.Property + " " + string(f.Op) + " " + f.Value
}

// Values splits a comma-separated filter value (used by in and not-in).
func (f Filter) Values() []string {
	parts := strings.Split(f.Value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Expansion is the result of expanding a ValueSet.
type Expansion struct {
	Identifier string               `json:"identifier,omitempty"`
	Timestamp  string               `json:"timestamp,omitempty"`
	Total      int                  `json:"total"`
	Offset     int                  `json:"offset,omitempty"`
	Parameter  []ExpansionParameter `json:"parameter,omitempty"`
	Contains   []Contains           `json:"contains,omitempty"`
}

// ExpansionParameter records a parameter that influenced the expansion.
type ExpansionParameter struct {
	Name         string  `json:"name"`
	ValueString  *string `json:"valueString,omitempty"`
	ValueBoolean *bool   `json:"valueBoolean,omitempty"`
	ValueInteger *int    `json:"valueInteger,omitempty"`
	ValueURI     *string `json:"valueUri,omitempty"`
	ValueCode    *string `json:"valueCode,omitempty"`
}

// Text renders the parameter value as a string.
func (p ExpansionParameter) Text() string {
	switch {
	case p.ValueString != nil:
		return *p.ValueString
	case p.ValueURI != nil:
		return *p.ValueURI
	case p.ValueCode != nil:
		return *p.ValueCode
	case p.ValueBoolean != nil:
		return strconv.FormatBool(*p.ValueBoolean)
	case p.ValueInteger != nil:
		return strconv.Itoa(*p.ValueInteger)
	}
	return ""
}

// Contains is a member of an expansion.
type Contains struct {
	System      string        `json:"system,omitempty"`
	Version     string        `json:"version,omitempty"`
	Code        string        `json:"code,omitempty"`
	Display     string        `json:"display,omitempty"`
	Abstract    bool          `json:"abstract,omitempty"`
	Inactive    bool          `json:"inactive,omitempty"`
	Designation []Designation `json:"designation,omitempty"`
	Contains    []Contains    `json:"contains,omitempty"`
}

// Coding returns the member as a Coding.
func (c Contains) Coding() Coding {
	return Coding{System: c.System, Version: c.Version, Code: c.Code, Display: c.Display}
}
