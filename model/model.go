// Package model defines the FHIR terminology resources the engine works on.
//
// The structs mirror the FHIR JSON representation so that CodeSystem,
// ValueSet and ConceptMap resources from packages and bundles can be decoded
// directly.
package model

import (
	"strconv"
	"strings"
)

// Resource type names.
const (
	ResourceCodeSystem = "CodeSystem"
	ResourceValueSet   = "ValueSet"
	ResourceConceptMap = "ConceptMap"
	ResourceBundle     = "Bundle"
)

// Canonical is a canonical URL with an optional business version.
type Canonical struct {
	URL     string
	Version string
}

// ParseCanonical splits "url|version" into its parts.
func ParseCanonical(s string) Canonical {
	if idx := strings.LastIndex(s, "|"); idx != -1 {
		return Canonical{URL: s[:idx], Version: s[idx+1:]}
	}
	return Canonical{URL: s}
}

// String renders the canonical as "url" or "url|version".
func (c Canonical) String() string {
	if c.Version == "" {
		return c.URL
	}
	return c.URL + "|" + c.Version
}

// PublicationStatus is the lifecycle status of a terminology resource.
type PublicationStatus string

// Publication statuses.
const (
	StatusDraft   PublicationStatus = "draft"
	StatusActive  PublicationStatus = "active"
	StatusRetired PublicationStatus = "retired"
	StatusUnknown PublicationStatus = "unknown"
)

// Coding is a reference to a code defined by a terminology system.
type Coding struct {
	System       string `json:"system,omitempty"`
	Version      string `json:"version,omitempty"`
	Code         string `json:"code,omitempty"`
	Display      string `json:"display,omitempty"`
	UserSelected bool   `json:"userSelected,omitempty"`
}

// String renders the coding as system|code.
func (c Coding) String() string {
	if c.System == "" {
		return c.Code
	}
	return c.System + "|" + c.Code
}

// CodeableConcept is a set of codings plus text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Designation is an additional representation of a concept.
type Designation struct {
	Language string  `json:"language,omitempty"`
	Use      *Coding `json:"use,omitempty"`
	Value    string  `json:"value"`
}

// formatFloat renders a decimal without trailing zeros.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
