package model

import "strconv"

// ContentMode describes how much of a code system a CodeSystem resource carries.
type ContentMode string

// Content modes.
const (
	ContentNotPresent ContentMode = "not-present"
	ContentExample    ContentMode = "example"
	ContentFragment   ContentMode = "fragment"
	ContentComplete   ContentMode = "complete"
	ContentSupplement ContentMode = "supplement"
)

// HierarchyMeaning is the meaning of the concept hierarchy.
type HierarchyMeaning string

// Hierarchy meanings.
const (
	HierarchyGroupedBy      HierarchyMeaning = "grouped-by"
	HierarchyIsA            HierarchyMeaning = "is-a"
	HierarchyPartOf         HierarchyMeaning = "part-of"
	HierarchyClassifiedWith HierarchyMeaning = "classified-with"
)

// PropertyType is the datatype of a concept property.
type PropertyType string

// Property types.
const (
	PropertyTypeCode     PropertyType = "code"
	PropertyTypeCoding   PropertyType = "Coding"
	PropertyTypeString   PropertyType = "string"
	PropertyTypeInteger  PropertyType = "integer"
	PropertyTypeBoolean  PropertyType = "boolean"
	PropertyTypeDateTime PropertyType = "dateTime"
	PropertyTypeDecimal  PropertyType = "decimal"
)

// Well-known concept property codes.
const (
	PropertyParent        = "parent"
	PropertyChild         = "child"
	PropertySubsumedBy    = "subsumedBy"
	PropertyInactive      = "inactive"
	PropertyStatus        = "status"
	PropertyNotSelectable = "notSelectable"
	PropertyAbstract      = "abstract"
	PropertyDeprecated    = "deprecated"
)

// CodeSystem is a FHIR CodeSystem resource.
type CodeSystem struct {
	ResourceType     string               `json:"resourceType,omitempty"`
	ID               string               `json:"id,omitempty"`
	URL              string               `json:"url,omitempty"`
	Version          string               `json:"version,omitempty"`
	Name             string               `json:"name,omitempty"`
	Title            string               `json:"title,omitempty"`
	Status           PublicationStatus    `json:"status,omitempty"`
	CaseSensitive    *bool                `json:"caseSensitive,omitempty"`
	ValueSet         string               `json:"valueSet,omitempty"`
	HierarchyMeaning HierarchyMeaning     `json:"hierarchyMeaning,omitempty"`
	Compositional    bool                 `json:"compositional,omitempty"`
	VersionNeeded    bool                 `json:"versionNeeded,omitempty"`
	Content          ContentMode          `json:"content,omitempty"`
	Supplements      string               `json:"supplements,omitempty"`
	Count            int                  `json:"count,omitempty"`
	Filter           []CodeSystemFilter   `json:"filter,omitempty"`
	Property         []PropertyDefinition `json:"property,omitempty"`
	Concept          []Concept            `json:"concept,omitempty"`
}

// Canonical returns the CodeSystem's url|version.
func (cs *CodeSystem) Canonical() Canonical {
	return Canonical{URL: cs.URL, Version: cs.Version}
}

// IsCaseSensitive reports whether codes compare case-sensitively.
// An absent caseSensitive element is treated as case-insensitive.
func (cs *CodeSystem) IsCaseSensitive() bool {
	return cs.CaseSensitive != nil && *cs.CaseSensitive
}

// IsSupplement reports whether the resource is a supplement to another code system.
func (cs *CodeSystem) IsSupplement() bool {
	return cs.Content == ContentSupplement || cs.Supplements != ""
}

// CodeSystemFilter declares a filter the code system supports.
type CodeSystemFilter struct {
	Code        string           `json:"code"`
	Description string           `json:"description,omitempty"`
	Operator    []FilterOperator `json:"operator,omitempty"`
	Value       string           `json:"value,omitempty"`
}

// PropertyDefinition declares a concept property.
type PropertyDefinition struct {
	Code        string       `json:"code"`
	URI         string       `json:"uri,omitempty"`
	Description string       `json:"description,omitempty"`
	Type        PropertyType `json:"type,omitempty"`
}

// Concept is a concept definition, possibly with nested child concepts.
type Concept struct {
	Code        string            `json:"code"`
	Display     string            `json:"display,omitempty"`
	Definition  string            `json:"definition,omitempty"`
	Designation []Designation     `json:"designation,omitempty"`
	Property    []ConceptProperty `json:"property,omitempty"`
	Concept     []Concept         `json:"concept,omitempty"`
}

// ConceptProperty is a property value attached to a concept.
type ConceptProperty struct {
	Code          string   `json:"code"`
	ValueCode     *string  `json:"valueCode,omitempty"`
	ValueCoding   *Coding  `json:"valueCoding,omitempty"`
	ValueString   *string  `json:"valueString,omitempty"`
	ValueInteger  *int     `json:"valueInteger,omitempty"`
	ValueBoolean  *bool    `json:"valueBoolean,omitempty"`
	ValueDateTime *string  `json:"valueDateTime,omitempty"`
	ValueDecimal  *float64 `json:"valueDecimal,omitempty"`
}

// Text renders the property value as a string. Codings render as their code.
func (p ConceptProperty) Text() string {
	switch {
	case p.ValueCode != nil:
		return *p.ValueCode
	case p.ValueCoding != nil:
		return p.ValueCoding.Code
	case p.ValueString != nil:
		return *p.ValueString
	case p.ValueInteger != nil:
		return strconv.Itoa(*p.ValueInteger)
	case p.ValueBoolean != nil:
		return strconv.FormatBool(*p.ValueBoolean)
	case p.ValueDateTime != nil:
		return *p.ValueDateTime
	case p.ValueDecimal != nil:
		return formatFloat(*p.ValueDecimal)
	}
	return ""
}

// HasValue reports whether any value[x] is set.
func (p ConceptProperty) HasValue() bool {
	return p.ValueCode != nil || p.ValueCoding != nil || p.ValueString != nil ||
		p.ValueInteger != nil || p.ValueBoolean != nil || p.ValueDateTime != nil ||
		p.ValueDecimal != nil
}

// CodeProperty builds a code-valued property.
func CodeProperty(code, value string) ConceptProperty {
	return ConceptProperty{Code: code, ValueCode: &value}
}

// BoolProperty builds a boolean-valued property.
func BoolProperty(code string, value bool) ConceptProperty {
	return ConceptProperty{Code: code, ValueBoolean: &value}
}

// StringProperty builds a string-valued property.
func StringProperty(code, value string) ConceptProperty {
	return ConceptProperty{Code: code, ValueString: &value}
}
