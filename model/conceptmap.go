package model

// Equivalence is the relationship between a source and a target concept.
type Equivalence string

// ConceptMap equivalences (R4).
const (
	EquivalenceRelatedTo   Equivalence = "relatedto"
	EquivalenceEquivalent  Equivalence = "equivalent"
	EquivalenceEqual       Equivalence = "equal"
	EquivalenceWider       Equivalence = "wider"
	EquivalenceSubsumes    Equivalence = "subsumes"
	EquivalenceNarrower    Equivalence = "narrower"
	EquivalenceSpecializes Equivalence = "specializes"
	EquivalenceInexact     Equivalence = "inexact"
	EquivalenceUnmatched   Equivalence = "unmatched"
	EquivalenceDisjoint    Equivalence = "disjoint"
)

// IsMatch reports whether the equivalence represents a usable mapping.
func (e Equivalence) IsMatch() bool {
	return e != EquivalenceUnmatched && e != EquivalenceDisjoint
}

// Inverse returns the equivalence seen from the target side.
func (e Equivalence) Inverse() Equivalence {
	switch e {
	case EquivalenceWider:
		return EquivalenceNarrower
	case EquivalenceNarrower:
		return EquivalenceWider
	case EquivalenceSubsumes:
		return EquivalenceSpecializes
	case EquivalenceSpecializes:
		return EquivalenceSubsumes
	default:
		return e
	}
}

// UnmappedMode says what to do when a source code has no mapping in a group.
type UnmappedMode string

// Unmapped modes.
const (
	UnmappedProvided UnmappedMode = "provided"
	UnmappedFixed    UnmappedMode = "fixed"
	UnmappedOtherMap UnmappedMode = "other-map"
)

// ConceptMap is a FHIR ConceptMap resource (R4 shape).
type ConceptMap struct {
	ResourceType    string            `json:"resourceType,omitempty"`
	ID              string            `json:"id,omitempty"`
	URL             string            `json:"url,omitempty"`
	Version         string            `json:"version,omitempty"`
	Name            string            `json:"name,omitempty"`
	Title           string            `json:"title,omitempty"`
	Status          PublicationStatus `json:"status,omitempty"`
	SourceURI       string            `json:"sourceUri,omitempty"`
	SourceCanonical string            `json:"sourceCanonical,omitempty"`
	TargetURI       string            `json:"targetUri,omitempty"`
	TargetCanonical string            `json:"targetCanonical,omitempty"`
	Group           []ConceptMapGroup `json:"group,omitempty"`
}

// Canonical returns the ConceptMap's url|version.
func (cm *ConceptMap) Canonical() Canonical {
	return Canonical{URL: cm.URL, Version: cm.Version}
}

// SourceScope returns the source value set the map applies to.
func (cm *ConceptMap) SourceScope() string {
	if cm.SourceCanonical != "" {
		return cm.SourceCanonical
	}
	return cm.SourceURI
}

// TargetScope returns the target value set the map produces codes for.
func (cm *ConceptMap) TargetScope() string {
	if cm.TargetCanonical != "" {
		return cm.TargetCanonical
	}
	return cm.TargetURI
}

// ConceptMapGroup holds mappings between one source and one target system.
type ConceptMapGroup struct {
	Source        string          `json:"source,omitempty"`
	SourceVersion string          `json:"sourceVersion,omitempty"`
	Target        string          `json:"target,omitempty"`
	TargetVersion string          `json:"targetVersion,omitempty"`
	Element       []SourceElement `json:"element,omitempty"`
	Unmapped      *Unmapped       `json:"unmapped,omitempty"`
}

// SourceElement is a source concept with its mappings.
type SourceElement struct {
	Code    string          `json:"code,omitempty"`
	Display string          `json:"display,omitempty"`
	Target  []TargetElement `json:"target,omitempty"`
}

// TargetElement is one mapping of a source concept.
type TargetElement struct {
	Code        string         `json:"code,omitempty"`
	Display     string         `json:"display,omitempty"`
	Equivalence Equivalence    `json:"equivalence"`
	Comment     string         `json:"comment,omitempty"`
	DependsOn   []OtherElement `json:"dependsOn,omitempty"`
	Product     []OtherElement `json:"product,omitempty"`
}

// OtherElement is a dependsOn or product element of a mapping.
type OtherElement struct {
	Property string `json:"property"`
	System   string `json:"system,omitempty"`
	Value    string `json:"value"`
	Display  string `json:"display,omitempty"`
}

// Unmapped describes the fallback for codes without a mapping.
type Unmapped struct {
	Mode    UnmappedMode `json:"mode"`
	Code    string       `json:"code,omitempty"`
	Display string       `json:"display,omitempty"`
	URL     string       `json:"url,omitempty"`
}
