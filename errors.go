package fhirterminology

import "errors"

// Sentinel errors shared by the terminology packages. Callers match them with
// errors.Is; the packages wrap them with the offending canonical or code.
var (
	// ErrNotFound is returned when a CodeSystem, ValueSet or ConceptMap is not loaded.
	ErrNotFound = errors.New("resource not found")

	// ErrNotSupported is returned when an operation does not apply to the resource.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNotExpandable is returned when a ValueSet cannot be expanded locally.
	ErrNotExpandable = errors.New("value set is not expandable")

	// ErrCyclicReference is returned when ValueSets or ConceptMaps reference each other in a loop.
	ErrCyclicReference = errors.New("cyclic reference")

	// ErrTooCostly is returned when an expansion exceeds the configured maximum size.
	ErrTooCostly = errors.New("expansion too costly")

	// ErrInvalidFilter is returned when a filter value cannot be interpreted.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrUnsupportedFilter is returned for a filter operator or property the engine cannot evaluate.
	ErrUnsupportedFilter = errors.New("unsupported filter")

	// ErrCodeNotFound is returned when a code does not exist in a CodeSystem.
	ErrCodeNotFound = errors.New("code not found")

	// ErrInvalidResource is returned when a resource is malformed.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrDuplicateCode is returned when a CodeSystem defines the same code twice.
	ErrDuplicateCode = errors.New("duplicate code")
)
