package fhirterminology

// FHIRVersion represents a FHIR specification version.
type FHIRVersion string

// Supported FHIR versions.
const (
	// R4 is FHIR Release 4 (4.0.1)
	R4 FHIRVersion = "R4"
	// R4B is FHIR Release 4B (4.3.0)
	R4B FHIRVersion = "R4B"
	// R5 is FHIR Release 5 (5.0.0)
	R5 FHIRVersion = "R5"
)

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}

// IsValid returns true if this is a supported FHIR version.
func (v FHIRVersion) IsValid() bool {
	switch v {
	case R4, R4B, R5:
		return true
	default:
		return false
	}
}

// TerminologyPackage returns the HL7 terminology package (name, version)
// that carries the CodeSystems and ValueSets for a FHIR version.
func (v FHIRVersion) TerminologyPackage() (name, version string, ok bool) {
	cfg, ok := versionConfigs[v]
	if !ok {
		return "", "", false
	}
	return cfg.TermPackageName, cfg.TermPackageVersion, true
}

// ParseFHIRVersion maps a release name or a full version string ("4.0.1")
// to a FHIRVersion.
func ParseFHIRVersion(s string) (FHIRVersion, bool) {
	if v := FHIRVersion(s); v.IsValid() {
		return v, true
	}
	for v, cfg := range versionConfigs {
		if cfg.FHIRVersionString == s {
			return v, true
		}
	}
	return "", false
}

// versionConfig holds version-specific configuration.
type versionConfig struct {
	TermPackageName    string
	TermPackageVersion string
	FHIRVersionString  string
}

var versionConfigs = map[FHIRVersion]versionConfig{
	R4: {
		TermPackageName:    "hl7.terminology.r4",
		TermPackageVersion: "6.2.0",
		FHIRVersionString:  "4.0.1",
	},
	R4B: {
		TermPackageName:    "hl7.terminology.r4",
		TermPackageVersion: "6.2.0",
		FHIRVersionString:  "4.3.0",
	},
	R5: {
		TermPackageName:    "hl7.terminology.r5",
		TermPackageVersion: "6.2.0",
		FHIRVersionString:  "5.0.0",
	},
}
