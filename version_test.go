package fhirterminology

import (
	"testing"
)

func TestFHIRVersion_String(t *testing.T) {
	tests := []struct {
		version FHIRVersion
		want    string
	}{
		{R4, "R4"},
		{R4B, "R4B"},
		{R5, "R5"},
	}

	for _, tt := range tests {
		if got := tt.version.String(); got != tt.want {
			t.Errorf("%v.String() = %q; want %q", tt.version, got, tt.want)
		}
	}
}

func TestFHIRVersion_IsValid(t *testing.T) {
	tests := []struct {
		version FHIRVersion
		want    bool
	}{
		{R4, true},
		{R4B, true},
		{R5, true},
		{"R3", false},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.version.IsValid(); got != tt.want {
			t.Errorf("%v.IsValid() = %v; want %v", tt.version, got, tt.want)
		}
	}
}

func TestFHIRVersion_TerminologyPackage(t *testing.T) {
	name, version, ok := R4.TerminologyPackage()
	if !ok {
		t.Fatal("TerminologyPackage(R4) returned false")
	}
	if name != "hl7.terminology.r4" {
		t.Errorf("name = %q; want %q", name, "hl7.terminology.r4")
	}
	if version != "6.2.0" {
		t.Errorf("version = %q; want %q", version, "6.2.0")
	}

	if _, _, ok := FHIRVersion("R3").TerminologyPackage(); ok {
		t.Error("TerminologyPackage(R3) should return false")
	}
}

func TestParseFHIRVersion(t *testing.T) {
	tests := []struct {
		in     string
		want   FHIRVersion
		wantOK bool
	}{
		{"R4", R4, true},
		{"4.0.1", R4, true},
		{"4.3.0", R4B, true},
		{"5.0.0", R5, true},
		{"3.0.2", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseFHIRVersion(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseFHIRVersion(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
