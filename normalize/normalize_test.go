package normalize

import "testing"

func TestString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "abc"},
		{"ABC", "abc"},
		{"Café", "cafe"},
		{"Ångström", "angstrom"},
		{"Straße", "strasse"},
		{"naïve RÉSUMÉ", "naive resume"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := String(tt.in); got != tt.want {
			t.Errorf("String(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b          string
		caseSensitive bool
		want          bool
	}{
		{"male", "male", true, true},
		{"male", "Male", true, false},
		{"male", "Male", false, true},
		{"Crème", "creme", false, true},
		{"Crème", "creme", true, false},
		{"abc", "abd", false, false},
	}

	for _, tt := range tests {
		if got := Equal(tt.a, tt.b, tt.caseSensitive); got != tt.want {
			t.Errorf("Equal(%q, %q, %v) = %v; want %v", tt.a, tt.b, tt.caseSensitive, got, tt.want)
		}
	}
}

func TestContains(t *testing.T) {
	if !Contains("Myocardial Infarction", "infarc") {
		t.Error("expected case-insensitive substring match")
	}
	if !Contains("Épisode dépressif", "episode DEP") {
		t.Error("expected diacritic-insensitive substring match")
	}
	if Contains("Fever", "cough") {
		t.Error("unexpected match")
	}
}
