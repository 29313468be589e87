package validation

import (
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "WFS-20250101-120000", false},
		{"single char", "a", false},
		{"task id", "IMPL-001", false},
		{"dotted suffix", "WFS-20250101.2", false},
		{"underscores", "test_fix_1", false},
		{"lowercase", "lite-plan-abc", false},
		{"digits only", "20250101", false},
		{"leading dot file", ".hidden", false},

		// Invalid identifiers - traversal attempts
		{"empty", "", true},
		{"dot dot", "..", true},
		{"parent escape", "../evil", true},
		{"embedded dot dot", "a..b", true},
		{"slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"leading slash", "/etc/passwd", true},
		{"windows path", `C:\temp`, true},
		{"single dot", ".", true},
		{"spaces", "a b", true},
		{"null byte", "a\x00b", true},
		{"unicode", "sessão", true},
		{"shell chars", "a;rm -rf", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIdentifiers(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"all valid", []string{"WFS-1", "IMPL-001", "review"}, false},
		{"one invalid", []string{"WFS-1", "../evil", "IMPL-001"}, true},
		{"all invalid", []string{"..", "a/b"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifiers(tt.ids)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifiers(%v) error = %v, wantErr %v", tt.ids, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"passthrough", "WFS-1", "WFS-1", false},
		{"trims spaces", "  WFS-1  ", "WFS-1", false},
		{"trims newline", "IMPL-001\n", "IMPL-001", false},
		{"traversal rejected", " ../evil ", "", true},
		{"empty after trim", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeIdentifier(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeIdentifier(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
