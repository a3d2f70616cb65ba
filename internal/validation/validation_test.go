package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePresetFileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain preset", "macros_game.json", nil},
		{"upper suffix", "macros_A.JSON", nil},
		{"hyphen and dot", "macros_v1.2-beta.json", nil},
		{"empty", "", ErrInputEmpty},
		{"slash", "../macros.json", ErrInputInvalid},
		{"nested", "dir/macros.json", ErrInputInvalid},
		{"hidden", ".macros.json", ErrInputInvalid},
		{"double dot", "macros..json", ErrInputInvalid},
		{"space", "my macros.json", ErrInputInvalid},
		{"quote", `a"b.json`, ErrInputInvalid},
		{"dollar", "$x.json", ErrInputInvalid},
		{"no suffix", "macros_game", ErrNotJSONFile},
		{"only suffix", ".json", ErrInputInvalid},
		{"too long", strings.Repeat("a", MaxPresetNameLength) + ".json", ErrInputTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePresetFileName(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePresetFileName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/opt/bong_macro", false},
		{"/tmp/proxykbd_cmd", false},
		{"relative/dir", true},
		{"/opt/../etc", true},
		{"/opt/x\ny", true},
	}

	for _, tt := range tests {
		if err := ValidatePath(tt.path); (err != nil) != tt.wantErr {
			t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}

func TestValidateMacroName(t *testing.T) {
	if err := ValidateMacroName("점프 콤보 #1", 64); err != nil {
		t.Errorf("expected non-ASCII name to be valid, got %v", err)
	}
	if err := ValidateMacroName("tab\there", 64); err != ErrInputInvalid {
		t.Errorf("expected ErrInputInvalid, got %v", err)
	}
	if err := ValidateMacroName(strings.Repeat("x", 65), 64); err != ErrInputTooLong {
		t.Errorf("expected ErrInputTooLong, got %v", err)
	}
}

func TestValidateDocument(t *testing.T) {
	if err := ValidateDocument(`{"version":1}`, 1024); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDocument("a\x00b", 1024); err != ErrInputInvalid {
		t.Errorf("expected ErrInputInvalid, got %v", err)
	}
	if err := ValidateDocument("abcdef", 3); err != ErrInputTooLong {
		t.Errorf("expected ErrInputTooLong, got %v", err)
	}
}
