// Package validation provides input validation for names and paths that end
// up inside remote shell commands.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrInputTooLong indicates input exceeds maximum length.
	ErrInputTooLong = errors.New("input exceeds maximum length")
	// ErrInputInvalid indicates input contains invalid characters.
	ErrInputInvalid = errors.New("input contains invalid characters")
	// ErrInputEmpty indicates a required value is blank.
	ErrInputEmpty = errors.New("input is empty")
	// ErrNotJSONFile indicates a preset file name without the .json suffix.
	ErrNotJSONFile = errors.New("preset file must end with .json")
)

// MaxPresetNameLength bounds preset file names.
const MaxPresetNameLength = 128

var presetFileName = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

// ValidatePresetFileName validates a preset file name (base name only).
func ValidatePresetFileName(name string) error {
	if name == "" {
		return ErrInputEmpty
	}
	if len(name) > MaxPresetNameLength {
		return ErrInputTooLong
	}

	// Letters, digits, dot, hyphen and underscore only; no path components.
	if !presetFileName.MatchString(name) {
		return ErrInputInvalid
	}
	if strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return ErrInputInvalid
	}

	if !strings.HasSuffix(strings.ToLower(name), ".json") || len(name) == len(".json") {
		return ErrNotJSONFile
	}
	return nil
}

// ValidatePath validates a remote file system path.
func ValidatePath(path string) error {
	// Prevent path traversal
	if strings.Contains(path, "..") {
		return ErrInputInvalid
	}

	// Must be absolute path
	if !strings.HasPrefix(path, "/") {
		return ErrInputInvalid
	}

	// Disallow null bytes and other dangerous characters
	if strings.ContainsAny(path, "\x00\n\r") {
		return ErrInputInvalid
	}

	return nil
}

// ValidateMacroName validates a macro display name. Any printable text is
// accepted, including non-ASCII.
func ValidateMacroName(name string, maxLength int) error {
	if len(name) > maxLength {
		return ErrInputTooLong
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return ErrInputInvalid
		}
	}
	return nil
}

// ValidateDocument validates a document body before it is piped to the device.
func ValidateDocument(text string, maxLength int) error {
	if len(text) > maxLength {
		return ErrInputTooLong
	}

	// Disallow null bytes
	if strings.Contains(text, "\x00") {
		return ErrInputInvalid
	}

	return nil
}
