package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// moduleNameRegex matches valid rig module names: lowercase alphanumerics
// and underscores, starting with a letter (e.g. "arm", "spine", "front_leg").
var moduleNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateModuleName validates a rig module name.
// Module names become scene node name fragments, so the rules are
// intentionally conservative: lowercase, underscore-separated, short.
func ValidateModuleName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "module name cannot be empty")
	}

	if len(name) > 64 {
		return New(ErrCodeInvalidInput, "module name too long (max 64 characters)")
	}

	if !moduleNameRegex.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid module name: %q (lowercase letters, digits, underscores)", name)
	}

	return nil
}

// ValidateNodeName validates a scene node name for safety.
// Node names are used as lookup keys and in persisted documents; they must
// be simple identifiers without path separators or control characters.
func ValidateNodeName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "node name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "node name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "node name contains control characters")
		}
	}

	if strings.ContainsAny(name, "/\\|:") {
		return New(ErrCodeInvalidInput, "node name contains invalid characters: %q", name)
	}

	return nil
}

// ValidateLayoutName validates a guide-layout name used as a storage key.
// Layout names become file names in the file store and document ids in the
// mongo store, so path components and traversal sequences are rejected.
func ValidateLayoutName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "layout name cannot be empty")
	}

	if len(name) > 128 {
		return New(ErrCodeInvalidInput, "layout name too long (max 128 characters)")
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidInput, "layout name cannot contain path separators")
	}

	if strings.Contains(name, "..") {
		return New(ErrCodeInvalidInput, "layout name cannot contain traversal sequences (..)")
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidInput, "layout name cannot be a hidden file")
	}

	for _, r := range name {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "layout name contains invalid characters")
		}
	}

	return nil
}
