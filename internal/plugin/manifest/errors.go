package manifest

import (
	"errors"
	"strings"
)

// Manifest errors.
var (
	// ErrUnsupportedFormat is returned for file extensions other than
	// .toml, .yaml, .yml and .json.
	ErrUnsupportedFormat = errors.New("unsupported descriptor format")

	// ErrNotFound is returned when a package directory has no descriptor.
	ErrNotFound = errors.New("descriptor not found")

	// ErrInvalid is matched by every ValidationError.
	ErrInvalid = errors.New("invalid descriptor")
)

// ValidationError reports schema violations in a descriptor file.
type ValidationError struct {
	// Path is the descriptor file.
	Path string

	// Issues lists each violation.
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid descriptor")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	for i, issue := range e.Issues {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(issue.String())
	}
	return b.String()
}

// Is allows errors.Is to match ValidationError with ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}
