package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for a config file with an unknown
	// extension.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// ParseError is a failure to decode a config file.
type ParseError struct {
	// Path is the file that failed to parse.
	Path string
	Err  error
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse config %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// FieldError is a validation failure for one setting.
type FieldError struct {
	// Field is the dotted setting path, e.g. "plugins.dir".
	Field string

	Message string
}

// Error implements error.
func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Is reports whether target is ErrInvalid.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalid
}
