package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dshills/hostkit/internal/plugin"
)

//go:embed schema/plugin.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// File is the decoded content of a descriptor file.
type File struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Version      string       `json:"version"`
	Description  string       `json:"description,omitempty"`
	URL          string       `json:"url,omitempty"`
	Authors      []string     `json:"authors,omitempty"`
	Entry        string       `json:"entry,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Dependency is one entry of a descriptor's dependency list.
type Dependency struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Optional bool   `json:"optional,omitempty"`
}

// Issue is a single schema violation.
type Issue struct {
	// Path is the instance location, e.g. "/dependencies/0/version".
	Path string `json:"path"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Keyword is the schema keyword that failed.
	Keyword string `json:"keyword"`
}

// String renders the issue as "path: message".
func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Result is the outcome of validating a descriptor file.
type Result struct {
	// Valid is true when the file satisfies the schema.
	Valid bool `json:"valid"`

	// Issues lists schema violations.
	Issues []Issue `json:"issues,omitempty"`

	// Warnings lists lint findings that do not prevent loading.
	Warnings []string `json:"warnings,omitempty"`

	// File is the decoded descriptor when Valid is true.
	File *File `json:"-"`
}

// getSchema compiles the embedded JSON schema once and returns it.
func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		c.AssertFormat()
		if err := c.AddResource("plugin.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("plugin.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// Parse validates and decodes descriptor data. Schema violations are
// reported in the Result; the error is reserved for unreadable input.
func Parse(data []byte, format Format) (*Result, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	jsonData, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("preparing JSON for validation: %w", err)
	}

	if err := schema.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("unexpected validation error type: %w", err)
		}
		return &Result{Issues: extractIssues(ve)}, nil
	}

	var f File
	if err := json.Unmarshal(jsonData, &f); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}
	return &Result{Valid: true, File: &f, Warnings: Lint(&f)}, nil
}

// Validate reads and validates the descriptor file at path.
func Validate(path string) (*Result, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	return Parse(data, format)
}

// Load reads the descriptor file at path and returns it if valid.
// Schema violations are returned as a *ValidationError.
func Load(path string) (*File, error) {
	res, err := Validate(path)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &ValidationError{Path: path, Issues: res.Issues}
	}
	return res.File, nil
}

// ToDescriptor loads the descriptor file at path as a plugin.Descriptor
// produced by l.
func ToDescriptor(l plugin.Loader, path string) (*plugin.Descriptor, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	d := f.Descriptor()
	d.Path = path
	d.Loader = l
	return d, nil
}

// Descriptor converts the file into a plugin.Descriptor without a loader.
func (f *File) Descriptor() *plugin.Descriptor {
	d := &plugin.Descriptor{
		ID:          f.ID,
		Name:        f.Name,
		Version:     f.Version,
		Description: f.Description,
		URL:         f.URL,
		Authors:     append([]string(nil), f.Authors...),
		EntryPoint:  f.Entry,
	}
	for _, dep := range f.Dependencies {
		d.Dependencies = append(d.Dependencies, plugin.Dependency{
			ID:       dep.ID,
			Version:  dep.Version,
			Optional: dep.Optional,
		})
	}
	return d
}

// Lint returns advisory findings for a valid descriptor.
func Lint(f *File) []string {
	var warnings []string
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(f.Version, "v")); err != nil {
		warnings = append(warnings, fmt.Sprintf("version %q is not a semantic version", f.Version))
	}
	for _, dep := range f.Dependencies {
		if _, err := semver.StrictNewVersion(strings.TrimPrefix(dep.Version, "v")); err != nil {
			warnings = append(warnings, fmt.Sprintf("dependency %s version %q is not a semantic version", dep.ID, dep.Version))
		}
	}
	seen := make(map[string]bool)
	for _, dep := range f.Dependencies {
		if seen[dep.ID] {
			warnings = append(warnings, fmt.Sprintf("dependency %s is listed more than once", dep.ID))
		}
		seen[dep.ID] = true
	}
	return warnings
}

// extractIssues walks the ValidationError tree and returns leaf issues.
func extractIssues(ve *jsonschema.ValidationError) []Issue {
	var issues []Issue
	collectIssues(ve, &issues)
	if len(issues) == 0 {
		return []Issue{{Message: ve.Error()}}
	}

	seen := make(map[string]bool)
	out := issues[:0]
	for _, issue := range issues {
		key := issue.Path + "|" + issue.Keyword + "|" + issue.Message
		if !seen[key] {
			seen[key] = true
			out = append(out, issue)
		}
	}
	return out
}

func collectIssues(ve *jsonschema.ValidationError, issues *[]Issue) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectIssues(cause, issues)
		}
		return
	}

	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	keyword := ""
	msg := ""
	if ve.ErrorKind != nil {
		if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
			keyword = kw[len(kw)-1]
		}
		msg = ve.ErrorKind.LocalizedString(printer)
	}
	if keyword == "allOf" || keyword == "$ref" || keyword == "" {
		return
	}
	*issues = append(*issues, Issue{Path: path, Message: msg, Keyword: keyword})
}
