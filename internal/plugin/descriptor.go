package plugin

import (
	"fmt"
	"regexp"
	"slices"
)

// Descriptor is the metadata of one plugin, produced by a Loader.
// The manager treats it as immutable: it stores and returns clones.
type Descriptor struct {
	// ID uniquely identifies the plugin.
	ID string `json:"id"`

	// Name is the display name. Defaults to ID.
	Name string `json:"name"`

	// Version is compared by exact string equality.
	Version string `json:"version"`

	Authors     []string `json:"authors,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`

	// Dependencies must be loaded, at exactly the declared version, before
	// this plugin.
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// EntryPoint is interpreted by the loader.
	EntryPoint string `json:"entry,omitempty"`

	// Path is where the plugin was found.
	Path string `json:"path,omitempty"`

	// Loader produced this descriptor and instantiates it.
	Loader Loader `json:"-"`
}

// Dependency is a reference from one plugin to another.
type Dependency struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Optional bool   `json:"optional,omitempty"`
}

// String renders the dependency as id@version.
func (d Dependency) String() string {
	s := d.ID + "@" + d.Version
	if d.Optional {
		s += " (optional)"
	}
	return s
}

// idPattern validates plugin IDs.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks the fields the manager relies on.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDescriptor)
	}
	if !idPattern.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q must be alphanumeric with dots, dashes or underscores", ErrInvalidDescriptor, d.ID)
	}
	if d.Version == "" {
		return fmt.Errorf("%w: %s: version is required", ErrInvalidDescriptor, d.ID)
	}
	for i, dep := range d.Dependencies {
		if dep.ID == "" {
			return fmt.Errorf("%w: %s: dependency %d has no id", ErrInvalidDescriptor, d.ID, i)
		}
		if dep.Version == "" {
			return fmt.Errorf("%w: %s: dependency %s has no version", ErrInvalidDescriptor, d.ID, dep.ID)
		}
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func (d *Descriptor) applyDefaults(l Loader, path string) {
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Path == "" {
		d.Path = path
	}
	if d.Loader == nil {
		d.Loader = l
	}
}

// Clone returns a deep copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Authors = slices.Clone(d.Authors)
	c.Dependencies = slices.Clone(d.Dependencies)
	return &c
}

// LoaderName returns the name of the originating loader, or "" if unset.
func (d *Descriptor) LoaderName() string {
	if d.Loader == nil {
		return ""
	}
	return d.Loader.Name()
}
