package native

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/hostkit/internal/plugin"
	"github.com/dshills/hostkit/internal/plugin/manifest"
)

// LoaderName is the name the native loader reports.
const LoaderName = "native"

// suffix marks descriptor files claimed by this loader.
const suffix = ".plugin"

// Loader instantiates plugins from registered factories.
type Loader struct {
	registry *Registry
}

// NewLoader creates a loader backed by r, or by the process-wide registry
// when r is nil.
func NewLoader(r *Registry) *Loader {
	if r == nil {
		r = defaultRegistry
	}
	return &Loader{registry: r}
}

// Name implements plugin.Loader.
func (l *Loader) Name() string {
	return LoaderName
}

// Matches implements plugin.Loader.
func (l *Loader) Matches(path string) bool {
	if _, ok := entryName(path); !ok {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// entryName extracts <name> from <name>.plugin.<ext>.
func entryName(path string) (string, bool) {
	base := filepath.Base(path)
	if _, err := manifest.FormatOf(base); err != nil {
		return "", false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name, ok := strings.CutSuffix(stem, suffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Decode implements plugin.Loader.
func (l *Loader) Decode(_ context.Context, path string) (*plugin.Descriptor, error) {
	d, err := manifest.ToDescriptor(l, path)
	if err != nil {
		return nil, err
	}
	if d.EntryPoint == "" {
		d.EntryPoint, _ = entryName(path)
	}
	if _, ok := l.registry.Lookup(d.EntryPoint); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntry, d.EntryPoint)
	}
	return d, nil
}

// Instantiate implements plugin.Loader.
func (l *Loader) Instantiate(ctx context.Context, init plugin.InitContext) (any, error) {
	f, ok := l.registry.Lookup(init.Descriptor.EntryPoint)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntry, init.Descriptor.EntryPoint)
	}
	return f(ctx, init)
}

var _ plugin.Loader = (*Loader)(nil)
