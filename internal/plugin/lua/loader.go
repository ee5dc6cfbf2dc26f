package lua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/plugin"
	"github.com/dshills/hostkit/internal/plugin/manifest"
)

// LoaderName is the name the Lua loader reports.
const LoaderName = "lua"

// DefaultEntry is the script run when a descriptor names no entry.
const DefaultEntry = "init.lua"

// Loader loads script plugins. A package is a directory holding a
// descriptor file and the entry script.
type Loader struct {
	catalog   *event.Catalog
	stateOpts []StateOption
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithScriptTimeout bounds the entry script and the enable and disable
// hooks of plugins from this loader. Event handlers are not bounded.
func WithScriptTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.stateOpts = append(l.stateOpts, WithCallTimeout(d))
	}
}

// NewLoader creates a loader that resolves event names through catalog.
func NewLoader(catalog *event.Catalog, opts ...LoaderOption) *Loader {
	if catalog == nil {
		catalog, _ = event.NewCatalog()
	}
	l := &Loader{catalog: catalog}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements plugin.Loader.
func (l *Loader) Name() string {
	return LoaderName
}

// Matches implements plugin.Loader.
func (l *Loader) Matches(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = manifest.Find(path)
	return err == nil
}

// Decode implements plugin.Loader.
func (l *Loader) Decode(_ context.Context, path string) (*plugin.Descriptor, error) {
	file, err := manifest.Find(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoManifest, err)
	}
	d, err := manifest.ToDescriptor(l, file)
	if err != nil {
		return nil, err
	}
	d.Path = path
	if d.EntryPoint == "" {
		d.EntryPoint = DefaultEntry
	}
	if _, err := entryPath(d); err != nil {
		return nil, err
	}
	return d, nil
}

// entryPath resolves the descriptor's entry script inside its package.
func entryPath(d *plugin.Descriptor) (string, error) {
	if !filepath.IsLocal(d.EntryPoint) {
		return "", fmt.Errorf("%w: %q leaves the package directory", ErrBadEntry, d.EntryPoint)
	}
	p := filepath.Join(d.Path, d.EntryPoint)
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadEntry, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a file", ErrBadEntry, p)
	}
	return p, nil
}

// Instantiate implements plugin.Loader. It runs the entry script, resolves
// its subscriptions and calls enable() when the script defines it. Only
// the script deadline bounds these calls; ctx cancellation does not.
func (l *Loader) Instantiate(ctx context.Context, init plugin.InitContext) (any, error) {
	ctx = context.WithoutCancel(ctx)
	d := init.Descriptor
	entry, err := entryPath(d)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		id:     d.ID,
		state:  NewState(l.stateOpts...),
		logger: init.Logger,
	}
	fail := func(err error) (any, error) {
		return nil, errors.Join(err, p.state.Close())
	}

	if err := p.state.Do(func(L *lua.LState) error {
		installAPI(L, p, init)
		p.loading = true
		return nil
	}); err != nil {
		return fail(err)
	}

	loadErr := p.state.DoFile(ctx, entry)
	_ = p.state.Do(func(*lua.LState) error {
		p.loading = false
		return nil
	})
	if loadErr != nil {
		return fail(&ScriptError{Plugin: d.ID, Func: d.EntryPoint, Err: loadErr})
	}

	if err := p.resolve(l.catalog); err != nil {
		return fail(err)
	}

	if _, err := p.state.CallGlobal(ctx, "enable"); err != nil {
		return fail(&ScriptError{Plugin: d.ID, Func: "enable", Err: err})
	}

	p.logger.Debug().
		Str("entry", d.EntryPoint).
		Int("handlers", len(p.handlers)).
		Msg("lua plugin started")
	return p, nil
}

var _ plugin.Loader = (*Loader)(nil)
