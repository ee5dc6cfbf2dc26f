package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/event/events"
	"github.com/dshills/hostkit/internal/graph"
	"github.com/dshills/hostkit/internal/service"
)

// Manager discovers, orders, instantiates and tracks plugins.
type Manager struct {
	// loaderMu guards loaders and is held for a whole discovery pass.
	loaderMu sync.Mutex
	loaders  []namedLoader

	// mu guards both indexes and the load order so they never disagree.
	mu         sync.RWMutex
	byID       map[string]*Container
	byInstance map[any]*Container
	loadOrder  []string

	bus      *event.Bus
	services *service.Registry

	config managerConfig
}

// NewManager creates a plugin manager that wires plugins to bus and
// services.
func NewManager(bus *event.Bus, services *service.Registry, opts ...Option) *Manager {
	config := defaultManagerConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if bus == nil {
		bus = event.NewBus()
	}
	if services == nil {
		services = service.NewRegistry()
	}
	return &Manager{
		byID:       make(map[string]*Container),
		byInstance: make(map[any]*Container),
		bus:        bus,
		services:   services,
		config:     config,
	}
}

// Events returns the bus plugins are wired to.
func (m *Manager) Events() *event.Bus {
	return m.bus
}

// Services returns the registry plugins are wired to.
func (m *Manager) Services() *service.Registry {
	return m.services
}

// candidate is one directory entry claimed by a loader.
type candidate struct {
	loader Loader
	name   string
	path   string
}

// LoadPlugins discovers every package in dir, orders the batch by its
// dependencies and loads each plugin whose dependencies are satisfied.
//
// Per-plugin failures are logged and recorded in the report; they do not
// fail the call. A dependency cycle in the batch fails the whole call with
// an error matching ErrCycleDetected and nothing from the batch is loaded.
func (m *Manager) LoadPlugins(ctx context.Context, dir string) (*Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("plugin directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	start := time.Now()
	report := &Report{Cycle: uuid.NewString(), Dir: dir}
	log := m.config.logger.With().Str("cycle", report.Cycle).Logger()
	defer func() {
		report.Duration = time.Since(start)
		m.config.metrics.cycleDone(report.Duration)
	}()

	batch, err := m.discover(ctx, dir, report, log)
	if err != nil {
		return report, err
	}

	order, err := sortBatch(batch)
	if err != nil {
		log.WithLevel(zerolog.FatalLevel).
			Err(err).
			Str("dir", dir).
			Int("batch", len(batch)).
			Msg("dependency cycle, no plugin from this directory is loaded")
		for _, d := range batch {
			m.skip(report, log, Skip{ID: d.ID, Path: d.Path, Reason: SkipCycle, Err: err})
		}
		return report, fmt.Errorf("load %s: %w", dir, err)
	}

	for _, d := range order {
		if c, ok := m.load(ctx, d, report, log); ok {
			report.Loaded = append(report.Loaded, c.ID())
		}
	}

	log.Info().
		Str("dir", dir).
		Int("loaded", len(report.Loaded)).
		Int("skipped", len(report.Skipped)).
		Dur("elapsed", time.Since(start)).
		Msg("plugins loaded")

	m.fire(ctx, log, events.PluginsLoaded{
		Cycle:    report.Cycle,
		Dir:      dir,
		Loaded:   slices.Clone(report.Loaded),
		Skipped:  len(report.Skipped),
		Duration: time.Since(start),
	})
	return report, nil
}

// discover decodes every candidate in dir and returns the batch of new
// descriptors in discovery order.
func (m *Manager) discover(ctx context.Context, dir string, report *Report, log zerolog.Logger) ([]*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin directory: %w", err)
	}

	cands, decoded, failures := m.decodeAll(ctx, dir, entries)

	// Skips fire PluginSkipped, so they are recorded only after the loader
	// lock is released.
	var batch []*Descriptor
	seen := make(map[string]string)
	for i, c := range cands {
		if failures[i] != nil {
			m.skip(report, log, Skip{Path: c.path, Reason: SkipDecode, Err: failures[i]})
			continue
		}
		d := decoded[i]
		if m.IsLoaded(d.ID) {
			log.Debug().Str("plugin", d.ID).Str("path", c.path).Msg("already loaded, ignoring")
			continue
		}
		if first, dup := seen[d.ID]; dup {
			m.skip(report, log, Skip{
				ID:     d.ID,
				Path:   c.path,
				Reason: SkipDuplicate,
				Err:    fmt.Errorf("%w: %s also provided by %s", ErrDuplicateID, d.ID, first),
			})
			continue
		}
		seen[d.ID] = c.path
		batch = append(batch, d)
	}
	return batch, nil
}

// decodeAll matches entries against every loader and decodes the
// candidates. The loader lock is held for the whole pass.
func (m *Manager) decodeAll(ctx context.Context, dir string, entries []os.DirEntry) ([]candidate, []*Descriptor, []error) {
	m.loaderMu.Lock()
	defer m.loaderMu.Unlock()

	var cands []candidate
	for _, nl := range m.loaders {
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if nl.loader.Matches(path) {
				cands = append(cands, candidate{loader: nl.loader, name: nl.name, path: path})
			}
		}
	}

	decoded := make([]*Descriptor, len(cands))
	failures := make([]error, len(cands))
	var g errgroup.Group
	g.SetLimit(m.config.workers)
	for i, c := range cands {
		g.Go(func() error {
			decoded[i], failures[i] = decode(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return cands, decoded, failures
}

// decode runs one loader's Decode and normalizes the result.
func decode(ctx context.Context, c candidate) (d *Descriptor, err error) {
	wrap := func(err error) error {
		return &LoaderError{Op: "decode", Loader: c.name, Path: c.path, Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, wrap(fmt.Errorf("panic: %v", r))
		}
	}()

	d, err = c.loader.Decode(ctx, c.path)
	if err != nil {
		return nil, wrap(err)
	}
	if d == nil {
		return nil, wrap(fmt.Errorf("%w: loader returned no descriptor", ErrInvalidDescriptor))
	}
	d = d.Clone()
	d.applyDefaults(c.loader, c.path)
	if err := d.Validate(); err != nil {
		return nil, wrap(err)
	}
	return d, nil
}

// sortBatch orders descriptors so dependencies load first. Only edges to
// other batch members are considered; dependencies outside the batch are
// checked against loaded plugins later.
func sortBatch(batch []*Descriptor) ([]*Descriptor, error) {
	g := graph.New[string]()
	byID := make(map[string]*Descriptor, len(batch))
	for _, d := range batch {
		g.Add(d.ID)
		byID[d.ID] = d
	}
	for _, d := range batch {
		for _, dep := range d.Dependencies {
			if _, inBatch := byID[dep.ID]; inBatch {
				g.AddEdges(d.ID, dep.ID)
			}
		}
	}

	ids, err := g.Sort()
	if err != nil {
		return nil, err
	}
	order := make([]*Descriptor, len(ids))
	for i, id := range ids {
		order[i] = byID[id]
	}
	return order, nil
}

// load validates, instantiates and registers one descriptor.
func (m *Manager) load(ctx context.Context, d *Descriptor, report *Report, log zerolog.Logger) (*Container, bool) {
	if err := m.checkDependencies(d); err != nil {
		m.skip(report, log, Skip{ID: d.ID, Path: d.Path, Reason: SkipDependency, Err: err})
		return nil, false
	}

	plog := m.config.logger.With().Str("plugin", d.ID).Logger()
	dataDir := filepath.Join(m.config.dataDir, d.ID)

	instance, err := m.instantiate(ctx, d, plog, dataDir)
	if err != nil {
		m.skip(report, log, Skip{ID: d.ID, Path: d.Path, Reason: SkipInstantiate, Err: err})
		return nil, false
	}

	c, err := m.register(d, instance, plog, dataDir)
	if err != nil {
		reason := SkipInstantiate
		if errors.Is(err, ErrDuplicateID) {
			// Another cycle won the race for this ID; the instance is ours alone.
			reason = SkipDuplicate
			if closer, ok := instance.(Closer); ok {
				_ = safeClose(closer)
			}
		}
		m.skip(report, log, Skip{ID: d.ID, Path: d.Path, Reason: reason, Err: err})
		return nil, false
	}

	if l, ok := instance.(event.Listener); ok {
		if err := m.bus.RegisterListeners(instance, l); err != nil {
			log.Error().Err(err).Str("plugin", d.ID).Msg("plugin listeners not registered")
		}
	}

	m.config.metrics.pluginLoaded()
	log.Info().
		Str("plugin", d.ID).
		Str("version", d.Version).
		Str("loader", d.LoaderName()).
		Msg("plugin enabled")

	m.fire(ctx, log, events.PluginEnabled{
		ID:      d.ID,
		Name:    d.Name,
		Version: d.Version,
		Loader:  d.LoaderName(),
		Path:    d.Path,
	})
	return c, true
}

// checkDependencies verifies every dependency against loaded plugins.
func (m *Manager) checkDependencies(d *Descriptor) error {
	for _, dep := range d.Dependencies {
		c, ok := m.Plugin(dep.ID)
		if !ok {
			if dep.Optional {
				continue
			}
			return &DependencyError{Plugin: d.ID, Dependency: dep}
		}
		if c.Version() != dep.Version {
			return &DependencyError{Plugin: d.ID, Dependency: dep, Found: c.Version()}
		}
	}
	return nil
}

// instantiate asks the descriptor's loader for a live instance.
func (m *Manager) instantiate(ctx context.Context, d *Descriptor, plog zerolog.Logger, dataDir string) (instance any, err error) {
	wrap := func(err error) error {
		return &LoaderError{Op: "instantiate", Loader: d.LoaderName(), Path: d.Path, ID: d.ID, Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			instance, err = nil, wrap(fmt.Errorf("panic: %v", r))
		}
	}()

	instance, err = d.Loader.Instantiate(ctx, InitContext{
		Descriptor: d.Clone(),
		Logger:     plog,
		DataDir:    dataDir,
		Events:     m.bus,
		Services:   m.services,
	})
	switch {
	case err != nil:
		return nil, wrap(err)
	case isNil(instance):
		return nil, wrap(ErrNilInstance)
	case !reflect.ValueOf(instance).Comparable():
		return nil, wrap(fmt.Errorf("%w: %T", ErrInstanceNotComparable, instance))
	}
	return instance, nil
}

// register indexes a new plugin by ID and by instance.
func (m *Manager) register(d *Descriptor, instance any, plog zerolog.Logger, dataDir string) (*Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[d.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}
	if other, exists := m.byInstance[instance]; exists {
		return nil, &LoaderError{
			Op:     "instantiate",
			Loader: d.LoaderName(),
			Path:   d.Path,
			ID:     d.ID,
			Err:    fmt.Errorf("%w: owned by %s", ErrDuplicateInstance, other.ID()),
		}
	}

	c := &Container{
		descriptor: d,
		instance:   instance,
		logger:     plog,
		dataDir:    dataDir,
		loadedAt:   time.Now(),
	}
	c.setState(StateEnabled)
	m.byID[d.ID] = c
	m.byInstance[instance] = c
	m.loadOrder = append(m.loadOrder, d.ID)
	return c, nil
}

// skip records and logs a candidate that will not be loaded.
func (m *Manager) skip(report *Report, log zerolog.Logger, s Skip) {
	report.skip(s)
	m.config.metrics.pluginSkipped(s.Reason)

	ev := log.Warn()
	if s.Reason == SkipCycle {
		ev = log.Debug()
	}
	ev.Err(s.Err).
		Str("plugin", s.ID).
		Str("path", s.Path).
		Str("reason", s.Reason).
		Msg("plugin skipped")

	m.fire(context.Background(), log, events.PluginSkipped{
		ID:     s.ID,
		Path:   s.Path,
		Reason: s.Reason,
		Error:  s.Message(),
	})
}

// fire dispatches a lifecycle event; failures are logged only.
func (m *Manager) fire(ctx context.Context, log zerolog.Logger, ev event.Event) {
	if err := m.bus.Fire(ctx, ev); err != nil {
		log.Error().Err(err).Str("event", ev.EventName()).Msg("lifecycle event handler failed")
	}
}

// AllPlugins returns every loaded plugin in load order.
func (m *Manager) AllPlugins() []*Container {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Container, 0, len(m.loadOrder))
	for _, id := range m.loadOrder {
		out = append(out, m.byID[id])
	}
	return out
}

// Plugin returns the plugin with the given ID.
func (m *Manager) Plugin(id string) (*Container, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.byID[id]
	return c, ok
}

// FromInstance returns the plugin that owns instance.
func (m *Manager) FromInstance(instance any) (*Container, bool) {
	if isNil(instance) || !reflect.ValueOf(instance).Comparable() {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.byInstance[instance]
	return c, ok
}

// IsLoaded reports whether a plugin with the given ID is loaded.
func (m *Manager) IsLoaded(id string) bool {
	_, ok := m.Plugin(id)
	return ok
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.loadOrder)
}

// Shutdown disables every plugin in reverse load order. Each plugin is
// announced with PluginDisabled, closed if it implements Closer, and
// stripped of its listeners and services.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	order := slices.Clone(m.loadOrder)
	m.mu.RUnlock()
	slices.Reverse(order)

	var errs []error
	for _, id := range order {
		c, ok := m.Plugin(id)
		if !ok {
			continue
		}
		if err := m.disable(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to shut down %d plugins: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// disable shuts down one plugin and removes it from the manager.
func (m *Manager) disable(ctx context.Context, c *Container) error {
	log := m.config.logger
	c.setState(StateDisabling)

	m.fire(ctx, log, events.PluginDisabled{
		ID:      c.ID(),
		Name:    c.descriptor.Name,
		Version: c.Version(),
	})

	var closeErr error
	if closer, ok := c.instance.(Closer); ok {
		closeErr = safeClose(closer)
	}

	listeners := m.bus.DeregisterAllListeners(c.instance)
	services := m.services.CancelOwner(c.instance)

	m.mu.Lock()
	delete(m.byID, c.ID())
	delete(m.byInstance, c.instance)
	m.loadOrder = slices.DeleteFunc(m.loadOrder, func(id string) bool { return id == c.ID() })
	m.mu.Unlock()

	c.setState(StateDisabled)
	m.config.metrics.pluginUnloaded()

	ev := log.Info()
	if closeErr != nil {
		ev = log.Error().Err(closeErr)
	}
	ev.Str("plugin", c.ID()).
		Int("listeners", listeners).
		Int("services", len(services)).
		Msg("plugin disabled")
	return closeErr
}

func safeClose(c Closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panic: %v", r)
		}
	}()
	return c.Close()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
